package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/interviewcoach/internal/auth"
	"github.com/hitoshi/interviewcoach/internal/blueprint"
	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/config"
	"github.com/hitoshi/interviewcoach/internal/database"
	"github.com/hitoshi/interviewcoach/internal/handler"
	"github.com/hitoshi/interviewcoach/internal/history"
	"github.com/hitoshi/interviewcoach/internal/intake"
	"github.com/hitoshi/interviewcoach/internal/interview"
	"github.com/hitoshi/interviewcoach/internal/logger"
	"github.com/hitoshi/interviewcoach/internal/metrics"
	"github.com/hitoshi/interviewcoach/internal/middleware"
	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/narration"
	"github.com/hitoshi/interviewcoach/internal/questionbank"
	"github.com/hitoshi/interviewcoach/internal/repository"
	"github.com/hitoshi/interviewcoach/internal/security"
	"github.com/hitoshi/interviewcoach/internal/user"
	"github.com/hitoshi/interviewcoach/internal/worker/cleanup"
	"github.com/hitoshi/interviewcoach/internal/worker/reanalyze"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既に設定済みの環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if !cmd.NeedsDatabase() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("local_mode", cfg.LocalMode()),
		slog.Bool("ai_enabled", cfg.AIEnabled()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はserveとworkerで共有するサービス群。
type components struct {
	dialect  database.Dialect
	registry *prometheus.Registry
	metrics  *metrics.Collector

	coach     *coach.Coach
	narrator  *narration.Service
	importer  *intake.Importer
	interview *interview.Service
	history   *history.Service
	blueprint *blueprint.Service
	user      *user.Service

	interviewRepo repository.InterviewRepository

	// サーバーモードのみ。ローカルモードではnil。
	auth        *auth.Service
	sessionRepo *repository.PostgresSessionRepo
}

// buildComponents はConfigとDB接続から全サービスを組み立てる。
// ローカルモード（SQLite）ではユーザー・ログインセッションを持たず、ゲストユーザーで動作する。
func buildComponents(cfg *config.Config, db *sql.DB, log *slog.Logger) (*components, error) {
	c := &components{dialect: database.DialectOf(cfg.DatabaseURL)}

	// 1. メトリクス
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.NewCollector(c.registry)

	// 2. 定型コンテンツとAIコーチ
	bank, err := loadQuestionBank(cfg.QuestionBankPath)
	if err != nil {
		return nil, err
	}
	var provider coach.Provider
	if cfg.AIEnabled() {
		provider = coach.NewOpenAIProvider(coach.OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			Model:           cfg.OpenAIModel,
			TranscribeModel: cfg.OpenAITranscribeModel,
			TTSModel:        cfg.OpenAITTSModel,
			Voice:           cfg.OpenAITTSVoice,
			Timeout:         cfg.AITimeout,
		})
	} else {
		log.Warn("OPENAI_API_KEYが未設定のためオフラインモードで起動します")
	}
	c.coach = coach.New(provider, bank, c.metrics, logger.Component(log, "coach"))

	c.narrator = narration.New(c.coach, narration.Config{
		Voice:             cfg.OpenAITTSVoice,
		CacheSize:         cfg.NarrationCacheSize,
		CacheTTL:          cfg.NarrationCacheTTL,
		PrefetchTimeout:   cfg.PrefetchTimeout,
		SynthesizeTimeout: cfg.AITimeout,
	}, c.metrics, logger.Component(log, "narration"))

	// 3. セキュリティ
	sanitizer := security.NewTextSanitizer()
	c.importer = intake.NewImporter(security.NewURLGuard(), sanitizer, intake.Config{
		Timeout: cfg.ImportTimeout,
		MaxSize: cfg.ImportMaxSize,
	}, logger.Component(log, "intake"))

	// 4. リポジトリ
	var (
		blueprintRepo repository.BlueprintRepository
		historyRepo   repository.HistoryRepository
		deleters      user.Deleters
		userRepo      repository.UserRepository
	)
	if c.dialect == database.DialectSQLite {
		sqliteBlueprints := repository.NewSQLiteBlueprintRepo(db)
		sqliteHistories := repository.NewSQLiteHistoryRepo(db)
		sqliteInterviews := repository.NewSQLiteInterviewRepo(db)
		blueprintRepo, historyRepo, c.interviewRepo = sqliteBlueprints, sqliteHistories, sqliteInterviews
		deleters = user.Deleters{
			Histories:  sqliteHistories,
			Interviews: sqliteInterviews,
			Blueprints: sqliteBlueprints,
		}
	} else {
		pgUsers := repository.NewPostgresUserRepo(db)
		pgBlueprints := repository.NewPostgresBlueprintRepo(db)
		pgHistories := repository.NewPostgresHistoryRepo(db)
		pgInterviews := repository.NewPostgresInterviewRepo(db)
		c.sessionRepo = repository.NewPostgresSessionRepo(db)
		userRepo = pgUsers
		blueprintRepo, historyRepo, c.interviewRepo = pgBlueprints, pgHistories, pgInterviews
		deleters = user.Deleters{
			Histories:  pgHistories,
			Interviews: pgInterviews,
			Blueprints: pgBlueprints,
			Sessions:   c.sessionRepo,
		}

		oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		c.auth = auth.NewService(
			oauthProvider, pgUsers, repository.NewPostgresIdentityRepo(db), c.sessionRepo,
			auth.ServiceConfig{SessionMaxAge: time.Duration(cfg.SessionMaxAge) * time.Second},
			logger.Component(log, "auth"),
		)
	}

	// 5. ドメインサービス
	c.blueprint = blueprint.NewService(blueprintRepo, c.coach, logger.Component(log, "blueprint"))
	c.history = history.NewService(historyRepo)
	c.user = user.NewService(userRepo, deleters, logger.Component(log, "user"))

	interviewCfg := interview.DefaultConfig()
	interviewCfg.AudioMaxSize = cfg.AudioMaxSize
	c.interview = interview.NewService(
		c.interviewRepo, c.blueprint, c.coach, c.narrator, sanitizer, c.metrics,
		interviewCfg, logger.Component(log, "interview"),
	)

	return c, nil
}

// loadQuestionBank はパスが指定されていればそのYAMLを、なければ組み込みの定型コンテンツを読み込む。
func loadQuestionBank(path string) (*questionbank.Bank, error) {
	if path == "" {
		bank, err := questionbank.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load embedded question bank: %w", err)
		}
		return bank, nil
	}
	bank, err := questionbank.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank %s: %w", path, err)
	}
	return bank, nil
}

// newRouterDeps はルーターの依存関係を組み立てる。
func newRouterDeps(cfg *config.Config, c *components, db handler.HealthChecker, rl *middleware.RateLimiter, log *slog.Logger) *handler.RouterDeps {
	deps := &handler.RouterDeps{
		Logger:             log,
		GuestUserID:        model.GuestUserID,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rl,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker:   db,
		AIOnline:        c.coach.Online(),
		MetricsRecorder: c.metrics,
		MetricsHandler:  metrics.Handler(c.registry),

		InterviewService: c.interview,
		HistoryService:   c.history,
		BlueprintService: c.blueprint,
		IntakeService:    c.importer,
		UserService:      c.user,

		AudioMaxSize:  cfg.AudioMaxSize,
		ImportMaxSize: cfg.ImportMaxSize,
	}

	// ローカルモードではSessionFinderとAuthServiceをnilのままにし、ゲストとして扱う
	if c.auth != nil {
		deps.SessionFinder = c.sessionRepo
		deps.AuthService = c.auth
		deps.AuthConfig = handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
		}
	}
	return deps
}

// openDatabase はDB接続を開いて疎通を確認する。
// ローカルモードでは起動時にマイグレーションも適用する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.LocalMode() {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate local database: %w", err)
		}
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("dialect", string(database.DialectOf(cfg.DatabaseURL))),
	)
	return db, nil
}

// startBackgroundJobs は再分析ワーカーとクリーンアップジョブをバックグラウンドで起動する。
// AIがオフラインの場合、再分析しても定型結果にしかならないため再分析ワーカーは起動しない。
func startBackgroundJobs(ctx context.Context, cfg *config.Config, c *components, db *sql.DB, log *slog.Logger) {
	if c.coach.Online() {
		worker := reanalyze.New(c.interviewRepo, c.interview, c.metrics, logger.Component(log, "reanalyze"), reanalyze.Config{
			Interval:    cfg.ReanalyzeInterval,
			MaxPerCycle: cfg.ReanalyzeMaxPerCycle,
			Concurrency: cfg.ReanalyzeConcurrency,
		})
		go worker.Start(ctx)
	} else {
		log.Info("AIがオフラインのため再分析ワーカーを起動しません")
	}

	job := cleanup.NewCleanupJob(db, c.dialect, logger.Component(log, "cleanup"))
	job.AbandonAfter = cfg.AbandonAfter
	job.RetentionDays = cfg.SessionRetentionDays
	go job.Start(ctx, cfg.CleanupInterval)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ローカルモードでは再分析とクリーンアップも同じプロセスで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := buildComponents(cfg, db, log)
	if err != nil {
		return err
	}

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute: cfg.RateLimitGeneral,
		AIPerMinute:      cfg.RateLimitAI,
	})
	defer rl.Stop()

	router := handler.NewRouter(newRouterDeps(cfg, c, db, rl, log))

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// 文字起こしとAI分析を同期で待つため、書き込みタイムアウトはAIタイムアウトに余裕を持たせる
		WriteTimeout: cfg.AITimeout*3 + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.LocalMode() {
		startBackgroundJobs(ctx, cfg, c, db, log)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	// 実行中の読み上げ先読みを待ってからDBを閉じる
	c.narrator.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、再分析ワーカーとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := buildComponents(cfg, db, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("reanalyze_interval", cfg.ReanalyzeInterval),
		slog.Int("reanalyze_concurrency", cfg.ReanalyzeConcurrency),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	startBackgroundJobs(ctx, cfg, c, db, log)

	<-ctx.Done()
	slog.Info("shutting down worker...")
	c.narrator.Wait()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// SQLiteのファイルパスには認証情報がないためそのまま返す。
func maskDatabaseURL(raw string) string {
	if database.DialectOf(raw) == database.DialectSQLite {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
