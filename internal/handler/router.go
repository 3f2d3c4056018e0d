package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/interviewcoach/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	// SessionFinderがnilの場合はローカルモードとしてGuestUserIDで全リクエストを扱う。
	SessionFinder      middleware.SessionFinder
	GuestUserID        string
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRFConfig         middleware.CSRFConfig

	// 運用
	HealthChecker   HealthChecker
	AIOnline        bool
	MetricsRecorder middleware.StatusRecorder
	MetricsHandler  http.Handler

	// 認証（ローカルモードでは未使用）
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	InterviewService InterviewServiceInterface
	HistoryService   HistoryServiceInterface
	BlueprintService BlueprintServiceInterface
	IntakeService    IntakeServiceInterface
	UserService      UserServiceInterface

	AudioMaxSize  int64
	ImportMaxSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Logging → Metrics
//	保護ルート: Session(またはGuest) → CSRF → RateLimit(General) [→ RateLimit(AI)]
//
// /health, /metrics, /api/csrf-token, /auth/* は保護ルートの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.MetricsRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsRecorder))
	}

	interviewHandler := NewInterviewHandler(deps.InterviewService, deps.AudioMaxSize)
	historyHandler := NewHistoryHandler(deps.HistoryService)
	blueprintHandler := NewBlueprintHandler(deps.BlueprintService)
	intakeHandler := NewIntakeHandler(deps.IntakeService, deps.ImportMaxSize)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.AIOnline))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	if deps.SessionFinder != nil && deps.AuthService != nil {
		authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		if deps.SessionFinder != nil {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		} else {
			r.Use(middleware.NewGuestMiddleware(deps.GuestUserID))
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		ai := deps.RateLimiter.AIMiddleware()

		// 面接セッション
		r.Route("/api/interviews", func(r chi.Router) {
			r.With(ai).Post("/", interviewHandler.Start)
			r.Get("/", interviewHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", interviewHandler.Get)
				r.Delete("/", interviewHandler.Delete)

				r.Get("/current", interviewHandler.Current)
				r.Post("/next", interviewHandler.Next)
				r.Post("/previous", interviewHandler.Previous)
				r.Put("/position", interviewHandler.Goto)

				r.With(ai).Post("/answers", interviewHandler.SubmitAnswer)
				r.With(ai).Post("/answers/audio", interviewHandler.SubmitAudioAnswer)
				r.Post("/complete", interviewHandler.Complete)

				r.With(ai).Get("/questions/{qid}/tips", interviewHandler.Tips)
				r.With(ai).Get("/questions/{qid}/narration", interviewHandler.Narration)
			})
		})

		// 履歴
		r.Route("/api/history", func(r chi.Router) {
			r.Get("/", historyHandler.List)
			r.Get("/summary", historyHandler.Summary)
			r.Get("/{id}", historyHandler.Get)
			r.Delete("/{id}", historyHandler.Delete)
		})

		// ブループリント
		r.Route("/api/blueprints", func(r chi.Router) {
			r.With(ai).Post("/", blueprintHandler.Generate)
			r.Get("/", blueprintHandler.List)
			r.Get("/{id}", blueprintHandler.Get)
		})

		// 求人情報の取り込み
		r.Route("/api/job-descriptions", func(r chi.Router) {
			r.Post("/import", intakeHandler.Import)
			r.Post("/upload", intakeHandler.Upload)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
