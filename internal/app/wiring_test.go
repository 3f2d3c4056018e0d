package app

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/interviewcoach/internal/config"
	"github.com/hitoshi/interviewcoach/internal/database"
	"github.com/hitoshi/interviewcoach/internal/middleware"
)

// localConfig はSQLiteのローカルモード用の設定を返す。
func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabaseURL:        "sqlite://" + filepath.Join(t.TempDir(), "local.db"),
		BaseURL:            "http://localhost:8080",
		SessionMaxAge:      86400,
		AITimeout:          time.Second,
		NarrationCacheSize: 8,
		AudioMaxSize:       1024 * 1024,
		ImportTimeout:      time.Second,
		ImportMaxSize:      1024 * 1024,
		RateLimitGeneral:   60,
		RateLimitAI:        10,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
}

// openLocalDB はマイグレーション済みのSQLiteを開く。
func openLocalDB(t *testing.T, cfg *config.Config) *sql.DB {
	t.Helper()
	db, err := openDatabase(cfg)
	if err != nil {
		t.Fatalf("openDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestBuildComponents_LocalMode(t *testing.T) {
	cfg := localConfig(t)
	db := openLocalDB(t, cfg)

	c, err := buildComponents(cfg, db, discardLogger())
	if err != nil {
		t.Fatalf("buildComponents failed: %v", err)
	}
	if c.dialect != database.DialectSQLite {
		t.Errorf("dialect = %q, want sqlite", c.dialect)
	}
	if c.auth != nil || c.sessionRepo != nil {
		t.Error("ローカルモードで認証サービスが構成されている")
	}
	if c.coach.Online() {
		t.Error("APIキーなしでオンラインになっている")
	}
}

func TestBuildComponents_InvalidQuestionBankPath(t *testing.T) {
	cfg := localConfig(t)
	cfg.QuestionBankPath = filepath.Join(t.TempDir(), "missing.yaml")
	db := openLocalDB(t, cfg)

	if _, err := buildComponents(cfg, db, discardLogger()); err == nil {
		t.Fatal("存在しない定型コンテンツのパスでエラーにならない")
	}
}

func TestLocalModeRouter_ServesGuestRequests(t *testing.T) {
	cfg := localConfig(t)
	db := openLocalDB(t, cfg)

	c, err := buildComponents(cfg, db, discardLogger())
	if err != nil {
		t.Fatalf("buildComponents failed: %v", err)
	}
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute: cfg.RateLimitGeneral,
		AIPerMinute:      cfg.RateLimitAI,
	})
	defer rl.Stop()

	router := newRouterDeps(cfg, c, db, rl, discardLogger())
	if router.SessionFinder != nil || router.AuthService != nil {
		t.Fatal("ローカルモードでログインが有効になっている")
	}
	srv := httptest.NewServer(handlerFor(t, router))
	defer srv.Close()

	t.Run("ヘルスチェック", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["ai"] != "offline" {
			t.Errorf("ai = %q, want offline", body["ai"])
		}
	})

	t.Run("ゲストとして一覧を取得できる", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/interviews")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("ログインルートは存在しない", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/auth/me")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("メトリクスを公開する", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})
}
