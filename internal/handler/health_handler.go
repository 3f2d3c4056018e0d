package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// HealthChecker はDB接続の疎通確認インターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。checkerがnilならDBは確認しない。
// GET /health
func NewHealthHandler(checker HealthChecker, aiOnline bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := "offline"
		if aiOnline {
			mode = "online"
		}
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewInternalError())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "ai": mode})
	}
}
