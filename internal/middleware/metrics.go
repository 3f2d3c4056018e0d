package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// StatusRecorder はHTTPステータスコードを記録するインターフェース。
type StatusRecorder interface {
	RecordHTTPStatus(code int)
}

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録するミドルウェアを返す。
func NewMetricsMiddleware(recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			recorder.RecordHTTPStatus(responseStatus(ww))
		})
	}
}
