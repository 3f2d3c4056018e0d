package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// newProtectedRouter はセッション → CSRF → レート制限の順に保護したルーターを返す。
func newProtectedRouter(t *testing.T) http.Handler {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{GeneralPerMinute: 100, AIPerMinute: 1, CleanupInterval: time.Minute})
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Get("/api/csrf-token", NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP)
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(validSessionFinder("user-1")))
		r.Use(NewCSRFMiddleware(CSRFConfig{}))
		r.Use(rl.GeneralMiddleware())
		r.Get("/api/interviews", userIDEcho().ServeHTTP)
		r.With(rl.AIMiddleware()).Post("/api/interviews", userIDEcho().ServeHTTP)
	})
	return r
}

func TestMiddlewareChain(t *testing.T) {
	router := newProtectedRouter(t)

	newReq := func(method string, withSession, withCSRF bool) *http.Request {
		req := httptest.NewRequest(method, "/api/interviews", nil)
		if withSession {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
		}
		if withCSRF {
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
			req.Header.Set(csrfHeaderName, "tok")
		}
		return req
	}

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{"GET セッションあり", newReq(http.MethodGet, true, false), http.StatusOK},
		{"GET セッションなし", newReq(http.MethodGet, false, false), http.StatusUnauthorized},
		{"POST CSRFなし", newReq(http.MethodPost, true, false), http.StatusForbidden},
		{"POST CSRFあり", newReq(http.MethodPost, true, true), http.StatusOK},
		{"POST AIレート制限超過", newReq(http.MethodPost, true, true), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddlewareChain_CSRFTokenIsPublic(t *testing.T) {
	w := httptest.NewRecorder()
	newProtectedRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
