package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
)

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.findByIDFn(ctx, id)
}

func validSessionFinder(userID string) *mockSessionFinder {
	return &mockSessionFinder{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			if id != "valid-session" {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
}

// userIDEcho はコンテキストのユーザーIDをレスポンスに書き出すハンドラー。
func userIDEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(userID))
	})
}

func TestSessionMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		finder     *mockSessionFinder
		wantStatus int
		wantBody   string
	}{
		{"有効なセッション", "valid-session", validSessionFinder("user-1"), http.StatusOK, "user-1"},
		{"Cookieなし", "", validSessionFinder("user-1"), http.StatusUnauthorized, ""},
		{"期限切れ・不明なセッション", "unknown", validSessionFinder("user-1"), http.StatusUnauthorized, ""},
		{
			"セッション検索の失敗", "valid-session",
			&mockSessionFinder{findByIDFn: func(_ context.Context, _ string) (*model.Session, error) {
				return nil, errors.New("db down")
			}},
			http.StatusInternalServerError, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/interviews", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			NewSessionMiddleware(tt.finder)(userIDEcho()).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSessionMiddleware_UnauthorizedBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewSessionMiddleware(validSessionFinder("user-1"))(userIDEcho()).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	body := decodeError(t, w)
	if body.Code != model.ErrCodeUnauthorized || body.Category != "auth" {
		t.Errorf("body = %+v", body)
	}
}

func TestGuestMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	NewGuestMiddleware(model.GuestUserID)(userIDEcho()).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Body.String() != model.GuestUserID {
		t.Errorf("body = %q, want guest user ID", w.Body.String())
	}
}

func TestUserIDFromContext_Missing(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); !errors.Is(err, ErrNoUserID) {
		t.Errorf("err = %v, want ErrNoUserID", err)
	}
}
