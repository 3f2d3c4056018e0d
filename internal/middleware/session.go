// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// SessionCookieName はログインセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// ErrNoUserID はコンテキストにユーザーIDが無いことを表す。
var ErrNoUserID = errors.New("user ID not found in context")

type contextKey string

var (
	userIDContextKey      = contextKey("user_id")
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo は内側のミドルウェアで判明した値をアクセスログへ渡す。
type requestInfo struct {
	userID string
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoContextKey, info), info
}

// SessionFinder はセッションの検索に必要なインターフェース。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieのログインセッションを検証し、
// ユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w)
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("ログインセッションの取得に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if session == nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))
		})
	}
}

// NewGuestMiddleware はすべてのリクエストを固定ユーザーとして扱うミドルウェアを返す。
// ログインのないローカルモードで使う。
func NewGuestMiddleware(userID string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserID
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// アクセスログ用の情報がコンテキストにあればそちらにも記録する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
