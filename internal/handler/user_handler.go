package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/interviewcoach/internal/middleware"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw は履歴・面接セッション・ブループリント・ログインセッションとユーザーを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Withdraw はユーザーの退会処理を実行し、ログインセッションのCookieを破棄する。
// ローカルモードではゲストのデータだけが消える。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	// ローカルモードにはログインセッションがないが、残っていても害はないため常に消す
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
