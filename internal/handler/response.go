// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/interviewcoach/internal/middleware"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限。求人情報の全文を含められる大きさにする。
const maxJSONBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一フォーマットのエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, status int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, status, apiErr)
}

// requireUserID はコンテキストのユーザーIDを返す。無ければ401を書き込んでfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// decodeJSONBody はリクエストボディをdstにデコードする。失敗時は400を書き込んでfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err := dec.Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("JSONボディを解析できません"))
		return false
	}
	return true
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外は内部エラーとして扱い、詳細はログにのみ記録する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInterviewNotFound, model.ErrCodeQuestionNotFound,
		model.ErrCodeHistoryNotFound, model.ErrCodeBlueprintNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRole, model.ErrCodeInvalidQuestionCount, model.ErrCodeInvalidAnswer,
		model.ErrCodeInvalidIndex, model.ErrCodeInvalidStatus, model.ErrCodeInvalidAudio,
		model.ErrCodeInvalidURL, model.ErrCodeInvalidCursor, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeSessionNotActive, model.ErrCodeSessionConflict, model.ErrCodeNoMoreQuestions:
		return http.StatusConflict
	case model.ErrCodeAudioTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeSSRFBlocked, model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeImportFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnsupportedDocument:
		return http.StatusUnsupportedMediaType
	case model.ErrCodeAIUnauthorized:
		return http.StatusBadGateway
	case model.ErrCodeAIUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
