package coach

import (
	"context"
	"errors"
	"net"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// FailureClass はAI呼び出し失敗の分類。
type FailureClass string

const (
	// FailureUnauthorized はAPIキー不正・権限不足（401/403）。
	FailureUnauthorized FailureClass = "unauthorized"
	// FailureRateLimited はレート制限（429）。
	FailureRateLimited FailureClass = "rate_limited"
	// FailureUnavailable はプロバイダ側障害・タイムアウト・通信エラー。
	FailureUnavailable FailureClass = "unavailable"
	// FailureBadResponse は応答を解釈できなかった場合。
	FailureBadResponse FailureClass = "bad_response"
	// FailureOffline はAPIキー未設定でプロバイダを使わない場合。
	FailureOffline FailureClass = "offline"
	// FailureUnknown はその他の失敗。
	FailureUnknown FailureClass = "unknown"
)

// ErrBadResponse はAIの応答が期待する形式でない場合のエラー。
var ErrBadResponse = errors.New("ai provider returned an unusable response")

// ClassifyHTTPStatus はプロバイダのHTTPステータスコードを失敗分類に変換する。
func ClassifyHTTPStatus(statusCode int) FailureClass {
	switch {
	case statusCode == 401 || statusCode == 403:
		return FailureUnauthorized
	case statusCode == 429:
		return FailureRateLimited
	case statusCode >= 500 || statusCode == 408:
		return FailureUnavailable
	case statusCode == 400 || statusCode == 422:
		return FailureBadResponse
	default:
		return FailureUnknown
	}
}

// Classify はAI呼び出しのエラーを分類する。
// エラーメッセージの文字列ではなく、ステータスコードとエラー型で判定する。
func Classify(err error) FailureClass {
	if err == nil {
		return ""
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return ClassifyHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return ClassifyHTTPStatus(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, ErrBadResponse) {
		return FailureBadResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureUnavailable
	}
	return FailureUnknown
}

// Retryable は時間をおけば成功しうる失敗かを返す。
func (c FailureClass) Retryable() bool {
	return c == FailureRateLimited || c == FailureUnavailable || c == FailureBadResponse || c == FailureUnknown
}

// APIError は失敗分類をユーザー向けのAPIErrorに変換する。
func (c FailureClass) APIError(operation string) *model.APIError {
	if c == FailureUnauthorized {
		return model.NewAIUnauthorizedError()
	}
	return model.NewAIUnavailableError(operation)
}
