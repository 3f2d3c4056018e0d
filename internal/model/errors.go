// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, interview, ai, intake, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRole          = "INVALID_ROLE"
	ErrCodeInvalidQuestionCount = "INVALID_QUESTION_COUNT"
	ErrCodeInvalidAnswer        = "INVALID_ANSWER"
	ErrCodeInterviewNotFound    = "INTERVIEW_NOT_FOUND"
	ErrCodeQuestionNotFound     = "QUESTION_NOT_FOUND"
	ErrCodeSessionNotActive     = "SESSION_NOT_ACTIVE"
	ErrCodeSessionConflict      = "SESSION_CONFLICT"
	ErrCodeNoMoreQuestions      = "NO_MORE_QUESTIONS"
	ErrCodeInvalidIndex         = "INVALID_QUESTION_INDEX"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeHistoryNotFound      = "HISTORY_NOT_FOUND"
	ErrCodeBlueprintNotFound    = "BLUEPRINT_NOT_FOUND"
	ErrCodeAIUnauthorized       = "AI_UNAUTHORIZED"
	ErrCodeAIUnavailable        = "AI_UNAVAILABLE"
	ErrCodeAudioTooLarge        = "AUDIO_TOO_LARGE"
	ErrCodeInvalidAudio         = "INVALID_AUDIO"
	ErrCodeInvalidURL           = "INVALID_URL"
	ErrCodeSSRFBlocked          = "SSRF_BLOCKED"
	ErrCodeImportFailed         = "IMPORT_FAILED"
	ErrCodeUnsupportedDocument  = "UNSUPPORTED_DOCUMENT"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeInvalidCursor        = "INVALID_CURSOR"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeCSRFInvalid          = "CSRF_INVALID"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewInvalidRoleError は職種指定が不正な場合のエラーを生成する。
func NewInvalidRoleError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("職種の指定が不正です: %s", reason),
		Category: "validation",
		Action:   "職種を1〜120文字で入力してください。",
	}
}

// NewInvalidQuestionCountError は質問数が範囲外の場合のエラーを生成する。
func NewInvalidQuestionCountError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuestionCount,
		Message:  fmt.Sprintf("無効な質問数です: %d", count),
		Category: "validation",
		Action:   "質問数は1から15の範囲で指定してください。",
	}
}

// NewInvalidAnswerError は回答内容が不正な場合のエラーを生成する。
func NewInvalidAnswerError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAnswer,
		Message:  fmt.Sprintf("回答が不正です: %s", reason),
		Category: "validation",
		Action:   "回答を入力してから送信してください。",
	}
}

// NewInterviewNotFoundError は面接セッション未検出エラーを生成する。
func NewInterviewNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeInterviewNotFound,
		Message:  fmt.Sprintf("指定された面接セッションが見つかりません: %s", sessionID),
		Category: "interview",
		Action:   "面接セッションIDを確認してください。",
	}
}

// NewQuestionNotFoundError は質問未検出エラーを生成する。
func NewQuestionNotFoundError(questionID string) *APIError {
	return &APIError{
		Code:     ErrCodeQuestionNotFound,
		Message:  fmt.Sprintf("指定された質問が見つかりません: %s", questionID),
		Category: "interview",
		Action:   "質問IDを確認してください。",
	}
}

// NewSessionNotActiveError は完了済み・放棄済みセッションへの変更操作のエラーを生成する。
func NewSessionNotActiveError(status SessionStatus) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotActive,
		Message:  fmt.Sprintf("この面接セッションは変更できません（状態: %s）。", status),
		Category: "interview",
		Action:   "新しい面接セッションを開始してください。",
	}
}

// NewSessionConflictError は楽観ロックの競合エラーを生成する。
func NewSessionConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionConflict,
		Message:  "面接セッションが別の操作で更新されました。",
		Category: "interview",
		Action:   "最新の状態を読み込み直してから再度お試しください。",
	}
}

// NewNoMoreQuestionsError は先頭・末尾を越えて移動しようとした場合のエラーを生成する。
func NewNoMoreQuestionsError(direction string) *APIError {
	return &APIError{
		Code:     ErrCodeNoMoreQuestions,
		Message:  fmt.Sprintf("これ以上移動できる質問がありません（%s）。", direction),
		Category: "interview",
		Action:   "すべての質問に回答したら面接を完了してください。",
	}
}

// NewInvalidIndexError は質問インデックスが範囲外の場合のエラーを生成する。
func NewInvalidIndexError(index, total int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidIndex,
		Message:  fmt.Sprintf("無効な質問番号です: %d（質問数: %d）", index, total),
		Category: "validation",
		Action:   fmt.Sprintf("質問番号は0から%dの範囲で指定してください。", max(total-1, 0)),
	}
}

// NewInvalidStatusError は無効なステータスフィルタのエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには in_progress、completed、abandoned のいずれかを指定してください。",
	}
}

// NewHistoryNotFoundError は履歴未検出エラーを生成する。
func NewHistoryNotFoundError(historyID string) *APIError {
	return &APIError{
		Code:     ErrCodeHistoryNotFound,
		Message:  fmt.Sprintf("指定された履歴が見つかりません: %s", historyID),
		Category: "interview",
		Action:   "履歴IDを確認してください。",
	}
}

// NewBlueprintNotFoundError はブループリント未検出エラーを生成する。
func NewBlueprintNotFoundError(blueprintID string) *APIError {
	return &APIError{
		Code:     ErrCodeBlueprintNotFound,
		Message:  fmt.Sprintf("指定されたブループリントが見つかりません: %s", blueprintID),
		Category: "interview",
		Action:   "ブループリントIDを確認するか、職種から再生成してください。",
	}
}

// NewAIUnauthorizedError はAIプロバイダの認証失敗エラーを生成する。
func NewAIUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeAIUnauthorized,
		Message:  "AIサービスの認証に失敗しました。",
		Category: "ai",
		Action:   "管理者にAPIキーの設定を確認するよう依頼してください。",
	}
}

// NewAIUnavailableError はAIプロバイダが利用できない場合のエラーを生成する。
func NewAIUnavailableError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeAIUnavailable,
		Message:  fmt.Sprintf("AIサービスを一時的に利用できません: %s", operation),
		Category: "ai",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAudioTooLargeError は録音データのサイズ超過エラーを生成する。
func NewAudioTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeAudioTooLarge,
		Message:  fmt.Sprintf("録音データが大きすぎます（上限: %dバイト）。", limit),
		Category: "validation",
		Action:   "回答を短くして録音し直してください。",
	}
}

// NewInvalidAudioError は録音データが不正な場合のエラーを生成する。
func NewInvalidAudioError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAudio,
		Message:  fmt.Sprintf("録音データが不正です: %s", reason),
		Category: "validation",
		Action:   "録音し直してから再度送信してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されている求人ページのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewImportFailedError は求人情報の取り込み失敗エラーを生成する。
func NewImportFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImportFailed,
		Message:  fmt.Sprintf("求人情報の取り込みに失敗しました: %s", reason),
		Category: "intake",
		Action:   "URLが正しいか確認するか、求人内容を直接貼り付けてください。",
	}
}

// NewUnsupportedDocumentError は取り込めない形式のドキュメントのエラーを生成する。
func NewUnsupportedDocumentError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedDocument,
		Message:  fmt.Sprintf("対応していない形式です: %s", contentType),
		Category: "intake",
		Action:   "HTMLページ、RSS/Atomフィード、PDFのいずれかを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCursorError はページネーションのカーソルが不正な場合のエラーを生成する。
func NewInvalidCursorError(cursor string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソルです: %s", cursor),
		Category: "validation",
		Action:   "一覧の先頭から読み込み直してください。",
	}
}

// NewInvalidRequestError はリクエストボディを解釈できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は未ログインまたはセッション切れのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
