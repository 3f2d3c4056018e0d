// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// ErrVersionConflict は楽観ロックのバージョン不一致を表す。
var ErrVersionConflict = errors.New("interview session version conflict")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、interview_sessions、session_histories、blueprintsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// InterviewRepository は面接セッションの永続化インターフェース。
type InterviewRepository interface {
	// Create は面接セッションを作成する。
	Create(ctx context.Context, session *model.InterviewSession) error

	// FindByID は指定IDの面接セッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.InterviewSession, error)

	// ListByUserID はユーザーの面接セッションを更新日時の降順で返す。
	// statusが空文字の場合は全状態を返す。
	ListByUserID(ctx context.Context, userID string, status model.SessionStatus) ([]*model.InterviewSession, error)

	// Update は面接セッションを更新する。
	// session.Versionが保存済みのバージョンと一致しない場合はErrVersionConflictを返す。
	// 成功時はsession.Versionとsession.UpdatedAtを更新後の値に書き換える。
	Update(ctx context.Context, session *model.InterviewSession) error

	// CompleteWithHistory は面接セッションの完了更新と履歴の作成を同一トランザクションで行う。
	CompleteWithHistory(ctx context.Context, session *model.InterviewSession, history *model.SessionHistory) error

	// ListWithFallbackAnswers は代替分析の回答を含む進行中セッションを古い順に最大limit件返す。
	ListWithFallbackAnswers(ctx context.Context, limit int) ([]*model.InterviewSession, error)

	// DeleteByID は指定IDの面接セッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全面接セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// HistoryRepository は面接履歴の永続化インターフェース。
type HistoryRepository interface {
	// FindByID は指定IDの履歴を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SessionHistory, error)

	// ListByUserID はユーザーの履歴を完了日時とIDの降順で返す。
	// afterが非nilの場合はその位置より後ろの履歴のみを返す（カーソルページネーション）。
	ListByUserID(ctx context.Context, userID string, after *HistoryCursor, limit int) ([]*model.SessionHistory, error)

	// ListScores はユーザーの全履歴の職種とスコアを返す。スナップショットは含まない。
	ListScores(ctx context.Context, userID string) ([]ScoreRow, error)

	// DeleteByID は指定IDの履歴を削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全履歴を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// HistoryCursor は履歴一覧のページ位置。完了日時が同じ履歴はIDの降順で並ぶ。
// IDが空の場合は完了日時だけで比較する。
type HistoryCursor struct {
	CompletedAt time.Time
	ID          string
}

// ScoreRow は集計用の履歴1件分の職種とスコア。
type ScoreRow struct {
	Role  string
	Score int
}

// BlueprintRepository はブループリントの永続化インターフェース。
type BlueprintRepository interface {
	// FindByID は指定IDのブループリントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Blueprint, error)

	// FindByRoleKey はユーザーと正規化済み職種キーでブループリントを検索する。
	// 見つからない場合はnilを返す。
	FindByRoleKey(ctx context.Context, userID, roleKey string) (*model.Blueprint, error)

	// Upsert は(user_id, role_key)単位でブループリントを作成または置き換える。
	// 既存行がある場合はblueprint.IDを既存のIDに書き換える。
	Upsert(ctx context.Context, blueprint *model.Blueprint) error

	// ListByUserID はユーザーのブループリントを職種順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Blueprint, error)

	// DeleteByUserID は指定ユーザーの全ブループリントを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
