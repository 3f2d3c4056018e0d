package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// SQLiteHistoryRepo はローカルモード用のSQLite面接履歴リポジトリ。
type SQLiteHistoryRepo struct {
	db *sql.DB
}

// NewSQLiteHistoryRepo はSQLiteHistoryRepoを生成する。
func NewSQLiteHistoryRepo(db *sql.DB) *SQLiteHistoryRepo {
	return &SQLiteHistoryRepo{db: db}
}

func scanSQLiteHistory(sc rowScanner) (*model.SessionHistory, error) {
	h := &model.SessionHistory{}
	var snapshot string
	var completedAt int64
	if err := sc.Scan(&h.ID, &h.UserID, &h.SessionID, &h.Role, &h.Score, &snapshot, &completedAt); err != nil {
		return nil, err
	}
	s, err := decodeSnapshot([]byte(snapshot))
	if err != nil {
		return nil, err
	}
	h.Snapshot = s
	h.CompletedAt = fromUnix(completedAt)
	return h, nil
}

// FindByID は指定IDの履歴を取得する。見つからない場合はnilを返す。
func (r *SQLiteHistoryRepo) FindByID(ctx context.Context, id string) (*model.SessionHistory, error) {
	h, err := scanSQLiteHistory(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, role, score, snapshot, completed_at
		 FROM session_histories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("面接履歴の取得に失敗しました: %w", err)
	}
	return h, nil
}

// ListByUserID はユーザーの履歴を完了日時とIDの降順で返す。
func (r *SQLiteHistoryRepo) ListByUserID(ctx context.Context, userID string, after *HistoryCursor, limit int) ([]*model.SessionHistory, error) {
	query := `SELECT id, user_id, session_id, role, score, snapshot, completed_at
		FROM session_histories WHERE user_id = ?`
	args := []any{userID}
	if after != nil {
		completedAt := toUnix(after.CompletedAt)
		query += ` AND (completed_at < ? OR (completed_at = ? AND id < ?))`
		args = append(args, completedAt, completedAt, after.ID)
	}
	query += ` ORDER BY completed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("面接履歴一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var histories []*model.SessionHistory
	for rows.Next() {
		h, err := scanSQLiteHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("面接履歴のスキャンに失敗しました: %w", err)
		}
		histories = append(histories, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("面接履歴の読み込みに失敗しました: %w", err)
	}
	return histories, nil
}

// ListScores はユーザーの全履歴の職種とスコアを返す。
func (r *SQLiteHistoryRepo) ListScores(ctx context.Context, userID string) ([]ScoreRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, score FROM session_histories WHERE user_id = ? ORDER BY completed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("スコア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectScores(rows)
}

// DeleteByID は指定IDの履歴を削除する。
func (r *SQLiteHistoryRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_histories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("面接履歴の削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全履歴を削除する。
func (r *SQLiteHistoryRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_histories WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("ユーザーの面接履歴削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ HistoryRepository = (*SQLiteHistoryRepo)(nil)
