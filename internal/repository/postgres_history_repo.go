package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した面接履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

func scanPostgresHistory(sc rowScanner) (*model.SessionHistory, error) {
	h := &model.SessionHistory{}
	var snapshot []byte
	if err := sc.Scan(&h.ID, &h.UserID, &h.SessionID, &h.Role, &h.Score, &snapshot, &h.CompletedAt); err != nil {
		return nil, err
	}
	s, err := decodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}
	h.Snapshot = s
	return h, nil
}

// FindByID は指定IDの履歴を取得する。見つからない場合はnilを返す。
func (r *PostgresHistoryRepo) FindByID(ctx context.Context, id string) (*model.SessionHistory, error) {
	h, err := scanPostgresHistory(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, role, score, snapshot, completed_at
		 FROM session_histories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("面接履歴の取得に失敗しました: %w", err)
	}
	return h, nil
}

// ListByUserID はユーザーの履歴を完了日時とIDの降順で返す。
func (r *PostgresHistoryRepo) ListByUserID(ctx context.Context, userID string, after *HistoryCursor, limit int) ([]*model.SessionHistory, error) {
	query := `SELECT id, user_id, session_id, role, score, snapshot, completed_at
		FROM session_histories WHERE user_id = $1`
	args := []any{userID}
	if after != nil {
		// UUIDの並びは小文字16進表記の文字列順と一致する
		query += ` AND (completed_at < $2 OR (completed_at = $2 AND id::text < $3))`
		args = append(args, after.CompletedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY completed_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("面接履歴一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var histories []*model.SessionHistory
	for rows.Next() {
		h, err := scanPostgresHistory(rows)
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
func (r *PostgresHistoryRepo) ListScores(ctx context.Context, userID string) ([]ScoreRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, score FROM session_histories WHERE user_id = $1 ORDER BY completed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("スコア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectScores(rows)
}

// DeleteByID は指定IDの履歴を削除する。
func (r *PostgresHistoryRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_histories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("面接履歴の削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全履歴を削除する。
func (r *PostgresHistoryRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_histories WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("ユーザーの面接履歴削除に失敗しました: %w", err)
	}
	return nil
}

func collectScores(rows *sql.Rows) ([]ScoreRow, error) {
	var scores []ScoreRow
	for rows.Next() {
		var sr ScoreRow
		if err := rows.Scan(&sr.Role, &sr.Score); err != nil {
			return nil, fmt.Errorf("スコアのスキャンに失敗しました: %w", err)
		}
		scores = append(scores, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スコアの読み込みに失敗しました: %w", err)
	}
	return scores, nil
}

// compile-time interface check
var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
