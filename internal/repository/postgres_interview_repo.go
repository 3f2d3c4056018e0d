package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// PostgresInterviewRepo はPostgreSQLを使用した面接セッションリポジトリ。
// 質問と回答はJSONB列に保持する。
type PostgresInterviewRepo struct {
	db *sql.DB
}

// NewPostgresInterviewRepo はPostgresInterviewRepoを生成する。
func NewPostgresInterviewRepo(db *sql.DB) *PostgresInterviewRepo {
	return &PostgresInterviewRepo{db: db}
}

const pgInterviewColumns = `id, user_id, role, job_description, blueprint_id, questions,
	current_index, answers, status, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresInterview(sc rowScanner) (*model.InterviewSession, error) {
	s := &model.InterviewSession{}
	var blueprintID sql.NullString
	var questions, answers []byte
	if err := sc.Scan(
		&s.ID, &s.UserID, &s.Role, &s.JobDescription, &blueprintID, &questions,
		&s.CurrentIndex, &answers, &s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.BlueprintID = nullStringValue(blueprintID)
	if err := decodeSessionBody(s, questions, answers); err != nil {
		return nil, err
	}
	return s, nil
}

// Create は面接セッションを作成する。
func (r *PostgresInterviewRepo) Create(ctx context.Context, s *model.InterviewSession) error {
	questions, answers, err := encodeSessionBody(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (`+pgInterviewColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.UserID, s.Role, s.JobDescription, nullString(s.BlueprintID), string(questions),
		s.CurrentIndex, string(answers), s.Status, s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("面接セッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの面接セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByID(ctx context.Context, id string) (*model.InterviewSession, error) {
	s, err := scanPostgresInterview(r.db.QueryRowContext(ctx,
		`SELECT `+pgInterviewColumns+` FROM interview_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("面接セッションの取得に失敗しました: %w", err)
	}
	return s, nil
}

// ListByUserID はユーザーの面接セッションを更新日時の降順で返す。
func (r *PostgresInterviewRepo) ListByUserID(ctx context.Context, userID string, status model.SessionStatus) ([]*model.InterviewSession, error) {
	query := `SELECT ` + pgInterviewColumns + ` FROM interview_sessions WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("面接セッション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectPostgresInterviews(rows)
}

// Update は面接セッションを楽観ロック付きで更新する。
func (r *PostgresInterviewRepo) Update(ctx context.Context, s *model.InterviewSession) error {
	return updatePostgresInterview(ctx, r.db, s)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func updatePostgresInterview(ctx context.Context, q rowQuerier, s *model.InterviewSession) error {
	questions, answers, err := encodeSessionBody(s)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	var newVersion int
	err = q.QueryRowContext(ctx,
		`UPDATE interview_sessions
		 SET role = $2, job_description = $3, blueprint_id = $4, questions = $5,
		     current_index = $6, answers = $7, status = $8,
		     version = version + 1, updated_at = $9
		 WHERE id = $1 AND version = $10
		 RETURNING version`,
		s.ID, s.Role, s.JobDescription, nullString(s.BlueprintID), string(questions),
		s.CurrentIndex, string(answers), s.Status, now, s.Version,
	).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("面接セッションの更新に失敗しました: %w", err)
	}
	s.Version = newVersion
	s.UpdatedAt = now
	return nil
}

// CompleteWithHistory は面接セッションの完了更新と履歴の作成を同一トランザクションで行う。
func (r *PostgresInterviewRepo) CompleteWithHistory(ctx context.Context, s *model.InterviewSession, h *model.SessionHistory) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := updatePostgresInterview(ctx, tx, s); err != nil {
			return err
		}
		h.Snapshot = *s
		snapshot, err := encodeSnapshot(h.Snapshot)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_histories (id, user_id, session_id, role, score, snapshot, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			h.ID, h.UserID, h.SessionID, h.Role, h.Score, string(snapshot), h.CompletedAt,
		); err != nil {
			return fmt.Errorf("面接履歴の作成に失敗しました: %w", err)
		}
		return nil
	})
}

// ListWithFallbackAnswers は代替分析の回答を含む進行中セッションを古い順に返す。
func (r *PostgresInterviewRepo) ListWithFallbackAnswers(ctx context.Context, limit int) ([]*model.InterviewSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgInterviewColumns+` FROM interview_sessions s
		 WHERE s.status = 'in_progress'
		   AND EXISTS (
		     SELECT 1 FROM jsonb_each(s.answers) a
		     WHERE a.value->>'analysis_status' = 'fallback'
		   )
		 ORDER BY s.updated_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("再分析対象セッションの取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectPostgresInterviews(rows)
}

// DeleteByID は指定IDの面接セッションを削除する。
func (r *PostgresInterviewRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("面接セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全面接セッションを削除する。
func (r *PostgresInterviewRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("ユーザーの面接セッション削除に失敗しました: %w", err)
	}
	return nil
}

func collectPostgresInterviews(rows *sql.Rows) ([]*model.InterviewSession, error) {
	var sessions []*model.InterviewSession
	for rows.Next() {
		s, err := scanPostgresInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("面接セッションのスキャンに失敗しました: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("面接セッションの読み込みに失敗しました: %w", err)
	}
	return sessions, nil
}

// compile-time interface check
var _ InterviewRepository = (*PostgresInterviewRepo)(nil)
