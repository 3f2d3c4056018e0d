package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// SQLiteInterviewRepo はローカルモード用のSQLite面接セッションリポジトリ。
// 時刻はUnixナノ秒のINTEGER、質問と回答はJSONテキストで保持する。
type SQLiteInterviewRepo struct {
	db *sql.DB
}

// NewSQLiteInterviewRepo はSQLiteInterviewRepoを生成する。
func NewSQLiteInterviewRepo(db *sql.DB) *SQLiteInterviewRepo {
	return &SQLiteInterviewRepo{db: db}
}

const sqliteInterviewColumns = `id, user_id, role, job_description, blueprint_id, questions,
	current_index, answers, status, version, created_at, updated_at`

func scanSQLiteInterview(sc rowScanner) (*model.InterviewSession, error) {
	s := &model.InterviewSession{}
	var blueprintID sql.NullString
	var questions, answers string
	var createdAt, updatedAt int64
	if err := sc.Scan(
		&s.ID, &s.UserID, &s.Role, &s.JobDescription, &blueprintID, &questions,
		&s.CurrentIndex, &answers, &s.Status, &s.Version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	s.BlueprintID = nullStringValue(blueprintID)
	s.CreatedAt = fromUnix(createdAt)
	s.UpdatedAt = fromUnix(updatedAt)
	if err := decodeSessionBody(s, []byte(questions), []byte(answers)); err != nil {
		return nil, err
	}
	return s, nil
}

// Create は面接セッションを作成する。
func (r *SQLiteInterviewRepo) Create(ctx context.Context, s *model.InterviewSession) error {
	questions, answers, err := encodeSessionBody(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (`+sqliteInterviewColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Role, s.JobDescription, nullString(s.BlueprintID), string(questions),
		s.CurrentIndex, string(answers), string(s.Status), s.Version, toUnix(s.CreatedAt), toUnix(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("面接セッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの面接セッションを取得する。見つからない場合はnilを返す。
func (r *SQLiteInterviewRepo) FindByID(ctx context.Context, id string) (*model.InterviewSession, error) {
	s, err := scanSQLiteInterview(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteInterviewColumns+` FROM interview_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("面接セッションの取得に失敗しました: %w", err)
	}
	return s, nil
}

// ListByUserID はユーザーの面接セッションを更新日時の降順で返す。
func (r *SQLiteInterviewRepo) ListByUserID(ctx context.Context, userID string, status model.SessionStatus) ([]*model.InterviewSession, error) {
	query := `SELECT ` + sqliteInterviewColumns + ` FROM interview_sessions WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("面接セッション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectSQLiteInterviews(rows)
}

// Update は面接セッションを楽観ロック付きで更新する。
func (r *SQLiteInterviewRepo) Update(ctx context.Context, s *model.InterviewSession) error {
	return updateSQLiteInterview(ctx, r.db, s)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// updateSQLiteInterview はRETURNINGを使わず影響行数でバージョン競合を判定する。
func updateSQLiteInterview(ctx context.Context, ex execer, s *model.InterviewSession) error {
	questions, answers, err := encodeSessionBody(s)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	result, err := ex.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET role = ?, job_description = ?, blueprint_id = ?, questions = ?,
		     current_index = ?, answers = ?, status = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		s.Role, s.JobDescription, nullString(s.BlueprintID), string(questions),
		s.CurrentIndex, string(answers), string(s.Status), toUnix(now),
		s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("面接セッションの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}

// CompleteWithHistory は面接セッションの完了更新と履歴の作成を同一トランザクションで行う。
func (r *SQLiteInterviewRepo) CompleteWithHistory(ctx context.Context, s *model.InterviewSession, h *model.SessionHistory) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := updateSQLiteInterview(ctx, tx, s); err != nil {
			return err
		}
		h.Snapshot = *s
		snapshot, err := encodeSnapshot(h.Snapshot)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_histories (id, user_id, session_id, role, score, snapshot, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.UserID, h.SessionID, h.Role, h.Score, string(snapshot), toUnix(h.CompletedAt),
		); err != nil {
			return fmt.Errorf("面接履歴の作成に失敗しました: %w", err)
		}
		return nil
	})
}

// ListWithFallbackAnswers は代替分析の回答を含む進行中セッションを古い順に返す。
func (r *SQLiteInterviewRepo) ListWithFallbackAnswers(ctx context.Context, limit int) ([]*model.InterviewSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteInterviewColumns+` FROM interview_sessions
		 WHERE status = 'in_progress'
		   AND EXISTS (
		     SELECT 1 FROM json_each(interview_sessions.answers) a
		     WHERE json_extract(a.value, '$.analysis_status') = 'fallback'
		   )
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("再分析対象セッションの取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectSQLiteInterviews(rows)
}

// DeleteByID は指定IDの面接セッションを削除する。
func (r *SQLiteInterviewRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("面接セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全面接セッションを削除する。
func (r *SQLiteInterviewRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("ユーザーの面接セッション削除に失敗しました: %w", err)
	}
	return nil
}

func collectSQLiteInterviews(rows *sql.Rows) ([]*model.InterviewSession, error) {
	var sessions []*model.InterviewSession
	for rows.Next() {
		s, err := scanSQLiteInterview(rows)
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
var _ InterviewRepository = (*SQLiteInterviewRepo)(nil)
