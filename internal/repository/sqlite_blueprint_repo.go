package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// SQLiteBlueprintRepo はローカルモード用のSQLiteブループリントリポジトリ。
type SQLiteBlueprintRepo struct {
	db *sql.DB
}

// NewSQLiteBlueprintRepo はSQLiteBlueprintRepoを生成する。
func NewSQLiteBlueprintRepo(db *sql.DB) *SQLiteBlueprintRepo {
	return &SQLiteBlueprintRepo{db: db}
}

func scanSQLiteBlueprint(sc rowScanner) (*model.Blueprint, error) {
	b := &model.Blueprint{}
	var competencies string
	var isFallback int
	var createdAt, updatedAt int64
	if err := sc.Scan(&b.ID, &b.UserID, &b.Role, &b.RoleKey, &competencies, &isFallback, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	cs, err := decodeCompetencies([]byte(competencies))
	if err != nil {
		return nil, err
	}
	b.Competencies = cs
	b.IsFallback = isFallback != 0
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	return b, nil
}

// FindByID は指定IDのブループリントを取得する。見つからない場合はnilを返す。
func (r *SQLiteBlueprintRepo) FindByID(ctx context.Context, id string) (*model.Blueprint, error) {
	b, err := scanSQLiteBlueprint(r.db.QueryRowContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ブループリントの取得に失敗しました: %w", err)
	}
	return b, nil
}

// FindByRoleKey はユーザーと職種キーでブループリントを検索する。
func (r *SQLiteBlueprintRepo) FindByRoleKey(ctx context.Context, userID, roleKey string) (*model.Blueprint, error) {
	b, err := scanSQLiteBlueprint(r.db.QueryRowContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE user_id = ? AND role_key = ?`,
		userID, roleKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("職種によるブループリントの検索に失敗しました: %w", err)
	}
	return b, nil
}

// Upsert は(user_id, role_key)単位でブループリントを作成または置き換える。
func (r *SQLiteBlueprintRepo) Upsert(ctx context.Context, b *model.Blueprint) error {
	competencies, err := encodeCompetencies(b.Competencies)
	if err != nil {
		return err
	}
	isFallback := 0
	if b.IsFallback {
		isFallback = 1
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blueprints (`+blueprintColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, role_key) DO UPDATE
			 SET role = excluded.role,
			     competencies = excluded.competencies,
			     is_fallback = excluded.is_fallback,
			     updated_at = excluded.updated_at`,
			b.ID, b.UserID, b.Role, b.RoleKey, string(competencies), isFallback,
			toUnix(b.CreatedAt), toUnix(b.UpdatedAt),
		); err != nil {
			return fmt.Errorf("ブループリントの保存に失敗しました: %w", err)
		}
		var id string
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM blueprints WHERE user_id = ? AND role_key = ?`, b.UserID, b.RoleKey,
		).Scan(&id); err != nil {
			return fmt.Errorf("ブループリントIDの取得に失敗しました: %w", err)
		}
		b.ID = id
		return nil
	})
}

// ListByUserID はユーザーのブループリントを職種順で返す。
func (r *SQLiteBlueprintRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Blueprint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE user_id = ? ORDER BY role_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("ブループリント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var blueprints []*model.Blueprint
	for rows.Next() {
		b, err := scanSQLiteBlueprint(rows)
		if err != nil {
			return nil, fmt.Errorf("ブループリントのスキャンに失敗しました: %w", err)
		}
		blueprints = append(blueprints, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブループリントの読み込みに失敗しました: %w", err)
	}
	return blueprints, nil
}

// DeleteByUserID は指定ユーザーの全ブループリントを削除する。
func (r *SQLiteBlueprintRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blueprints WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("ユーザーのブループリント削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BlueprintRepository = (*SQLiteBlueprintRepo)(nil)
