package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// PostgresBlueprintRepo はPostgreSQLを使用したブループリントリポジトリ。
type PostgresBlueprintRepo struct {
	db *sql.DB
}

// NewPostgresBlueprintRepo はPostgresBlueprintRepoを生成する。
func NewPostgresBlueprintRepo(db *sql.DB) *PostgresBlueprintRepo {
	return &PostgresBlueprintRepo{db: db}
}

const blueprintColumns = `id, user_id, role, role_key, competencies, is_fallback, created_at, updated_at`

func scanPostgresBlueprint(sc rowScanner) (*model.Blueprint, error) {
	b := &model.Blueprint{}
	var competencies []byte
	if err := sc.Scan(&b.ID, &b.UserID, &b.Role, &b.RoleKey, &competencies, &b.IsFallback, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	cs, err := decodeCompetencies(competencies)
	if err != nil {
		return nil, err
	}
	b.Competencies = cs
	return b, nil
}

// FindByID は指定IDのブループリントを取得する。見つからない場合はnilを返す。
func (r *PostgresBlueprintRepo) FindByID(ctx context.Context, id string) (*model.Blueprint, error) {
	b, err := scanPostgresBlueprint(r.db.QueryRowContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ブループリントの取得に失敗しました: %w", err)
	}
	return b, nil
}

// FindByRoleKey はユーザーと職種キーでブループリントを検索する。
func (r *PostgresBlueprintRepo) FindByRoleKey(ctx context.Context, userID, roleKey string) (*model.Blueprint, error) {
	b, err := scanPostgresBlueprint(r.db.QueryRowContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE user_id = $1 AND role_key = $2`,
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
func (r *PostgresBlueprintRepo) Upsert(ctx context.Context, b *model.Blueprint) error {
	competencies, err := encodeCompetencies(b.Competencies)
	if err != nil {
		return err
	}
	var id string
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO blueprints (`+blueprintColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, role_key) DO UPDATE
		 SET role = EXCLUDED.role,
		     competencies = EXCLUDED.competencies,
		     is_fallback = EXCLUDED.is_fallback,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		b.ID, b.UserID, b.Role, b.RoleKey, string(competencies), b.IsFallback, b.CreatedAt, b.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("ブループリントの保存に失敗しました: %w", err)
	}
	b.ID = id
	return nil
}

// ListByUserID はユーザーのブループリントを職種順で返す。
func (r *PostgresBlueprintRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Blueprint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE user_id = $1 ORDER BY role_key`, userID)
	if err != nil {
		return nil, fmt.Errorf("ブループリント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var blueprints []*model.Blueprint
	for rows.Next() {
		b, err := scanPostgresBlueprint(rows)
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
func (r *PostgresBlueprintRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blueprints WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("ユーザーのブループリント削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BlueprintRepository = (*PostgresBlueprintRepo)(nil)
