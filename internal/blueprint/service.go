// Package blueprint は職種ごとの評価観点（ブループリント）を管理する。
package blueprint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
)

// Generator は評価観点を生成する。coach.Coachが実装する。
type Generator interface {
	Blueprint(ctx context.Context, req coach.BlueprintRequest) ([]model.Competency, coach.FailureClass)
}

// Service はブループリントのサービス層。
type Service struct {
	repo   repository.BlueprintRepository
	gen    Generator
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.BlueprintRepository, gen Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, gen: gen, logger: logger, now: time.Now}
}

// RoleKey は職種名を検索用のキーに正規化する。
func RoleKey(role string) string {
	return strings.ToLower(strings.Join(strings.Fields(role), " "))
}

// GetOrGenerate は保存済みのブループリントを返す。
// 未作成、または前回AIを利用できず定型の評価観点だった場合は生成し直す。
func (s *Service) GetOrGenerate(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error) {
	role, err := model.NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByRoleKey(ctx, userID, RoleKey(role))
	if err != nil {
		return nil, fmt.Errorf("ブループリントの取得に失敗しました: %w", err)
	}
	if existing != nil && !existing.IsFallback {
		return existing, nil
	}
	bp, err := s.generate(ctx, userID, role, jobDescription)
	if err != nil {
		return nil, err
	}
	// 再生成しても定型のままなら既存の行をそのまま使う
	if existing != nil && bp.IsFallback {
		return existing, nil
	}
	return s.save(ctx, bp)
}

// Generate はブループリントを生成し直し、既存のものを置き換える。
func (s *Service) Generate(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error) {
	role, err := model.NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	bp, err := s.generate(ctx, userID, role, jobDescription)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, bp)
}

func (s *Service) generate(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error) {
	competencies, class := s.gen.Blueprint(ctx, coach.BlueprintRequest{Role: role, JobDescription: jobDescription})
	if len(competencies) == 0 {
		return nil, fmt.Errorf("評価観点を生成できませんでした: %s", class)
	}
	now := s.now()
	return &model.Blueprint{
		ID:           uuid.New().String(),
		UserID:       userID,
		Role:         role,
		RoleKey:      RoleKey(role),
		Competencies: competencies,
		IsFallback:   class != "",
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Service) save(ctx context.Context, bp *model.Blueprint) (*model.Blueprint, error) {
	if err := s.repo.Upsert(ctx, bp); err != nil {
		return nil, fmt.Errorf("ブループリントの保存に失敗しました: %w", err)
	}
	s.logger.Info("ブループリントを保存しました",
		slog.String("blueprint_id", bp.ID),
		slog.String("role", bp.Role),
		slog.Bool("is_fallback", bp.IsFallback),
	)
	return bp, nil
}

// Get は指定IDのブループリントを返す。他ユーザーのものは存在しない扱いにする。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Blueprint, error) {
	bp, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ブループリントの取得に失敗しました: %w", err)
	}
	if bp == nil || bp.UserID != userID {
		return nil, model.NewBlueprintNotFoundError(id)
	}
	return bp, nil
}

// List はユーザーのブループリント一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Blueprint, error) {
	bps, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ブループリント一覧の取得に失敗しました: %w", err)
	}
	return bps, nil
}
