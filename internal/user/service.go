// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
)

// DataDeleter はユーザーに紐付くデータの一括削除インターフェース。
type DataDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Deleters は退会時に削除するユーザーデータ。nilのものは削除しない。
type Deleters struct {
	Histories  DataDeleter
	Interviews DataDeleter
	Blueprints DataDeleter
	Sessions   DataDeleter
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	deleters Deleters
	logger   *slog.Logger
}

// NewService はServiceを生成する。
// userRepoがnilの場合（ローカルモード）はユーザー行を持たず、データの削除のみを行う。
func NewService(userRepo repository.UserRepository, deleters Deleters, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{userRepo: userRepo, deleters: deleters, logger: logger}
}

// Withdraw はユーザーの退会処理を実行する。
// 履歴・面接セッション・ブループリント・ログインセッションを並行して削除した後にユーザーを削除する。
// テーブル間に外部キーがないため削除順序は問わない。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if s.userRepo != nil {
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			return model.NewUserNotFoundError()
		}
	}

	s.logger.Info("退会処理を開始します", slog.String("user_id", userID))

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range []struct {
		name    string
		deleter DataDeleter
	}{
		{"面接履歴", s.deleters.Histories},
		{"面接セッション", s.deleters.Interviews},
		{"ブループリント", s.deleters.Blueprints},
		{"ログインセッション", s.deleters.Sessions},
	} {
		if d.deleter == nil {
			continue
		}
		g.Go(func() error {
			if err := d.deleter.DeleteByUserID(gctx, userID); err != nil {
				return fmt.Errorf("%sの削除に失敗しました: %w", d.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if s.userRepo != nil {
		if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
			return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
		}
	}

	s.logger.Info("退会処理が完了しました", slog.String("user_id", userID))
	return nil
}
