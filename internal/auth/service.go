// Package auth はGoogleログインとログインセッションの発行・破棄を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
)

// ErrSessionNotFound はセッションが存在しないか期限切れであることを表す。
var ErrSessionNotFound = errors.New("login session not found or expired")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge time.Duration
}

// Service はログインとログインセッションを扱う。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		logger:      logger,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、ログインセッションを発行する。
// 初回ログインではユーザーとidentityを同一トランザクションで作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("認可コードの交換に失敗しました: %w", err)
	}

	userID, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ログインセッションの作成に失敗しました: %w", err)
	}
	return session, nil
}

// resolveUser はidentityから既存ユーザーを特定し、いなければ作成する。
func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("identityの検索に失敗しました: %w", err)
	}
	if identity != nil {
		s.logger.Info("既存ユーザーがログインしました",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:        uuid.NewString(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity = &model.Identity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		return "", fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("新規ユーザーを作成しました",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// Logout はログインセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("ログインセッションの削除に失敗しました: %w", err)
	}
	return nil
}

// GetCurrentUser はログインセッションからユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ログインセッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// SessionMaxAge はログインセッションの有効期間を返す。Cookieの寿命に使う。
func (s *Service) SessionMaxAge() time.Duration {
	return s.config.SessionMaxAge
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	id, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// randomToken は32バイトの乱数を16進文字列で返す。セッションIDとOAuthのstateに使う。
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("乱数の生成に失敗しました: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewState はOAuthのstateパラメータ用の乱数を返す。
func (s *Service) NewState() (string, error) {
	return randomToken()
}
