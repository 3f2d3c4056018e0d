// Package interview は模擬面接セッションの進行・回答・採点を扱う。
//
// セッションは質問の並び・現在位置・質問IDごとの回答を持つ状態機械で、
// 更新はすべてバージョン番号による楽観ロックで保存される。
package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
	"github.com/hitoshi/interviewcoach/internal/security"
)

// AICoach はAIによる質問生成・分析・アドバイス・文字起こしを提供する。coach.Coachが実装する。
type AICoach interface {
	Online() bool
	Questions(ctx context.Context, req coach.QuestionRequest) ([]model.Question, coach.FailureClass)
	Analyze(ctx context.Context, req coach.AnalysisRequest) *model.Analysis
	Tips(ctx context.Context, req coach.TipsRequest) *model.CoachingTips
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Narrator は質問文の読み上げ音声を提供する。narration.Serviceが実装する。
type Narrator interface {
	Get(ctx context.Context, text string) ([]byte, error)
	Prefetch(text string)
}

// BlueprintProvider は職種の評価観点を提供する。blueprint.Serviceが実装する。
type BlueprintProvider interface {
	GetOrGenerate(ctx context.Context, userID, role, jobDescription string) (*model.Blueprint, error)
	Get(ctx context.Context, userID, id string) (*model.Blueprint, error)
}

// Recorder はセッションの開始・完了を記録する。
type Recorder interface {
	RecordSessionStarted()
	RecordSessionCompleted(score int)
}

// Config はセッションの制限値。
type Config struct {
	DefaultQuestionCount   int
	MaxQuestionCount       int
	MaxJobDescriptionRunes int
	MaxAnswerRunes         int
	AudioMaxSize           int64
}

// DefaultConfig は既定の制限値を返す。
func DefaultConfig() Config {
	return Config{
		DefaultQuestionCount:   5,
		MaxQuestionCount:       15,
		MaxJobDescriptionRunes: 20000,
		MaxAnswerRunes:         10000,
		AudioMaxSize:           25 * 1024 * 1024,
	}
}

// answerSaveAttempts は回答保存時に競合した場合の再読み込み回数。
// 回答は質問IDごとのキーへの書き込みなので、ナビゲーションと競合しても再適用できる。
const answerSaveAttempts = 3

// Service は面接セッションのサービス層。
type Service struct {
	repo       repository.InterviewRepository
	blueprints BlueprintProvider
	coach      AICoach
	narrator   Narrator
	sanitizer  *security.TextSanitizer
	recorder   Recorder
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。narratorとrecorderはnilでもよい。
func NewService(
	repo repository.InterviewRepository,
	blueprints BlueprintProvider,
	aiCoach AICoach,
	narrator Narrator,
	sanitizer *security.TextSanitizer,
	recorder Recorder,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		blueprints: blueprints,
		coach:      aiCoach,
		narrator:   narrator,
		sanitizer:  sanitizer,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// StartParams は面接開始時の入力。
type StartParams struct {
	Role           string
	JobDescription string
	QuestionCount  int
	BlueprintID    string
}

// Start は新しい面接セッションを開始する。
// ブループリントの取得・生成に失敗しても、評価観点なしで質問を生成して開始する。
func (s *Service) Start(ctx context.Context, userID string, p StartParams) (*model.InterviewSession, error) {
	role, err := model.NormalizeRole(p.Role)
	if err != nil {
		return nil, err
	}
	count := p.QuestionCount
	if count == 0 {
		count = s.cfg.DefaultQuestionCount
	}
	if count < 1 || count > s.cfg.MaxQuestionCount {
		return nil, model.NewInvalidQuestionCountError(count)
	}
	jd := s.sanitizer.Sanitize(p.JobDescription, s.cfg.MaxJobDescriptionRunes)

	bp, err := s.resolveBlueprint(ctx, userID, role, jd, p.BlueprintID)
	if err != nil {
		return nil, err
	}

	req := coach.QuestionRequest{Role: role, JobDescription: jd, Count: count}
	if bp != nil {
		req.Competencies = bp.Competencies
	}
	questions, class := s.coach.Questions(ctx, req)
	if len(questions) == 0 {
		return nil, fmt.Errorf("質問を用意できませんでした: %s", class)
	}
	for i := range questions {
		questions[i].ID = uuid.New().String()
	}

	now := s.now()
	session := &model.InterviewSession{
		ID:             uuid.New().String(),
		UserID:         userID,
		Role:           role,
		JobDescription: jd,
		Questions:      questions,
		CurrentIndex:   0,
		Answers:        make(map[string]model.Answer),
		Status:         model.SessionStatusInProgress,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if bp != nil {
		session.BlueprintID = bp.ID
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("面接セッションの作成に失敗しました: %w", err)
	}
	if s.recorder != nil {
		s.recorder.RecordSessionStarted()
	}
	s.logger.Info("面接セッションを開始しました",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.Int("questions", len(questions)),
		slog.Bool("fallback_questions", class != ""),
	)
	s.prefetch(session, 0)
	return session, nil
}

func (s *Service) resolveBlueprint(ctx context.Context, userID, role, jd, blueprintID string) (*model.Blueprint, error) {
	if s.blueprints == nil {
		return nil, nil
	}
	if blueprintID != "" {
		return s.blueprints.Get(ctx, userID, blueprintID)
	}
	bp, err := s.blueprints.GetOrGenerate(ctx, userID, role, jd)
	if err != nil {
		s.logger.Warn("ブループリントを用意できないため評価観点なしで開始します",
			slog.String("role", role),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return bp, nil
}

// sessionBlueprint はセッションに紐づくブループリントを返す。取得できない場合はnil。
func (s *Service) sessionBlueprint(ctx context.Context, session *model.InterviewSession) *model.Blueprint {
	if s.blueprints == nil || session.BlueprintID == "" {
		return nil
	}
	bp, err := s.blueprints.Get(ctx, session.UserID, session.BlueprintID)
	if err != nil {
		return nil
	}
	return bp
}

// Get は面接セッションを返す。他ユーザーのセッションは存在しない扱いにする。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.InterviewSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("面接セッションの取得に失敗しました: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, model.NewInterviewNotFoundError(id)
	}
	return session, nil
}

// List はユーザーの面接セッションを返す。statusが空の場合は全状態を返す。
func (s *Service) List(ctx context.Context, userID, status string) ([]*model.InterviewSession, error) {
	var filter model.SessionStatus
	if status != "" {
		parsed, ok := model.ParseSessionStatus(status)
		if !ok {
			return nil, model.NewInvalidStatusError(status)
		}
		filter = parsed
	}
	sessions, err := s.repo.ListByUserID(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("面接セッション一覧の取得に失敗しました: %w", err)
	}
	return sessions, nil
}

// Delete は面接セッションを削除する。完了済みセッションの履歴は残る。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("面接セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// update はセッションを読み込んでfnを適用し、楽観ロック付きで保存する。
// 競合した場合はattempts回まで読み込み直してfnを再適用する。
func (s *Service) update(ctx context.Context, userID, id string, attempts int, fn func(*model.InterviewSession) error) (*model.InterviewSession, error) {
	for i := 0; i < attempts; i++ {
		session, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if !session.IsActive() {
			return nil, model.NewSessionNotActiveError(session.Status)
		}
		if err := fn(session); err != nil {
			return nil, err
		}
		err = s.repo.Update(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("面接セッションの更新に失敗しました: %w", err)
		}
		s.logger.Debug("面接セッションの更新が競合しました",
			slog.String("session_id", id),
			slog.Int("attempt", i+1),
		)
	}
	return nil, model.NewSessionConflictError()
}

// prefetch は指定位置の質問の読み上げ音声を先読みする。
func (s *Service) prefetch(session *model.InterviewSession, index int) {
	if s.narrator == nil || !s.coach.Online() {
		return
	}
	if index < 0 || index >= len(session.Questions) {
		return
	}
	s.narrator.Prefetch(session.Questions[index].Text)
}

// Tips は質問に対する回答のコツを返す。
func (s *Service) Tips(ctx context.Context, userID, id, questionID string) (*model.CoachingTips, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	q, _, ok := session.QuestionByID(questionID)
	if !ok {
		return nil, model.NewQuestionNotFoundError(questionID)
	}
	return s.coach.Tips(ctx, coach.TipsRequest{Role: session.Role, Question: q}), nil
}

// Narration は質問文の読み上げ音声（MP3）を返す。
func (s *Service) Narration(ctx context.Context, userID, id, questionID string) ([]byte, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	q, _, ok := session.QuestionByID(questionID)
	if !ok {
		return nil, model.NewQuestionNotFoundError(questionID)
	}
	if s.narrator == nil || !s.coach.Online() {
		return nil, model.NewAIUnavailableError(coach.OpSynthesize)
	}
	return s.narrator.Get(ctx, q.Text)
}
