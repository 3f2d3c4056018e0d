package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
)

// completeAttempts は完了処理が競合した場合の再読み込み回数。
const completeAttempts = 3

// ComputeScore はセッションの総合スコアを計算する。
//
// 回答済みの質問について、分析スコアを評価観点の重みで加重平均し、四捨五入する。
// ブループリントがない場合は全質問を同じ重みとし、
// ブループリントにない評価観点の質問には観点の平均の重みを使い、重み0の観点はそのまま0として扱う。
// 回答がなければ0を返す。
func ComputeScore(session *model.InterviewSession, bp *model.Blueprint) int {
	var fallbackWeight float64 = 1
	if bp != nil && len(bp.Competencies) > 0 {
		var sum float64
		for _, c := range bp.Competencies {
			sum += c.Weight
		}
		if sum > 0 {
			fallbackWeight = sum / float64(len(bp.Competencies))
		}
	}

	var weighted, total, plain float64
	var answered int
	for _, q := range session.Questions {
		a, ok := session.Answers[q.ID]
		if !ok || a.Analysis == nil {
			continue
		}
		w := fallbackWeight
		if bw, found := bp.WeightOf(q.Competency); found {
			w = bw
		}
		weighted += w * float64(a.Analysis.Score)
		total += w
		plain += float64(a.Analysis.Score)
		answered++
	}
	if answered == 0 {
		return 0
	}
	// 回答した質問の重みがすべて0の場合は単純平均にする
	if total == 0 {
		return int(math.Floor(plain/float64(answered) + 0.5))
	}
	return int(math.Floor(weighted/total + 0.5))
}

// Complete は面接セッションを完了してスコアを確定し、履歴を作成する。
// セッションの更新と履歴の作成は同一トランザクションで行われる。
func (s *Service) Complete(ctx context.Context, userID, id string) (*model.SessionHistory, error) {
	for i := 0; i < completeAttempts; i++ {
		session, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if !session.IsActive() {
			return nil, model.NewSessionNotActiveError(session.Status)
		}

		score := ComputeScore(session, s.sessionBlueprint(ctx, session))
		session.Status = model.SessionStatusCompleted
		history := &model.SessionHistory{
			ID:          uuid.New().String(),
			UserID:      userID,
			SessionID:   session.ID,
			Role:        session.Role,
			Score:       score,
			CompletedAt: s.now(),
		}

		err = s.repo.CompleteWithHistory(ctx, session, history)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("面接セッションの完了に失敗しました: %w", err)
		}

		if s.recorder != nil {
			s.recorder.RecordSessionCompleted(score)
		}
		s.logger.Info("面接セッションを完了しました",
			slog.String("session_id", session.ID),
			slog.String("history_id", history.ID),
			slog.Int("score", score),
			slog.Int("answered", len(session.Answers)),
			slog.Bool("has_fallback_answers", session.HasFallbackAnswers()),
		)
		return history, nil
	}
	return nil, model.NewSessionConflictError()
}
