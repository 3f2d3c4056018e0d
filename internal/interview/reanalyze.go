package interview

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// errNothingToApply は再分析結果を適用する回答が残っていないことを表す。
var errNothingToApply = errors.New("no reanalyzed answers to apply")

// ReanalyzeResult は1セッション分の再分析結果。
type ReanalyzeResult struct {
	// Updated はAIの分析結果に置き換えた回答数。
	Updated int
	// Failure はAIを利用できず中断した場合の失敗分類。
	Failure coach.FailureClass
}

// Reanalyze は代替分析のままの回答をAIで分析し直し、保存する。
// 分析中に回答が更新された場合やセッションが完了した場合は、その結果を捨てる。
// AIの呼び出しに失敗した時点で中断し、失敗分類を返す。
func (s *Service) Reanalyze(ctx context.Context, session *model.InterviewSession) (ReanalyzeResult, error) {
	var result ReanalyzeResult
	bp := s.sessionBlueprint(ctx, session)

	analyses := make(map[string]model.Answer)
	for _, q := range session.Questions {
		a, ok := session.Answers[q.ID]
		if !ok || a.AnalysisStatus != model.AnalysisStatusFallback {
			continue
		}
		req := coach.AnalysisRequest{
			Role:           session.Role,
			JobDescription: session.JobDescription,
			Question:       q,
			Answer:         a.Text,
		}
		if bp != nil {
			req.Competencies = bp.Competencies
		}
		analysis := s.coach.Analyze(ctx, req)
		if analysis.IsFallback {
			result.Failure = coach.FailureClass(analysis.FallbackReason)
			break
		}
		if a.Analysis != nil {
			analysis.Transcript = a.Analysis.Transcript
		}
		a.Analysis = analysis
		a.AnalysisStatus = model.AnalysisStatusAnalyzed
		analyses[q.ID] = a
	}
	if len(analyses) == 0 {
		return result, nil
	}

	_, err := s.update(ctx, session.UserID, session.ID, answerSaveAttempts, func(latest *model.InterviewSession) error {
		result.Updated = 0
		for qid, reanalyzed := range analyses {
			current, ok := latest.Answers[qid]
			// 分析中に再回答された場合は新しい回答を優先する
			if !ok || current.AnalysisStatus != model.AnalysisStatusFallback || !current.AnsweredAt.Equal(reanalyzed.AnsweredAt) {
				continue
			}
			latest.Answers[qid] = reanalyzed
			result.Updated++
		}
		if result.Updated == 0 {
			return errNothingToApply
		}
		return nil
	})
	if errors.Is(err, errNothingToApply) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	s.logger.Info("回答を再分析しました",
		slog.String("session_id", session.ID),
		slog.Int("updated", result.Updated),
	)
	return result, nil
}
