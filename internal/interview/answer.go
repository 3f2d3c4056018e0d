package interview

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/security"
)

// allowedAudioExtensions は文字起こしに渡せる音声形式。
var allowedAudioExtensions = map[string]bool{
	".webm": true, ".mp3": true, ".mp4": true, ".m4a": true, ".mpeg": true,
	".mpga": true, ".wav": true, ".ogg": true, ".oga": true, ".flac": true,
}

// SubmitAnswer はテキストの回答を分析して保存する。同じ質問への再回答は上書きする。
func (s *Service) SubmitAnswer(ctx context.Context, userID, id, questionID, text string) (*model.Answer, error) {
	session, q, err := s.answerTarget(ctx, userID, id, questionID)
	if err != nil {
		return nil, err
	}
	text = security.PlainText(text, s.cfg.MaxAnswerRunes)
	if text == "" {
		return nil, model.NewInvalidAnswerError("回答が空です")
	}
	return s.analyzeAndSave(ctx, session, q, text, model.AnswerSourceText, "")
}

// SubmitAudioAnswer は録音した回答を文字起こしし、分析して保存する。
func (s *Service) SubmitAudioAnswer(ctx context.Context, userID, id, questionID string, audio io.Reader, filename string) (*model.Answer, error) {
	session, q, err := s.answerTarget(ctx, userID, id, questionID)
	if err != nil {
		return nil, err
	}
	if !allowedAudioExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, model.NewInvalidAudioError("対応していない音声形式です")
	}

	data, err := io.ReadAll(io.LimitReader(audio, s.cfg.AudioMaxSize+1))
	if err != nil {
		return nil, model.NewInvalidAudioError("音声データを読み取れませんでした")
	}
	if int64(len(data)) > s.cfg.AudioMaxSize {
		return nil, model.NewAudioTooLargeError(s.cfg.AudioMaxSize)
	}
	if len(data) == 0 {
		return nil, model.NewInvalidAudioError("音声データが空です")
	}

	transcript, err := s.coach.Transcribe(ctx, bytes.NewReader(data), filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	transcript = security.PlainText(transcript, s.cfg.MaxAnswerRunes)
	if transcript == "" {
		return nil, model.NewInvalidAnswerError("音声から回答を認識できませんでした")
	}
	return s.analyzeAndSave(ctx, session, q, transcript, model.AnswerSourceAudio, transcript)
}

// answerTarget は回答先のセッションと質問を検証して返す。
// 分析やアップロードのコストをかける前に、変更できないセッションを弾く。
func (s *Service) answerTarget(ctx context.Context, userID, id, questionID string) (*model.InterviewSession, model.Question, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, model.Question{}, err
	}
	if !session.IsActive() {
		return nil, model.Question{}, model.NewSessionNotActiveError(session.Status)
	}
	q, _, ok := session.QuestionByID(questionID)
	if !ok {
		return nil, model.Question{}, model.NewQuestionNotFoundError(questionID)
	}
	return session, q, nil
}

func (s *Service) analyzeAndSave(ctx context.Context, session *model.InterviewSession, q model.Question, text string, source model.AnswerSource, transcript string) (*model.Answer, error) {
	req := coach.AnalysisRequest{
		Role:           session.Role,
		JobDescription: session.JobDescription,
		Question:       q,
		Answer:         text,
	}
	if bp := s.sessionBlueprint(ctx, session); bp != nil {
		req.Competencies = bp.Competencies
	}
	analysis := s.coach.Analyze(ctx, req)
	analysis.Transcript = transcript

	answer := model.Answer{
		QuestionID:     q.ID,
		Text:           text,
		Source:         source,
		Analysis:       analysis,
		AnalysisStatus: model.AnalysisStatusAnalyzed,
		AnsweredAt:     s.now(),
	}
	if analysis.IsFallback {
		answer.AnalysisStatus = model.AnalysisStatusFallback
	}

	_, err := s.update(ctx, session.UserID, session.ID, answerSaveAttempts, func(latest *model.InterviewSession) error {
		if _, _, ok := latest.QuestionByID(q.ID); !ok {
			return model.NewQuestionNotFoundError(q.ID)
		}
		if latest.Answers == nil {
			latest.Answers = make(map[string]model.Answer)
		}
		latest.Answers[q.ID] = answer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("回答を保存しました",
		slog.String("session_id", session.ID),
		slog.String("question_id", q.ID),
		slog.String("source", string(source)),
		slog.String("analysis_status", string(answer.AnalysisStatus)),
		slog.Int("score", analysis.Score),
	)
	return &answer, nil
}
