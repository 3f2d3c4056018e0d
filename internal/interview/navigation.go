package interview

import (
	"context"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// CurrentView は現在の質問と進行状況を表す。
type CurrentView struct {
	SessionID string
	Question  model.Question
	Index     int
	Total     int
	Answer    *model.Answer
	Status    model.SessionStatus
	Version   int
}

func newCurrentView(session *model.InterviewSession) *CurrentView {
	q := session.Questions[session.CurrentIndex]
	v := &CurrentView{
		SessionID: session.ID,
		Question:  q,
		Index:     session.CurrentIndex,
		Total:     len(session.Questions),
		Status:    session.Status,
		Version:   session.Version,
	}
	if a, ok := session.Answers[q.ID]; ok {
		v.Answer = &a
	}
	return v
}

// Current は現在の質問を返し、次の質問の読み上げ音声を先読みする。
func (s *Service) Current(ctx context.Context, userID, id string) (*CurrentView, error) {
	session, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if session.IsActive() {
		s.prefetch(session, session.CurrentIndex+1)
	}
	return newCurrentView(session), nil
}

// Next は次の質問へ進む。末尾ではNO_MORE_QUESTIONSを返す。
func (s *Service) Next(ctx context.Context, userID, id string) (*CurrentView, error) {
	return s.move(ctx, userID, id, func(session *model.InterviewSession) error {
		if session.CurrentIndex+1 >= len(session.Questions) {
			return model.NewNoMoreQuestionsError("next")
		}
		session.CurrentIndex++
		return nil
	})
}

// Previous は前の質問へ戻る。先頭ではNO_MORE_QUESTIONSを返す。
func (s *Service) Previous(ctx context.Context, userID, id string) (*CurrentView, error) {
	return s.move(ctx, userID, id, func(session *model.InterviewSession) error {
		if session.CurrentIndex == 0 {
			return model.NewNoMoreQuestionsError("previous")
		}
		session.CurrentIndex--
		return nil
	})
}

// Goto は指定した位置の質問へ移動する。
func (s *Service) Goto(ctx context.Context, userID, id string, index int) (*CurrentView, error) {
	return s.move(ctx, userID, id, func(session *model.InterviewSession) error {
		if index < 0 || index >= len(session.Questions) {
			return model.NewInvalidIndexError(index, len(session.Questions))
		}
		session.CurrentIndex = index
		return nil
	})
}

// move は位置を変更して保存する。位置の変更は直前の状態に依存するため、競合時は再試行しない。
func (s *Service) move(ctx context.Context, userID, id string, fn func(*model.InterviewSession) error) (*CurrentView, error) {
	session, err := s.update(ctx, userID, id, 1, fn)
	if err != nil {
		return nil, err
	}
	s.prefetch(session, session.CurrentIndex+1)
	return newCurrentView(session), nil
}
