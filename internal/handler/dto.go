package handler

import (
	"time"

	"github.com/hitoshi/interviewcoach/internal/history"
	"github.com/hitoshi/interviewcoach/internal/interview"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// sessionResponse は面接セッションのAPIレスポンス。
type sessionResponse struct {
	ID             string                  `json:"id"`
	Role           string                  `json:"role"`
	JobDescription string                  `json:"job_description,omitempty"`
	BlueprintID    string                  `json:"blueprint_id,omitempty"`
	Questions      []model.Question        `json:"questions"`
	CurrentIndex   int                     `json:"current_index"`
	Answers        map[string]model.Answer `json:"answers"`
	Status         model.SessionStatus     `json:"status"`
	Version        int                     `json:"version"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

func toSessionResponse(s *model.InterviewSession) sessionResponse {
	answers := s.Answers
	if answers == nil {
		answers = map[string]model.Answer{}
	}
	return sessionResponse{
		ID:             s.ID,
		Role:           s.Role,
		JobDescription: s.JobDescription,
		BlueprintID:    s.BlueprintID,
		Questions:      s.Questions,
		CurrentIndex:   s.CurrentIndex,
		Answers:        answers,
		Status:         s.Status,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// sessionSummaryResponse は一覧表示用の面接セッション概要。
type sessionSummaryResponse struct {
	ID            string              `json:"id"`
	Role          string              `json:"role"`
	QuestionCount int                 `json:"question_count"`
	AnsweredCount int                 `json:"answered_count"`
	CurrentIndex  int                 `json:"current_index"`
	Status        model.SessionStatus `json:"status"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func toSessionSummaries(sessions []*model.InterviewSession) []sessionSummaryResponse {
	out := make([]sessionSummaryResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummaryResponse{
			ID:            s.ID,
			Role:          s.Role,
			QuestionCount: len(s.Questions),
			AnsweredCount: len(s.Answers),
			CurrentIndex:  s.CurrentIndex,
			Status:        s.Status,
			UpdatedAt:     s.UpdatedAt,
		})
	}
	return out
}

// currentResponse は現在の質問のAPIレスポンス。
type currentResponse struct {
	SessionID string              `json:"session_id"`
	Question  model.Question      `json:"question"`
	Index     int                 `json:"index"`
	Total     int                 `json:"total"`
	Answer    *model.Answer       `json:"answer,omitempty"`
	Status    model.SessionStatus `json:"status"`
	Version   int                 `json:"version"`
}

func toCurrentResponse(v *interview.CurrentView) currentResponse {
	return currentResponse{
		SessionID: v.SessionID,
		Question:  v.Question,
		Index:     v.Index,
		Total:     v.Total,
		Answer:    v.Answer,
		Status:    v.Status,
		Version:   v.Version,
	}
}

// historyResponse は面接履歴のAPIレスポンス。一覧ではスナップショットを含めない。
type historyResponse struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Role        string           `json:"role"`
	Score       int              `json:"score"`
	Rating      string           `json:"rating"`
	CompletedAt time.Time        `json:"completed_at"`
	Snapshot    *sessionResponse `json:"snapshot,omitempty"`
}

func toHistoryResponse(h *model.SessionHistory, withSnapshot bool) historyResponse {
	resp := historyResponse{
		ID:          h.ID,
		SessionID:   h.SessionID,
		Role:        h.Role,
		Score:       h.Score,
		Rating:      model.RatingForScore(h.Score),
		CompletedAt: h.CompletedAt,
	}
	if withSnapshot {
		snap := toSessionResponse(&h.Snapshot)
		resp.Snapshot = &snap
	}
	return resp
}

// historyPageResponse は履歴一覧のAPIレスポンス。
type historyPageResponse struct {
	Items      []historyResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func toHistoryPageResponse(p *history.Page) historyPageResponse {
	items := make([]historyResponse, 0, len(p.Items))
	for _, h := range p.Items {
		items = append(items, toHistoryResponse(h, false))
	}
	return historyPageResponse{Items: items, NextCursor: p.NextCursor}
}

// summaryResponse は履歴集計のAPIレスポンス。
type summaryResponse struct {
	Count        int                   `json:"count"`
	AverageScore float64               `json:"average_score"`
	BestScore    int                   `json:"best_score"`
	ByRole       []roleSummaryResponse `json:"by_role"`
}

type roleSummaryResponse struct {
	Role         string  `json:"role"`
	Count        int     `json:"count"`
	AverageScore float64 `json:"average_score"`
}

func toSummaryResponse(s *model.HistorySummary) summaryResponse {
	byRole := make([]roleSummaryResponse, 0, len(s.ByRole))
	for _, r := range s.ByRole {
		byRole = append(byRole, roleSummaryResponse{Role: r.Role, Count: r.Count, AverageScore: r.AverageScore})
	}
	return summaryResponse{
		Count:        s.Count,
		AverageScore: s.AverageScore,
		BestScore:    s.BestScore,
		ByRole:       byRole,
	}
}

// blueprintResponse はブループリントのAPIレスポンス。
type blueprintResponse struct {
	ID           string             `json:"id"`
	Role         string             `json:"role"`
	Competencies []model.Competency `json:"competencies"`
	IsFallback   bool               `json:"is_fallback"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func toBlueprintResponse(b *model.Blueprint) blueprintResponse {
	return blueprintResponse{
		ID:           b.ID,
		Role:         b.Role,
		Competencies: b.Competencies,
		IsFallback:   b.IsFallback,
		UpdatedAt:    b.UpdatedAt,
	}
}

// jobDescriptionResponse は取り込んだ求人情報のAPIレスポンス。
type jobDescriptionResponse struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	SourceURL  string `json:"source_url,omitempty"`
	SourceType string `json:"source_type"`
}

func toJobDescriptionResponse(jd *model.JobDescription) jobDescriptionResponse {
	return jobDescriptionResponse{
		Title:      jd.Title,
		Text:       jd.Text,
		SourceURL:  jd.SourceURL,
		SourceType: jd.SourceType,
	}
}
