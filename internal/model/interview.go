// Package model はドメインモデルを定義する。
package model

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// SessionStatus は面接セッションの状態を表す。
type SessionStatus string

const (
	// SessionStatusInProgress は回答受付中の状態。
	SessionStatusInProgress SessionStatus = "in_progress"
	// SessionStatusCompleted は完了してスコアが確定した状態。
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusAbandoned は長期間操作されず放棄された状態。
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// ParseSessionStatus は文字列をSessionStatusに変換する。
func ParseSessionStatus(s string) (SessionStatus, bool) {
	switch SessionStatus(s) {
	case SessionStatusInProgress, SessionStatusCompleted, SessionStatusAbandoned:
		return SessionStatus(s), true
	}
	return "", false
}

// MaxRoleLength は職種名の最大文字数。
const MaxRoleLength = 120

// roleTagPattern は職種名に紛れたHTMLタグ。a<bのような比較表記には一致しない。
var roleTagPattern = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)

// NormalizeRole は職種名から制御文字とタグを除き、前後空白と連続空白を整えて長さを検証する。
func NormalizeRole(role string) (string, error) {
	role = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, role)
	role = roleTagPattern.ReplaceAllString(role, "")
	role = strings.Join(strings.Fields(role), " ")
	if role == "" {
		return "", NewInvalidRoleError("職種が入力されていません")
	}
	if utf8.RuneCountInString(role) > MaxRoleLength {
		return "", NewInvalidRoleError("職種名が長すぎます")
	}
	return role, nil
}

// AnalysisStatus は回答に付与された分析結果の出所を表す。
type AnalysisStatus string

const (
	// AnalysisStatusAnalyzed はAIによる分析結果。
	AnalysisStatusAnalyzed AnalysisStatus = "analyzed"
	// AnalysisStatusFallback はAI呼び出し失敗時の代替結果。再分析の対象になる。
	AnalysisStatusFallback AnalysisStatus = "fallback"
)

// AnswerSource は回答の入力方法を表す。
type AnswerSource string

const (
	AnswerSourceText  AnswerSource = "text"
	AnswerSourceAudio AnswerSource = "audio"
)

// Question は面接の質問1件を表す。
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Competency string `json:"competency,omitempty"`
	Kind       string `json:"kind,omitempty"`
	IsFallback bool   `json:"is_fallback,omitempty"`
}

// Analysis は回答に対する評価結果を表す。
type Analysis struct {
	Rating       string         `json:"rating"`
	Score        int            `json:"score"`
	Transcript   string         `json:"transcript,omitempty"`
	Strengths    []string       `json:"strengths"`
	Improvements []string       `json:"improvements"`
	Feedback     []string       `json:"feedback"`
	SubScores    map[string]int `json:"sub_scores,omitempty"`
	IsFallback   bool           `json:"is_fallback"`
	// FallbackReason は代替結果になった理由（unauthorized, rate_limited, offline 等）。
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// 評価ランク
const (
	RatingExcellent        = "excellent"
	RatingGood             = "good"
	RatingFair             = "fair"
	RatingNeedsImprovement = "needs_improvement"
)

// RatingForScore は0〜100のスコアから評価ランクを決める。
func RatingForScore(score int) string {
	switch {
	case score >= 85:
		return RatingExcellent
	case score >= 70:
		return RatingGood
	case score >= 50:
		return RatingFair
	default:
		return RatingNeedsImprovement
	}
}

// Answer は質問に対する回答と分析結果を表す。
type Answer struct {
	QuestionID     string         `json:"question_id"`
	Text           string         `json:"text"`
	Source         AnswerSource   `json:"source"`
	Analysis       *Analysis      `json:"analysis,omitempty"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
	AnsweredAt     time.Time      `json:"answered_at"`
}

// InterviewSession は1回分の模擬面接の状態を表す。
// Answersのキーは必ずQuestionsに含まれる質問IDである。
type InterviewSession struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Role           string            `json:"role"`
	JobDescription string            `json:"job_description,omitempty"`
	BlueprintID    string            `json:"blueprint_id,omitempty"`
	Questions      []Question        `json:"questions"`
	CurrentIndex   int               `json:"current_index"`
	Answers        map[string]Answer `json:"answers"`
	Status         SessionStatus     `json:"status"`
	Version        int               `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// QuestionByID は質問IDから質問とそのインデックスを返す。
func (s *InterviewSession) QuestionByID(id string) (Question, int, bool) {
	for i, q := range s.Questions {
		if q.ID == id {
			return q, i, true
		}
	}
	return Question{}, -1, false
}

// IsActive は回答やナビゲーションを受け付ける状態かを返す。
func (s *InterviewSession) IsActive() bool {
	return s.Status == SessionStatusInProgress
}

// HasFallbackAnswers は再分析対象の回答を含むかを返す。
func (s *InterviewSession) HasFallbackAnswers() bool {
	for _, a := range s.Answers {
		if a.AnalysisStatus == AnalysisStatusFallback {
			return true
		}
	}
	return false
}

// CoachingTips は質問ごとの回答のコツを表す。
type CoachingTips struct {
	QuestionID     string   `json:"question_id"`
	Tips           []string `json:"tips"`
	IsFallback     bool     `json:"is_fallback"`
	FallbackReason string   `json:"fallback_reason,omitempty"`
}

// JobDescription は取り込んだ求人情報を表す。
type JobDescription struct {
	Title      string
	Text       string
	SourceURL  string
	SourceType string // html, feed, pdf
}
