// Package model はドメインモデルを定義する。
package model

import "time"

// SessionHistory は完了した面接セッションのスナップショットとスコアを表す。
type SessionHistory struct {
	ID          string
	UserID      string
	SessionID   string
	Role        string
	Score       int
	Snapshot    InterviewSession
	CompletedAt time.Time
}

// HistorySummary はユーザーの面接履歴の集計結果を表す。
type HistorySummary struct {
	Count        int
	AverageScore float64
	BestScore    int
	ByRole       []RoleSummary
}

// RoleSummary は職種ごとの集計結果を表す。
type RoleSummary struct {
	Role         string
	Count        int
	AverageScore float64
}

// Competency はブループリントの評価観点1件を表す。
type Competency struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"`
}

// Blueprint は職種ごとの評価観点と重みのセットを表す。
type Blueprint struct {
	ID           string
	UserID       string
	Role         string
	RoleKey      string
	Competencies []Competency
	IsFallback   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WeightOf は評価観点名に対応する重みを返す。
// 観点がブループリントにない場合はokがfalseになる。重み0の観点はok=trueで0を返す。
func (b *Blueprint) WeightOf(name string) (weight float64, ok bool) {
	if b == nil {
		return 0, false
	}
	for _, c := range b.Competencies {
		if c.Name == name {
			return c.Weight, true
		}
	}
	return 0, false
}
