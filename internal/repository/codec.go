package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// encodeSessionBody は質問と回答をJSON列用にエンコードする。
func encodeSessionBody(s *model.InterviewSession) (questions, answers []byte, err error) {
	qs := s.Questions
	if qs == nil {
		qs = []model.Question{}
	}
	questions, err = json.Marshal(qs)
	if err != nil {
		return nil, nil, fmt.Errorf("質問のエンコードに失敗しました: %w", err)
	}
	as := s.Answers
	if as == nil {
		as = map[string]model.Answer{}
	}
	answers, err = json.Marshal(as)
	if err != nil {
		return nil, nil, fmt.Errorf("回答のエンコードに失敗しました: %w", err)
	}
	return questions, answers, nil
}

// decodeSessionBody はJSON列から質問と回答を復元する。
func decodeSessionBody(s *model.InterviewSession, questions, answers []byte) error {
	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return fmt.Errorf("質問のデコードに失敗しました: %w", err)
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return fmt.Errorf("回答のデコードに失敗しました: %w", err)
	}
	if s.Answers == nil {
		s.Answers = map[string]model.Answer{}
	}
	return nil
}

func encodeCompetencies(cs []model.Competency) ([]byte, error) {
	if cs == nil {
		cs = []model.Competency{}
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("評価観点のエンコードに失敗しました: %w", err)
	}
	return b, nil
}

func decodeCompetencies(b []byte) ([]model.Competency, error) {
	var cs []model.Competency
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, fmt.Errorf("評価観点のデコードに失敗しました: %w", err)
	}
	return cs, nil
}

func encodeSnapshot(s model.InterviewSession) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("スナップショットのエンコードに失敗しました: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (model.InterviewSession, error) {
	var s model.InterviewSession
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("スナップショットのデコードに失敗しました: %w", err)
	}
	return s, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// toUnix はSQLiteのINTEGER列に保存する時刻表現に変換する。
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// fromUnix はSQLiteのINTEGER列の値を時刻に戻す。
func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
