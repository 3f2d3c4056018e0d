// Package coach は生成AIとの連携（質問生成・回答分析・アドバイス・文字起こし・読み上げ）を提供する。
package coach

import (
	"context"
	"io"

	"github.com/hitoshi/interviewcoach/internal/model"
)

// QuestionRequest は質問生成の入力。
type QuestionRequest struct {
	Role           string
	JobDescription string
	Count          int
	Competencies   []model.Competency
}

// AnalysisRequest は回答分析の入力。
type AnalysisRequest struct {
	Role           string
	JobDescription string
	Question       model.Question
	Answer         string
	Competencies   []model.Competency
}

// TipsRequest は回答アドバイス生成の入力。
type TipsRequest struct {
	Role     string
	Question model.Question
}

// BlueprintRequest は評価観点生成の入力。
type BlueprintRequest struct {
	Role           string
	JobDescription string
}

// Provider は生成AIプロバイダのインターフェース。
// 失敗時はエラーをそのまま返し、代替コンテンツの判断は呼び出し側が行う。
type Provider interface {
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]model.Question, error)
	AnalyzeAnswer(ctx context.Context, req AnalysisRequest) (*model.Analysis, error)
	GenerateTips(ctx context.Context, req TipsRequest) ([]string, error)
	GenerateBlueprint(ctx context.Context, req BlueprintRequest) ([]model.Competency, error)
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
