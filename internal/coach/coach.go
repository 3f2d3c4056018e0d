package coach

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/questionbank"
)

// 操作名（メトリクスとログのラベル）
const (
	OpQuestions  = "questions"
	OpAnalysis   = "analysis"
	OpTips       = "tips"
	OpBlueprint  = "blueprint"
	OpTranscribe = "transcribe"
	OpSynthesize = "synthesize"
)

// Recorder はAI呼び出しの計測を記録するインターフェース。
type Recorder interface {
	ObserveAICall(operation, outcome string, duration time.Duration)
	IncAIFallback(operation, reason string)
}

// Coach はProviderを呼び出し、失敗時は定型コンテンツに切り替える。
// providerがnilの場合はオフラインとして常に定型コンテンツを返す。
type Coach struct {
	provider Provider
	bank     *questionbank.Bank
	recorder Recorder
	logger   *slog.Logger
}

// New はCoachを生成する。recorderはnilでもよい。
func New(provider Provider, bank *questionbank.Bank, recorder Recorder, logger *slog.Logger) *Coach {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coach{provider: provider, bank: bank, recorder: recorder, logger: logger}
}

// Online はAIプロバイダが設定されているかを返す。
func (c *Coach) Online() bool {
	return c.provider != nil
}

// Bank は定型コンテンツを返す。
func (c *Coach) Bank() *questionbank.Bank {
	return c.bank
}

// call はプロバイダ呼び出しを計測し、失敗を分類する。
func (c *Coach) call(ctx context.Context, op string, fn func(ctx context.Context) error) FailureClass {
	if c.provider == nil {
		return FailureOffline
	}
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err == nil {
		c.observe(op, "success", elapsed)
		return ""
	}

	class := Classify(err)
	c.observe(op, string(class), elapsed)
	attrs := []any{
		slog.String("operation", op),
		slog.String("class", string(class)),
		slog.String("error", err.Error()),
		slog.Duration("elapsed", elapsed),
	}
	if class == FailureUnauthorized {
		c.logger.Error("AIプロバイダの認証に失敗しました", attrs...)
	} else {
		c.logger.Warn("AIプロバイダの呼び出しに失敗しました", attrs...)
	}
	return class
}

func (c *Coach) observe(op, outcome string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveAICall(op, outcome, d)
	}
}

func (c *Coach) fallback(op string, class FailureClass) {
	if c.recorder != nil {
		c.recorder.IncAIFallback(op, string(class))
	}
}

// Questions は面接質問を生成する。失敗時は定型質問を返し、各質問のIsFallbackをtrueにする。
func (c *Coach) Questions(ctx context.Context, req QuestionRequest) ([]model.Question, FailureClass) {
	var questions []model.Question
	class := c.call(ctx, OpQuestions, func(ctx context.Context) error {
		var err error
		questions, err = c.provider.GenerateQuestions(ctx, req)
		return err
	})
	if class == "" {
		return questions, ""
	}

	c.fallback(OpQuestions, class)
	questions = c.bank.Questions(req.Role, req.Count)
	for i := range questions {
		questions[i].IsFallback = true
	}
	return questions, class
}

// Analyze は回答を分析する。失敗時は定型の分析結果を返す。
func (c *Coach) Analyze(ctx context.Context, req AnalysisRequest) *model.Analysis {
	var analysis *model.Analysis
	class := c.call(ctx, OpAnalysis, func(ctx context.Context) error {
		var err error
		analysis, err = c.provider.AnalyzeAnswer(ctx, req)
		return err
	})
	if class == "" {
		return analysis
	}

	c.fallback(OpAnalysis, class)
	analysis = c.bank.MockAnalysis(req.Answer)
	analysis.FallbackReason = string(class)
	return analysis
}

// Tips は質問への回答のコツを返す。失敗時は定型アドバイスを返す。
func (c *Coach) Tips(ctx context.Context, req TipsRequest) *model.CoachingTips {
	var tips []string
	class := c.call(ctx, OpTips, func(ctx context.Context) error {
		var err error
		tips, err = c.provider.GenerateTips(ctx, req)
		return err
	})
	if class == "" {
		return &model.CoachingTips{QuestionID: req.Question.ID, Tips: tips}
	}

	c.fallback(OpTips, class)
	return &model.CoachingTips{
		QuestionID:     req.Question.ID,
		Tips:           c.bank.Tips(req.Question),
		IsFallback:     true,
		FallbackReason: string(class),
	}
}

// Blueprint は職種の評価観点を生成する。失敗時は定型の評価観点を返す。
func (c *Coach) Blueprint(ctx context.Context, req BlueprintRequest) ([]model.Competency, FailureClass) {
	var competencies []model.Competency
	class := c.call(ctx, OpBlueprint, func(ctx context.Context) error {
		var err error
		competencies, err = c.provider.GenerateBlueprint(ctx, req)
		return err
	})
	if class == "" {
		return competencies, ""
	}

	c.fallback(OpBlueprint, class)
	return c.bank.Competencies(req.Role), class
}

// Transcribe は録音データを文字起こしする。代替手段がないため失敗時はAPIErrorを返す。
func (c *Coach) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var text string
	class := c.call(ctx, OpTranscribe, func(ctx context.Context) error {
		var err error
		text, err = c.provider.Transcribe(ctx, audio, filename)
		return err
	})
	if class != "" {
		return "", class.APIError(OpTranscribe)
	}
	return text, nil
}

// Synthesize はテキストを読み上げる。代替手段がないため失敗時はAPIErrorを返す。
func (c *Coach) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	class := c.call(ctx, OpSynthesize, func(ctx context.Context) error {
		var err error
		audio, err = c.provider.Synthesize(ctx, text)
		return err
	})
	if class != "" {
		return nil, class.APIError(OpSynthesize)
	}
	return audio, nil
}
