package coach

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/interviewcoach/internal/model"
)

const defaultChatModel = "gpt-4o-mini"

// OpenAIConfig はOpenAI互換APIの接続設定。
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string // 空の場合は公式エンドポイント
	Model           string
	TranscribeModel string
	TTSModel        string
	Voice           string
	Timeout         time.Duration
}

// OpenAIProvider はgo-openaiクライアントを使ったProvider実装。
type OpenAIProvider struct {
	client          *openai.Client
	model           string
	transcribeModel string
	ttsModel        openai.SpeechModel
	voice           openai.SpeechVoice
}

// NewOpenAIProvider はOpenAIProviderを生成する。
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	p := &OpenAIProvider{
		client:          openai.NewClientWithConfig(clientCfg),
		model:           cfg.Model,
		transcribeModel: cfg.TranscribeModel,
		ttsModel:        openai.SpeechModel(cfg.TTSModel),
		voice:           openai.SpeechVoice(cfg.Voice),
	}
	if p.model == "" {
		p.model = defaultChatModel
	}
	if p.transcribeModel == "" {
		p.transcribeModel = openai.Whisper1
	}
	if p.ttsModel == "" {
		p.ttsModel = openai.TTSModel1
	}
	if p.voice == "" {
		p.voice = openai.VoiceAlloy
	}
	return p
}

// chatJSON はJSONオブジェクト形式を指定してチャット補完を呼び出し、応答本文を返す。
func (p *OpenAIProvider) chatJSON(ctx context.Context, system, user string, temperature float32) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrBadResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQuestions は職種・求人情報・評価観点から面接質問を生成する。
func (p *OpenAIProvider) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]model.Question, error) {
	content, err := p.chatJSON(ctx, questionsSystemPrompt, buildQuestionsPrompt(req), 0.8)
	if err != nil {
		return nil, err
	}
	return parseQuestions(content, req.Count)
}

// AnalyzeAnswer は回答を評価する。
func (p *OpenAIProvider) AnalyzeAnswer(ctx context.Context, req AnalysisRequest) (*model.Analysis, error) {
	content, err := p.chatJSON(ctx, analysisSystemPrompt, buildAnalysisPrompt(req), 0.2)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(content)
}

// GenerateTips は質問に対する回答のコツを生成する。
func (p *OpenAIProvider) GenerateTips(ctx context.Context, req TipsRequest) ([]string, error) {
	content, err := p.chatJSON(ctx, tipsSystemPrompt, buildTipsPrompt(req), 0.5)
	if err != nil {
		return nil, err
	}
	return parseTips(content)
}

// GenerateBlueprint は職種に対する評価観点と重みを生成する。
func (p *OpenAIProvider) GenerateBlueprint(ctx context.Context, req BlueprintRequest) ([]model.Competency, error) {
	content, err := p.chatJSON(ctx, blueprintSystemPrompt, buildBlueprintPrompt(req), 0.3)
	if err != nil {
		return nil, err
	}
	return parseBlueprint(content)
}

// Transcribe は録音データを文字起こしする。filenameの拡張子で音声形式が判定される。
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.transcribeModel,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// Synthesize はテキストを読み上げたMP3データを返す。
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          p.ttsModel,
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return data, nil
}

// compile-time interface check
var _ Provider = (*OpenAIProvider)(nil)
