package coach

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/questionbank"
)

// maxPromptJobDescription はプロンプトに含める求人情報の最大文字数。
const maxPromptJobDescription = 6000

const questionsSystemPrompt = `You are an experienced hiring manager preparing a mock job interview.
Write interview questions in the same language as the role name (Japanese if the role is Japanese).
Reply with a JSON object: {"questions":[{"text":string,"competency":string,"kind":"behavioral"|"technical"|"situational"}]}.
Use only the competency names you are given when a list is provided.`

const analysisSystemPrompt = `You are an interview coach. Evaluate the candidate's answer to the interview question.
Reply in the language of the answer with a JSON object:
{"score":0-100,"strengths":[string],"improvements":[string],"feedback":[string],
"sub_scores":{"clarity":0-100,"relevance":0-100,"structure":0-100,"impact":0-100}}.
Be specific and constructive. Do not include anything outside the JSON object.`

const tipsSystemPrompt = `You are an interview coach. Give 3 to 5 short, practical tips for answering the interview question well.
Reply in the language of the question with a JSON object: {"tips":[string]}.`

const blueprintSystemPrompt = `You are designing an interview evaluation blueprint for a role.
List 3 to 6 competencies that matter most for the role with relative weights.
Competency names must be short snake_case English identifiers; descriptions use the language of the role name.
Reply with a JSON object: {"competencies":[{"name":string,"description":string,"weight":number}]}.`

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func competencyLines(cs []model.Competency) string {
	var b strings.Builder
	for _, c := range cs {
		fmt.Fprintf(&b, "- %s (weight %.2f): %s\n", c.Name, c.Weight, c.Description)
	}
	return b.String()
}

func buildQuestionsPrompt(req QuestionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n", req.Role)
	fmt.Fprintf(&b, "Number of questions: %d\n", req.Count)
	if len(req.Competencies) > 0 {
		b.WriteString("Competencies to cover, proportionally to weight:\n")
		b.WriteString(competencyLines(req.Competencies))
	}
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", truncateRunes(req.JobDescription, maxPromptJobDescription))
	}
	return b.String()
}

func buildAnalysisPrompt(req AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n", req.Role)
	if req.Question.Competency != "" {
		fmt.Fprintf(&b, "Competency being assessed: %s\n", req.Question.Competency)
	}
	if len(req.Competencies) > 0 {
		b.WriteString("Blueprint:\n")
		b.WriteString(competencyLines(req.Competencies))
	}
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", truncateRunes(req.JobDescription, maxPromptJobDescription))
	}
	fmt.Fprintf(&b, "Question: %s\n", req.Question.Text)
	fmt.Fprintf(&b, "Answer:\n%s\n", req.Answer)
	return b.String()
}

func buildTipsPrompt(req TipsRequest) string {
	return fmt.Sprintf("Role: %s\nQuestion type: %s\nQuestion: %s\n", req.Role, req.Question.Kind, req.Question.Text)
}

func buildBlueprintPrompt(req BlueprintRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s\n", req.Role)
	if req.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", truncateRunes(req.JobDescription, maxPromptJobDescription))
	}
	return b.String()
}

// stripCodeFence はモデルが付けることのある ```json ... ``` の囲みを取り除く。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeJSON(content string, out any) error {
	if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

type questionsPayload struct {
	Questions []struct {
		Text       string `json:"text"`
		Competency string `json:"competency"`
		Kind       string `json:"kind"`
	} `json:"questions"`
}

func parseQuestions(content string, count int) ([]model.Question, error) {
	var p questionsPayload
	if err := decodeJSON(content, &p); err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(p.Questions))
	seen := make(map[string]bool)
	for _, q := range p.Questions {
		text := strings.TrimSpace(q.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		questions = append(questions, model.Question{
			Text:       text,
			Competency: strings.TrimSpace(q.Competency),
			Kind:       normalizeKind(q.Kind),
		})
		if count > 0 && len(questions) == count {
			break
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrBadResponse)
	}
	return questions, nil
}

func normalizeKind(kind string) string {
	switch k := strings.ToLower(strings.TrimSpace(kind)); k {
	case "behavioral", "technical", "situational":
		return k
	default:
		return ""
	}
}

type analysisPayload struct {
	Score        *float64           `json:"score"`
	Strengths    []string           `json:"strengths"`
	Improvements []string           `json:"improvements"`
	Feedback     []string           `json:"feedback"`
	SubScores    map[string]float64 `json:"sub_scores"`
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v + 0.5)
	}
}

func parseAnalysis(content string) (*model.Analysis, error) {
	var p analysisPayload
	if err := decodeJSON(content, &p); err != nil {
		return nil, err
	}
	if p.Score == nil {
		return nil, fmt.Errorf("%w: score is missing", ErrBadResponse)
	}
	score := clampScore(*p.Score)
	a := &model.Analysis{
		Rating:       model.RatingForScore(score),
		Score:        score,
		Strengths:    nonEmpty(p.Strengths),
		Improvements: nonEmpty(p.Improvements),
		Feedback:     nonEmpty(p.Feedback),
	}
	if len(p.SubScores) > 0 {
		a.SubScores = make(map[string]int, len(p.SubScores))
		for k, v := range p.SubScores {
			a.SubScores[k] = clampScore(v)
		}
	}
	return a, nil
}

func parseTips(content string) ([]string, error) {
	var p struct {
		Tips []string `json:"tips"`
	}
	if err := decodeJSON(content, &p); err != nil {
		return nil, err
	}
	tips := nonEmpty(p.Tips)
	if len(tips) == 0 {
		return nil, fmt.Errorf("%w: no tips", ErrBadResponse)
	}
	return tips, nil
}

func parseBlueprint(content string) ([]model.Competency, error) {
	var p struct {
		Competencies []model.Competency `json:"competencies"`
	}
	if err := decodeJSON(content, &p); err != nil {
		return nil, err
	}
	cs := make([]model.Competency, 0, len(p.Competencies))
	for _, c := range p.Competencies {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		cs = append(cs, c)
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("%w: no competencies", ErrBadResponse)
	}
	return questionbank.NormalizeWeights(cs), nil
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
