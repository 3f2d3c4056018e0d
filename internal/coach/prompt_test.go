package coach

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/interviewcoach/internal/model"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  \n{\"a\":1}\n ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseQuestions(t *testing.T) {
	content := `{"questions":[
		{"text":"自己紹介をしてください","competency":"communication","kind":"Behavioral"},
		{"text":"自己紹介をしてください","competency":"communication","kind":"behavioral"},
		{"text":"  ","competency":"x"},
		{"text":"APIを設計してください","competency":"system_design","kind":"coding"},
		{"text":"3つ目","kind":"situational"}
	]}`
	got, err := parseQuestions(content, 2)
	if err != nil {
		t.Fatalf("parseQuestions: %v", err)
	}
	want := []model.Question{
		{Text: "自己紹介をしてください", Competency: "communication", Kind: "behavioral"},
		{Text: "APIを設計してください", Competency: "system_design", Kind: ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("questions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseQuestions_Empty(t *testing.T) {
	for _, content := range []string{`{"questions":[]}`, `not json`, `{"questions":[{"text":""}]}`} {
		if _, err := parseQuestions(content, 3); !errors.Is(err, ErrBadResponse) {
			t.Errorf("parseQuestions(%q) err = %v, want ErrBadResponse", content, err)
		}
	}
}

func TestParseAnalysis(t *testing.T) {
	content := "```json\n" + `{"score":86.6,"strengths":["具体的"," "],"improvements":["数字を入れる"],
		"feedback":["良い回答です"],"sub_scores":{"clarity":120,"relevance":-3}}` + "\n```"
	got, err := parseAnalysis(content)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	want := &model.Analysis{
		Rating:       model.RatingExcellent,
		Score:        87,
		Strengths:    []string{"具体的"},
		Improvements: []string{"数字を入れる"},
		Feedback:     []string{"良い回答です"},
		SubScores:    map[string]int{"clarity": 100, "relevance": 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAnalysis_MissingScore(t *testing.T) {
	if _, err := parseAnalysis(`{"strengths":["a"]}`); !errors.Is(err, ErrBadResponse) {
		t.Errorf("err = %v, want ErrBadResponse", err)
	}
}

func TestParseTips(t *testing.T) {
	got, err := parseTips(`{"tips":["結論から話す","", "具体例を添える"]}`)
	if err != nil {
		t.Fatalf("parseTips: %v", err)
	}
	if diff := cmp.Diff([]string{"結論から話す", "具体例を添える"}, got); diff != "" {
		t.Errorf("tips mismatch (-want +got):\n%s", diff)
	}
	if _, err := parseTips(`{"tips":[]}`); !errors.Is(err, ErrBadResponse) {
		t.Errorf("empty tips err = %v, want ErrBadResponse", err)
	}
}

func TestParseBlueprint_NormalizesWeights(t *testing.T) {
	got, err := parseBlueprint(`{"competencies":[
		{"name":"system_design","description":"設計","weight":3},
		{"name":"","weight":5},
		{"name":"communication","description":"伝える力","weight":1}
	]}`)
	if err != nil {
		t.Fatalf("parseBlueprint: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if math.Abs(got[0].Weight-0.75) > 1e-9 || math.Abs(got[1].Weight-0.25) > 1e-9 {
		t.Errorf("weights = %v, %v", got[0].Weight, got[1].Weight)
	}
}

func TestBuildQuestionsPrompt_TruncatesJobDescription(t *testing.T) {
	prompt := buildQuestionsPrompt(QuestionRequest{
		Role:           "SRE",
		Count:          5,
		JobDescription: strings.Repeat("求", maxPromptJobDescription+100),
		Competencies:   []model.Competency{{Name: "reliability", Weight: 1}},
	})
	if strings.Count(prompt, "求") != maxPromptJobDescription {
		t.Errorf("job description not truncated: %d runes", strings.Count(prompt, "求"))
	}
	if !strings.Contains(prompt, "reliability") {
		t.Error("prompt should list competencies")
	}
	if !strings.Contains(prompt, "Number of questions: 5") {
		t.Error("prompt should include question count")
	}
}
