// Package questionbank はAIを利用できない場合に使う質問・評価・アドバイスの定型コンテンツを提供する。
package questionbank

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/interviewcoach/internal/model"
)

//go:embed bank.yaml
var defaultBankYAML []byte

type questionEntry struct {
	Text       string `yaml:"text"`
	Competency string `yaml:"competency"`
	Kind       string `yaml:"kind"`
}

type competencyEntry struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
}

type roleEntry struct {
	Match        []string          `yaml:"match"`
	Competencies []competencyEntry `yaml:"competencies"`
	Questions    []questionEntry   `yaml:"questions"`
}

type analysisBand struct {
	MinChars     int      `yaml:"min_chars"`
	Score        int      `yaml:"score"`
	Strengths    []string `yaml:"strengths"`
	Improvements []string `yaml:"improvements"`
	Feedback     []string `yaml:"feedback"`
}

type document struct {
	DefaultCompetencies []competencyEntry `yaml:"default_competencies"`
	Generic             []questionEntry   `yaml:"generic"`
	Roles               []roleEntry       `yaml:"roles"`
	Analysis            struct {
		Bands []analysisBand `yaml:"bands"`
	} `yaml:"analysis"`
	Tips struct {
		Generic []string            `yaml:"generic"`
		ByKind  map[string][]string `yaml:"by_kind"`
	} `yaml:"tips"`
}

// Bank は読み込み済みの定型コンテンツ。読み込み後は変更されないため並行利用できる。
type Bank struct {
	doc document
}

// Default は埋め込みの定型コンテンツを読み込む。
func Default() (*Bank, error) {
	return Parse(defaultBankYAML)
}

// Load はpathのYAMLファイルから定型コンテンツを読み込む。
// pathが空の場合は埋め込みの定型コンテンツを使用する。
func Load(path string) (*Bank, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank %s: %w", path, err)
	}
	return Parse(data)
}

// Parse はYAMLを解析し、内容を検証してBankを返す。
func Parse(data []byte) (*Bank, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("invalid question bank: %w", err)
	}
	// 文字数の大きい順に評価するため降順に並べる。
	sort.SliceStable(doc.Analysis.Bands, func(i, j int) bool {
		return doc.Analysis.Bands[i].MinChars > doc.Analysis.Bands[j].MinChars
	})
	return &Bank{doc: doc}, nil
}

func (d *document) validate() error {
	if len(d.Generic) == 0 {
		return errors.New("generic questions are empty")
	}
	if len(d.DefaultCompetencies) == 0 {
		return errors.New("default_competencies are empty")
	}
	if len(d.Analysis.Bands) == 0 {
		return errors.New("analysis bands are empty")
	}
	hasZero := false
	for _, b := range d.Analysis.Bands {
		if b.Score < 0 || b.Score > 100 {
			return fmt.Errorf("analysis band score out of range: %d", b.Score)
		}
		if b.MinChars == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return errors.New("analysis bands must include min_chars: 0")
	}
	for i, r := range d.Roles {
		if len(r.Match) == 0 {
			return fmt.Errorf("roles[%d].match is empty", i)
		}
		for _, c := range r.Competencies {
			if c.Weight < 0 {
				return fmt.Errorf("roles[%d] competency %q has negative weight", i, c.Name)
			}
		}
	}
	if len(d.Tips.Generic) == 0 {
		return errors.New("generic tips are empty")
	}
	return nil
}

// matchRole は職種名に一致する職種定義を返す。一致しない場合はnilを返す。
func (b *Bank) matchRole(role string) *roleEntry {
	lower := strings.ToLower(role)
	for i := range b.doc.Roles {
		for _, term := range b.doc.Roles[i].Match {
			if containsTerm(lower, strings.ToLower(term)) {
				return &b.doc.Roles[i]
			}
		}
	}
	return nil
}

// containsTerm はASCIIの語については単語境界を考慮して部分一致を判定する。
// "pm" が "development" に一致しないようにするため。
func containsTerm(s, term string) bool {
	if term == "" {
		return false
	}
	if !isASCII(term) {
		return strings.Contains(s, term)
	}
	for start := 0; ; {
		i := strings.Index(s[start:], term)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(term)
		if boundaryBefore(s, i) && boundaryAfter(s, end) {
			return true
		}
		start = i + 1
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Questions は職種に合わせた定型質問を最大n件返す。
// 職種固有の質問を先に、続けて汎用質問を並べる。質問IDは付与しない。
func (b *Bank) Questions(role string, n int) []model.Question {
	var entries []questionEntry
	if r := b.matchRole(role); r != nil {
		entries = append(entries, r.Questions...)
	}
	entries = append(entries, b.doc.Generic...)

	if n > len(entries) {
		n = len(entries)
	}
	questions := make([]model.Question, 0, n)
	for _, e := range entries[:n] {
		questions = append(questions, model.Question{
			Text:       e.Text,
			Competency: e.Competency,
			Kind:       e.Kind,
		})
	}
	return questions
}

// Competencies は職種に合わせた評価観点を返す。重みは合計1に正規化される。
func (b *Bank) Competencies(role string) []model.Competency {
	entries := b.doc.DefaultCompetencies
	if r := b.matchRole(role); r != nil && len(r.Competencies) > 0 {
		entries = r.Competencies
	}
	cs := make([]model.Competency, 0, len(entries))
	for _, e := range entries {
		cs = append(cs, model.Competency{Name: e.Name, Description: e.Description, Weight: e.Weight})
	}
	return NormalizeWeights(cs)
}

// NormalizeWeights は重みの合計が1になるよう正規化した新しいスライスを返す。
// 重みがすべて0以下の場合は均等に割り振る。
func NormalizeWeights(cs []model.Competency) []model.Competency {
	out := make([]model.Competency, len(cs))
	copy(out, cs)
	if len(out) == 0 {
		return out
	}
	var total float64
	for _, c := range out {
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	for i := range out {
		switch {
		case total == 0:
			out[i].Weight = 1 / float64(len(out))
		case out[i].Weight <= 0:
			out[i].Weight = 0
		default:
			out[i].Weight = out[i].Weight / total
		}
	}
	return out
}

// MockAnalysis は回答の文字数に応じた定型の評価結果を返す。IsFallbackは常にtrue。
func (b *Bank) MockAnalysis(answer string) *model.Analysis {
	chars := utf8.RuneCountInString(strings.TrimSpace(answer))
	band := b.doc.Analysis.Bands[len(b.doc.Analysis.Bands)-1]
	for _, candidate := range b.doc.Analysis.Bands {
		if chars >= candidate.MinChars {
			band = candidate
			break
		}
	}
	return &model.Analysis{
		Rating:       model.RatingForScore(band.Score),
		Score:        band.Score,
		Strengths:    cloneStrings(band.Strengths),
		Improvements: cloneStrings(band.Improvements),
		Feedback:     cloneStrings(band.Feedback),
		IsFallback:   true,
	}
}

// Tips は質問の種類に応じた定型アドバイスを返す。
func (b *Bank) Tips(q model.Question) []string {
	tips := cloneStrings(b.doc.Tips.ByKind[q.Kind])
	return append(tips, b.doc.Tips.Generic...)
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
