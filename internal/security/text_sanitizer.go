package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力や取り込んだ文書をプレーンテキストに正規化する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを取り除くポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、空白を整えたうえで最大maxRunes文字に切り詰める。
// 段落の区切り（空行）は1つの空行として残す。maxRunesが0以下なら切り詰めない。
func (s *TextSanitizer) Sanitize(text string, maxRunes int) string {
	if text == "" {
		return ""
	}
	// StrictPolicyは&等をエスケープして返すため元に戻す。
	plain := html.UnescapeString(s.policy.Sanitize(text))
	return truncate(CollapseWhitespace(plain), maxRunes)
}

// PlainText はHTMLとして解釈しない入力（回答や文字起こし）を正規化する。
// 改行とタブ以外の制御文字を除き、空白を整えて最大maxRunes文字に切り詰める。
// <や>を含むコード片などはそのまま残す。
func PlainText(text string, maxRunes int) string {
	if text == "" {
		return ""
	}
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	return truncate(CollapseWhitespace(text), maxRunes)
}

func truncate(text string, maxRunes int) string {
	if maxRunes > 0 {
		if r := []rune(text); len(r) > maxRunes {
			text = strings.TrimRightFunc(string(r[:maxRunes]), unicode.IsSpace)
		}
	}
	return text
}

// CollapseWhitespace は行内の連続空白を1つにし、3行以上の改行を空行1つにまとめる。
func CollapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
