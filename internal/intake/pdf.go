package intake

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"rsc.io/pdf"
)

// maxPDFPages は取り込むページ数の上限。
const maxPDFPages = 30

// extractPDFText はPDFの全ページからテキストを取り出す。
// rsc.io/pdfは壊れたファイルでpanicすることがあるため、recoverしてエラーにする。
func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	n := reader.NumPage()
	if n == 0 {
		return "", errors.New("pdf has no pages")
	}
	if n > maxPDFPages {
		n = maxPDFPages
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		b.WriteString(joinPDFText(page.Content().Text))
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// joinPDFText は描画位置をもとにテキスト断片を行にまとめる。
// Y座標が変わったら改行し、同じ行で間隔が空いていれば空白を入れる。
func joinPDFText(texts []pdf.Text) string {
	var b strings.Builder
	var prev *pdf.Text
	for i := range texts {
		t := &texts[i]
		if t.S == "" {
			continue
		}
		if prev != nil {
			lineHeight := math.Max(prev.FontSize, 1)
			switch {
			case math.Abs(t.Y-prev.Y) > lineHeight*0.5:
				b.WriteString("\n")
			case t.X-(prev.X+prev.W) > lineHeight*0.2:
				b.WriteString(" ")
			}
		}
		b.WriteString(t.S)
		prev = t
	}
	return b.String()
}
