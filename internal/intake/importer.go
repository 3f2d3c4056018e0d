// Package intake は求人情報をURLやPDFから取り込み、プレーンテキストにする。
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/security"
)

// URLValidator は取り込み先URLの検証と安全なHTTPクライアントを提供する。
// security.URLGuardを抽象化してテストで差し替えられるようにする。
type URLValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Config は取り込みの制限値。
type Config struct {
	Timeout      time.Duration
	MaxSize      int64
	MaxTextRunes int
}

// Importer は求人情報の取り込みを行う。
type Importer struct {
	guard     URLValidator
	sanitizer *security.TextSanitizer
	cfg       Config
	logger    *slog.Logger
}

// NewImporter はImporterを生成する。
func NewImporter(guard URLValidator, sanitizer *security.TextSanitizer, cfg Config, logger *slog.Logger) *Importer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 5 * 1024 * 1024
	}
	if cfg.MaxTextRunes <= 0 {
		cfg.MaxTextRunes = 20000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{guard: guard, sanitizer: sanitizer, cfg: cfg, logger: logger}
}

// ImportURL はURLの内容を取得し、求人情報として取り込む。
// HTMLは本文を、RSS/Atomは先頭のエントリを、PDFは全ページのテキストを使う。
func (im *Importer) ImportURL(ctx context.Context, rawURL string) (*model.JobDescription, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}
	if err := im.guard.ValidateURL(rawURL); err != nil {
		if errors.Is(err, security.ErrBlockedURL) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	body, contentType, err := im.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	jd, err := im.extract(body, contentType, rawURL)
	if err != nil {
		return nil, err
	}
	return im.finish(jd)
}

// ImportPDF はアップロードされたPDFを求人情報として取り込む。
func (im *Importer) ImportPDF(r io.Reader, filename string) (*model.JobDescription, error) {
	data, err := readLimited(r, im.cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	if !isPDF(data) {
		return nil, model.NewUnsupportedDocumentError("PDF以外のファイル")
	}
	text, err := extractPDFText(data)
	if err != nil {
		im.logger.Warn("PDFの解析に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewImportFailedError("PDFからテキストを抽出できませんでした")
	}
	return im.finish(&model.JobDescription{
		Title:      titleFromFilename(filename),
		Text:       text,
		SourceType: "pdf",
	})
}

func (im *Importer) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "InterviewCoach/1.0 (+job description import)")
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, application/pdf, text/plain;q=0.8, */*;q=0.5")

	resp, err := im.guard.NewSafeClient(im.cfg.Timeout).Do(req)
	if err != nil {
		im.logger.Warn("求人情報の取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, "", model.NewImportFailedError("ページを取得できませんでした")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", model.NewImportFailedError(fmt.Sprintf("ページの取得に失敗しました（HTTP %d）", resp.StatusCode))
	}
	body, err := readLimited(resp.Body, im.cfg.MaxSize)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, model.NewImportFailedError("文書の読み取りに失敗しました")
	}
	if int64(len(data)) > limit {
		return nil, model.NewImportFailedError(fmt.Sprintf("文書が大きすぎます（上限 %dMB）", limit/(1024*1024)))
	}
	return data, nil
}

func (im *Importer) extract(body []byte, contentType, sourceURL string) (*model.JobDescription, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case mediaType == "application/pdf" || isPDF(body):
		text, err := extractPDFText(body)
		if err != nil {
			im.logger.Warn("PDFの解析に失敗しました", slog.String("url", sourceURL), slog.String("error", err.Error()))
			return nil, model.NewImportFailedError("PDFからテキストを抽出できませんでした")
		}
		return &model.JobDescription{Text: text, SourceURL: sourceURL, SourceType: "pdf"}, nil

	case isFeed(mediaType, body):
		return im.extractFeed(body, sourceURL)

	case strings.Contains(mediaType, "html"):
		title, text := extractHTMLText(body)
		return &model.JobDescription{Title: title, Text: text, SourceURL: sourceURL, SourceType: "html"}, nil

	case mediaType == "text/plain" || mediaType == "":
		return &model.JobDescription{Text: string(body), SourceURL: sourceURL, SourceType: "text"}, nil

	default:
		return nil, model.NewUnsupportedDocumentError(mediaType)
	}
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func isFeed(mediaType string, body []byte) bool {
	switch mediaType {
	case "application/rss+xml", "application/atom+xml", "application/xml", "text/xml":
		return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
	}
	return false
}

// extractFeed はフィードの先頭エントリを求人情報として取り出す。
func (im *Importer) extractFeed(body []byte, sourceURL string) (*model.JobDescription, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, model.NewImportFailedError("フィードを解析できませんでした")
	}
	if len(feed.Items) == 0 {
		return nil, model.NewImportFailedError("フィードにエントリがありません")
	}
	item := feed.Items[0]
	content := item.Content
	if strings.TrimSpace(content) == "" {
		content = item.Description
	}
	_, text := extractHTMLText([]byte(content))

	link := item.Link
	if link == "" {
		link = sourceURL
	}
	return &model.JobDescription{
		Title:      strings.TrimSpace(item.Title),
		Text:       text,
		SourceURL:  link,
		SourceType: "feed",
	}, nil
}

func (im *Importer) finish(jd *model.JobDescription) (*model.JobDescription, error) {
	jd.Title = im.sanitizer.Sanitize(jd.Title, 200)
	jd.Text = im.sanitizer.Sanitize(jd.Text, im.cfg.MaxTextRunes)
	if jd.Text == "" {
		return nil, model.NewImportFailedError("本文を抽出できませんでした")
	}
	return jd, nil
}

func titleFromFilename(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
