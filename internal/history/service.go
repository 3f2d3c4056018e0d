// Package history は完了した面接の履歴と集計を扱う。
package history

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/interviewcoach/internal/model"
	"github.com/hitoshi/interviewcoach/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	cursorSeparator = "|"
)

// Page は履歴一覧の1ページ分。NextCursorが空なら続きはない。
type Page struct {
	Items      []*model.SessionHistory
	NextCursor string
}

// Service は履歴のサービス層。
type Service struct {
	repo repository.HistoryRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.HistoryRepository) *Service {
	return &Service{repo: repo}
}

// List は履歴を新しい順に返す。cursorは前ページのNextCursorである。
func (s *Service) List(ctx context.Context, userID, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var after *repository.HistoryCursor
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return nil, model.NewInvalidCursorError(cursor)
		}
		after = c
	}

	// 次ページの有無を判定するため1件多く取得する
	items, err := s.repo.ListByUserID(ctx, userID, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("履歴一覧の取得に失敗しました: %w", err)
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = encodeCursor(page.Items[limit-1])
	}
	return page, nil
}

// encodeCursor はページ末尾の履歴の完了日時とIDをカーソル文字列にする。
// 完了日時が同じ履歴がページをまたいでも取りこぼさないようIDを含める。
func encodeCursor(h *model.SessionHistory) string {
	raw := h.CompletedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + h.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor はカーソル文字列を復元する。完了日時のみのRFC3339形式も受け付ける。
func decodeCursor(cursor string) (*repository.HistoryCursor, error) {
	if t, err := time.Parse(time.RFC3339Nano, cursor); err == nil {
		return &repository.HistoryCursor{CompletedAt: t}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	ts, id, ok := strings.Cut(string(raw), cursorSeparator)
	if !ok || id == "" {
		return nil, errors.New("malformed cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, err
	}
	return &repository.HistoryCursor{CompletedAt: t, ID: id}, nil
}

// Get は指定IDの履歴を返す。他ユーザーの履歴は存在しない扱いにする。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.SessionHistory, error) {
	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	if h == nil || h.UserID != userID {
		return nil, model.NewHistoryNotFoundError(id)
	}
	return h, nil
}

// Delete は指定IDの履歴を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("履歴の削除に失敗しました: %w", err)
	}
	return nil
}

// Summary は履歴の件数・平均点・最高点と職種ごとの平均点を返す。
// 職種は件数の多い順、同数なら職種名順に並べる。
func (s *Service) Summary(ctx context.Context, userID string) (*model.HistorySummary, error) {
	rows, err := s.repo.ListScores(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("履歴の集計に失敗しました: %w", err)
	}
	return summarize(rows), nil
}

func summarize(rows []repository.ScoreRow) *model.HistorySummary {
	summary := &model.HistorySummary{ByRole: []model.RoleSummary{}}
	if len(rows) == 0 {
		return summary
	}

	type acc struct {
		count int
		sum   int
	}
	byRole := make(map[string]*acc)
	total := 0
	for _, r := range rows {
		total += r.Score
		if r.Score > summary.BestScore {
			summary.BestScore = r.Score
		}
		a, ok := byRole[r.Role]
		if !ok {
			a = &acc{}
			byRole[r.Role] = a
		}
		a.count++
		a.sum += r.Score
	}

	summary.Count = len(rows)
	summary.AverageScore = round1(float64(total) / float64(len(rows)))
	for role, a := range byRole {
		summary.ByRole = append(summary.ByRole, model.RoleSummary{
			Role:         role,
			Count:        a.count,
			AverageScore: round1(float64(a.sum) / float64(a.count)),
		})
	}
	sort.Slice(summary.ByRole, func(i, j int) bool {
		if summary.ByRole[i].Count != summary.ByRole[j].Count {
			return summary.ByRole[i].Count > summary.ByRole[j].Count
		}
		return summary.ByRole[i].Role < summary.ByRole[j].Role
	})
	return summary
}

// round1 は小数第1位で四捨五入する。
func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
