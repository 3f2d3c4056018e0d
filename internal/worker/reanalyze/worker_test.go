package reanalyze

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/interview"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// --- モック定義 ---

type mockLister struct {
	sessions []*model.InterviewSession
	err      error
	limit    int
}

func (m *mockLister) ListWithFallbackAnswers(_ context.Context, limit int) ([]*model.InterviewSession, error) {
	m.limit = limit
	return m.sessions, m.err
}

type mockReanalyzer struct {
	calls       atomic.Int32
	reanalyzeFn func(ctx context.Context, s *model.InterviewSession) (interview.ReanalyzeResult, error)
}

func (m *mockReanalyzer) Reanalyze(ctx context.Context, s *model.InterviewSession) (interview.ReanalyzeResult, error) {
	m.calls.Add(1)
	return m.reanalyzeFn(ctx, s)
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *mockRecorder) RecordReanalysis(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *mockRecorder) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

func sessions(ids ...string) []*model.InterviewSession {
	out := make([]*model.InterviewSession, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.InterviewSession{ID: id, Status: model.SessionStatusInProgress})
	}
	return out
}

func newTestWorker(lister SessionLister, r Reanalyzer, rec Recorder, buf *bytes.Buffer, cfg Config) *Worker {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	w := New(lister, r, rec, logger, cfg)
	w.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return w
}

// --- テスト ---

func TestNew_AppliesDefaults(t *testing.T) {
	w := New(&mockLister{}, &mockReanalyzer{}, nil, slog.Default(), Config{})
	if w.config != DefaultConfig() {
		t.Errorf("config = %+v, want %+v", w.config, DefaultConfig())
	}
}

func TestRunOnce_UpdatesAllSessions(t *testing.T) {
	var buf bytes.Buffer
	lister := &mockLister{sessions: sessions("s1", "s2", "s3")}
	r := &mockReanalyzer{
		reanalyzeFn: func(_ context.Context, s *model.InterviewSession) (interview.ReanalyzeResult, error) {
			if s.ID == "s2" {
				return interview.ReanalyzeResult{}, nil
			}
			return interview.ReanalyzeResult{Updated: 2}, nil
		},
	}
	rec := &mockRecorder{}
	w := newTestWorker(lister, r, rec, &buf, Config{MaxPerCycle: 10, Concurrency: 2})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if lister.limit != 10 {
		t.Errorf("limit = %d, want 10", lister.limit)
	}
	if got := r.calls.Load(); got != 3 {
		t.Errorf("Reanalyze calls = %d, want 3", got)
	}
	if rec.count(OutcomeUpdated) != 2 || rec.count(OutcomeSkipped) != 1 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
	if !w.PausedUntil().IsZero() {
		t.Errorf("PausedUntil = %v, want zero", w.PausedUntil())
	}
}

func TestRunOnce_SessionErrorDoesNotStopCycle(t *testing.T) {
	var buf bytes.Buffer
	r := &mockReanalyzer{
		reanalyzeFn: func(_ context.Context, s *model.InterviewSession) (interview.ReanalyzeResult, error) {
			if s.ID == "s1" {
				return interview.ReanalyzeResult{}, errors.New("面接セッションの更新に失敗しました")
			}
			return interview.ReanalyzeResult{Updated: 1}, nil
		},
	}
	rec := &mockRecorder{}
	w := newTestWorker(&mockLister{sessions: sessions("s1", "s2")}, r, rec, &buf, Config{Concurrency: 1})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rec.count(OutcomeError) != 1 || rec.count(OutcomeUpdated) != 1 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestRunOnce_RateLimitedBacksOffExponentially(t *testing.T) {
	var buf bytes.Buffer
	r := &mockReanalyzer{
		reanalyzeFn: func(context.Context, *model.InterviewSession) (interview.ReanalyzeResult, error) {
			return interview.ReanalyzeResult{Failure: coach.FailureRateLimited}, nil
		},
	}
	rec := &mockRecorder{}
	w := newTestWorker(&mockLister{sessions: sessions("s1", "s2", "s3", "s4")}, r, rec, &buf,
		Config{Concurrency: 1, InitialBackoff: time.Minute, MaxBackoff: 3 * time.Minute})
	now := w.now()

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// 直列実行なので最初の失敗で打ち切られる
	if got := r.calls.Load(); got != 1 {
		t.Errorf("Reanalyze calls = %d, want 1", got)
	}
	if rec.count(string(coach.FailureRateLimited)) != 1 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
	if want := now.Add(time.Minute); !w.PausedUntil().Equal(want) {
		t.Errorf("PausedUntil = %v, want %v", w.PausedUntil(), want)
	}

	// 待機中はスキップする
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("待機中に再分析が実行された: calls = %d", got)
	}

	// 待機明けに再度失敗すると待機時間が倍になり、上限で頭打ちになる
	for i, want := range []time.Duration{2 * time.Minute, 3 * time.Minute, 3 * time.Minute} {
		w.pausedUntil = time.Time{}
		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if got := w.PausedUntil().Sub(now); got != want {
			t.Errorf("%d回目の待機時間 = %v, want %v", i+2, got, want)
		}
	}
}

func TestRunOnce_CanceledSiblingsDoNotOverrideFailure(t *testing.T) {
	var buf bytes.Buffer
	var started sync.WaitGroup
	started.Add(2)
	r := &mockReanalyzer{
		reanalyzeFn: func(ctx context.Context, s *model.InterviewSession) (interview.ReanalyzeResult, error) {
			switch s.ID {
			case "s1":
				// 他のセッションの呼び出しが始まってからレート制限を返す
				started.Wait()
				return interview.ReanalyzeResult{Failure: coach.FailureRateLimited}, nil
			case "s2":
				started.Done()
				<-ctx.Done()
				return interview.ReanalyzeResult{Failure: coach.FailureUnavailable}, nil
			default:
				started.Done()
				<-ctx.Done()
				return interview.ReanalyzeResult{}, ctx.Err()
			}
		},
	}
	rec := &mockRecorder{}
	w := newTestWorker(&mockLister{sessions: sessions("s1", "s2", "s3")}, r, rec, &buf,
		Config{Concurrency: 3, InitialBackoff: time.Minute, MaxBackoff: time.Hour})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := r.calls.Load(); got != 3 {
		t.Fatalf("Reanalyze calls = %d, want 3", got)
	}
	if rec.count(string(coach.FailureRateLimited)) != 1 ||
		rec.count(string(coach.FailureUnavailable)) != 0 ||
		rec.count(OutcomeError) != 0 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
	if want := w.now().Add(time.Minute); !w.PausedUntil().Equal(want) {
		t.Errorf("PausedUntil = %v, want %v", w.PausedUntil(), want)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"failure":"rate_limited"`)) {
		t.Errorf("サイクルの失敗はrate_limitedのままであるべき: %s", buf.String())
	}
}

func TestRunOnce_UnauthorizedPauses(t *testing.T) {
	var buf bytes.Buffer
	r := &mockReanalyzer{
		reanalyzeFn: func(context.Context, *model.InterviewSession) (interview.ReanalyzeResult, error) {
			return interview.ReanalyzeResult{Failure: coach.FailureUnauthorized}, nil
		},
	}
	w := newTestWorker(&mockLister{sessions: sessions("s1")}, r, nil, &buf, Config{UnauthorizedPause: time.Hour})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if want := w.now().Add(time.Hour); !w.PausedUntil().Equal(want) {
		t.Errorf("PausedUntil = %v, want %v", w.PausedUntil(), want)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"level":"ERROR"`)) {
		t.Errorf("認証エラーはERRORで記録するべき: %s", buf.String())
	}
}

func TestRunOnce_SuccessResetsBackoff(t *testing.T) {
	var buf bytes.Buffer
	fail := true
	r := &mockReanalyzer{
		reanalyzeFn: func(context.Context, *model.InterviewSession) (interview.ReanalyzeResult, error) {
			if fail {
				return interview.ReanalyzeResult{Failure: coach.FailureUnavailable}, nil
			}
			return interview.ReanalyzeResult{Updated: 1}, nil
		},
	}
	w := newTestWorker(&mockLister{sessions: sessions("s1")}, r, nil, &buf, Config{})

	w.RunOnce(context.Background())
	if w.consecutiveFailures != 1 {
		t.Fatalf("consecutiveFailures = %d, want 1", w.consecutiveFailures)
	}

	fail = false
	w.pausedUntil = time.Time{}
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if w.consecutiveFailures != 0 || !w.PausedUntil().IsZero() {
		t.Errorf("成功後もバックオフが残っている: failures=%d paused=%v", w.consecutiveFailures, w.PausedUntil())
	}
}

func TestRunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWorker(&mockLister{err: errors.New("db down")}, &mockReanalyzer{}, nil, &buf, Config{})

	if err := w.RunOnce(context.Background()); err == nil {
		t.Error("エラーが返るべき")
	}
}

func TestRunOnce_RespectsConcurrency(t *testing.T) {
	var buf bytes.Buffer
	var running, peak atomic.Int32
	r := &mockReanalyzer{
		reanalyzeFn: func(context.Context, *model.InterviewSession) (interview.ReanalyzeResult, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return interview.ReanalyzeResult{Updated: 1}, nil
		},
	}
	w := newTestWorker(&mockLister{sessions: sessions("a", "b", "c", "d", "e", "f")}, r, nil, &buf, Config{Concurrency: 2})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("同時実行数 = %d, want <= 2", p)
	}
	if got := r.calls.Load(); got != 6 {
		t.Errorf("calls = %d, want 6", got)
	}
}
