// Package reanalyze は代替分析のまま残った回答をAIで分析し直すバックグラウンドジョブを提供する。
package reanalyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/interviewcoach/internal/coach"
	"github.com/hitoshi/interviewcoach/internal/interview"
	"github.com/hitoshi/interviewcoach/internal/model"
)

// SessionLister は再分析対象のセッションを取得する。
type SessionLister interface {
	ListWithFallbackAnswers(ctx context.Context, limit int) ([]*model.InterviewSession, error)
}

// Reanalyzer は1セッション分の再分析を行う。*interview.Service が実装する。
type Reanalyzer interface {
	Reanalyze(ctx context.Context, session *model.InterviewSession) (interview.ReanalyzeResult, error)
}

// Recorder は再分析の結果を記録する。
type Recorder interface {
	RecordReanalysis(outcome string)
}

// 再分析の結果ラベル
const (
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Config は再分析ジョブの設定。
type Config struct {
	// Interval はサイクルの実行間隔（デフォルト: 5分）。
	Interval time.Duration
	// MaxPerCycle は1サイクルで処理する最大セッション数（デフォルト: 50）。
	MaxPerCycle int
	// Concurrency は同時に再分析するセッション数（デフォルト: 4）。
	Concurrency int
	// InitialBackoff はAIが一時的に使えない場合の初回待機時間（デフォルト: 5分）。
	InitialBackoff time.Duration
	// MaxBackoff は待機時間の上限（デフォルト: 2時間）。
	MaxBackoff time.Duration
	// UnauthorizedPause は認証エラー時に停止する時間（デフォルト: 6時間）。
	UnauthorizedPause time.Duration
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Minute,
		MaxPerCycle:       50,
		Concurrency:       4,
		InitialBackoff:    5 * time.Minute,
		MaxBackoff:        2 * time.Hour,
		UnauthorizedPause: 6 * time.Hour,
	}
}

// errStopCycle はAIが使えないためサイクルを打ち切ることを表す。
var errStopCycle = errors.New("AI provider is not available")

// Worker は再分析ジョブ。
type Worker struct {
	lister     SessionLister
	reanalyzer Reanalyzer
	recorder   Recorder
	logger     *slog.Logger
	config     Config
	now        func() time.Time

	consecutiveFailures int
	pausedUntil         time.Time
}

// New はWorkerを生成する。recorderはnilでもよい。
func New(lister SessionLister, reanalyzer Reanalyzer, recorder Recorder, logger *slog.Logger, config Config) *Worker {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.MaxPerCycle <= 0 {
		config.MaxPerCycle = def.MaxPerCycle
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.UnauthorizedPause <= 0 {
		config.UnauthorizedPause = def.UnauthorizedPause
	}
	return &Worker{
		lister:     lister,
		reanalyzer: reanalyzer,
		recorder:   recorder,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Start はティッカーでRunOnceを定期実行する。コンテキストがキャンセルされるまで継続する。
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("再分析ジョブを開始しました",
		slog.Duration("interval", w.config.Interval),
		slog.Int("max_per_cycle", w.config.MaxPerCycle),
		slog.Int("concurrency", w.config.Concurrency),
	)

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error("再分析サイクルの実行に失敗しました", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("再分析ジョブを停止しました")
			return
		case <-ticker.C:
		}
	}
}

// calculateBackoff は連続失敗回数に応じた待機時間を返す。初回からInitialBackoffの2倍ずつ増え、MaxBackoffで頭打ちになる。
func (w *Worker) calculateBackoff(failures int) time.Duration {
	delay := w.config.InitialBackoff
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= w.config.MaxBackoff {
			return w.config.MaxBackoff
		}
	}
	return delay
}

// PausedUntil は待機中であれば再開予定時刻を返す。
func (w *Worker) PausedUntil() time.Time {
	return w.pausedUntil
}

// RunOnce は1回の再分析サイクルを実行する。
// AIが使えないと分かった時点で残りのセッションは処理せず、次回まで待機する。
func (w *Worker) RunOnce(ctx context.Context) error {
	now := w.now()
	if now.Before(w.pausedUntil) {
		w.logger.Info("再分析ジョブは待機中のためスキップします", slog.Time("paused_until", w.pausedUntil))
		return nil
	}

	sessions, err := w.lister.ListWithFallbackAnswers(ctx, w.config.MaxPerCycle)
	if err != nil {
		return fmt.Errorf("再分析対象セッションの取得に失敗しました: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		failure coach.FailureClass
		updated int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, session := range sessions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := w.reanalyzer.Reanalyze(gctx, session)
			// 打ち切りで中断された呼び出しの失敗は数えない
			canceled := gctx.Err() != nil
			if err != nil {
				if canceled {
					return nil
				}
				w.logger.Warn("セッションの再分析に失敗しました",
					slog.String("session_id", session.ID),
					slog.String("error", err.Error()),
				)
				w.record(OutcomeError)
				return nil
			}

			mu.Lock()
			updated += res.Updated
			mu.Unlock()

			switch {
			case res.Failure != "":
				if canceled && res.Failure != coach.FailureUnauthorized {
					return nil
				}
				w.record(string(res.Failure))
				mu.Lock()
				// 認証エラーは一時的な失敗より優先する
				if failure != coach.FailureUnauthorized {
					failure = res.Failure
				}
				mu.Unlock()
				return errStopCycle
			case res.Updated > 0:
				w.record(OutcomeUpdated)
			default:
				w.record(OutcomeSkipped)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errStopCycle) {
		return err
	}

	w.applyFailure(failure, now)
	w.logger.Info("再分析サイクルが完了しました",
		slog.Int("session_count", len(sessions)),
		slog.Int("updated_answers", updated),
		slog.String("failure", string(failure)),
	)
	return nil
}

// applyFailure はサイクルの失敗分類から次回の実行可能時刻を決める。
func (w *Worker) applyFailure(failure coach.FailureClass, now time.Time) {
	switch {
	case failure == "":
		w.consecutiveFailures = 0
		w.pausedUntil = time.Time{}
	case failure == coach.FailureUnauthorized || failure == coach.FailureOffline:
		w.pausedUntil = now.Add(w.config.UnauthorizedPause)
		w.logger.Error("AIプロバイダを利用できないため再分析を停止します",
			slog.String("failure", string(failure)),
			slog.Time("paused_until", w.pausedUntil),
		)
	default:
		w.consecutiveFailures++
		backoff := w.calculateBackoff(w.consecutiveFailures)
		w.pausedUntil = now.Add(backoff)
		w.logger.Warn("AIプロバイダの一時的な失敗によりバックオフを適用します",
			slog.String("failure", string(failure)),
			slog.Int("consecutive_failures", w.consecutiveFailures),
			slog.Duration("backoff_duration", backoff),
		)
	}
}

func (w *Worker) record(outcome string) {
	if w.recorder != nil {
		w.recorder.RecordReanalysis(outcome)
	}
}
