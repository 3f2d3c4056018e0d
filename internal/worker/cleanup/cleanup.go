// Package cleanup は面接データの定期整理ジョブを提供する。
// 長期間操作されていない面接セッションを放棄扱いにし、保持期間を過ぎた
// 放棄セッションと期限切れのログインセッションを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/interviewcoach/internal/database"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Result は1回の実行で処理した件数。
type Result struct {
	Abandoned       int64
	DeletedSessions int64
	ExpiredLogins   int64
}

// CleanupJob は面接データの整理ジョブ。各処理は冪等である。
type CleanupJob struct {
	db      Executor
	dialect database.Dialect
	logger  *slog.Logger
	now     func() time.Time

	// AbandonAfter はこの期間操作のない進行中セッションを放棄扱いにする（デフォルト: 720時間）。
	AbandonAfter time.Duration
	// RetentionDays は放棄セッションの保持日数（デフォルト: 180）。
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, dialect database.Dialect, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		dialect:       dialect,
		logger:        logger,
		now:           time.Now,
		AbandonAfter:  720 * time.Hour,
		RetentionDays: 180,
	}
}

// timeArg はDialectに応じた時刻のバインド値を返す。SQLiteはUnixナノ秒で保持している。
func (j *CleanupJob) timeArg(t time.Time) any {
	if j.dialect == database.DialectSQLite {
		return t.UnixNano()
	}
	return t
}

func (j *CleanupJob) query(postgres, sqlite string) string {
	if j.dialect == database.DialectSQLite {
		return sqlite
	}
	return postgres
}

// Start はintervalごとにRunを実行する。コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))
	for {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
		}
	}
}

// Run は放棄判定、放棄セッションの削除、期限切れログインセッションの削除を順に実行する。
// 途中で失敗した場合はそこで中断し、それまでの件数とエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := j.now()
	var res Result
	var err error

	if res.Abandoned, err = j.markAbandoned(ctx, start); err != nil {
		return res, err
	}
	if res.DeletedSessions, err = j.deleteAbandoned(ctx, start); err != nil {
		return res, err
	}
	if res.ExpiredLogins, err = j.deleteExpiredLogins(ctx, start); err != nil {
		return res, err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("abandoned", res.Abandoned),
		slog.Int64("deleted_sessions", res.DeletedSessions),
		slog.Int64("expired_logins", res.ExpiredLogins),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// markAbandoned は最終更新からAbandonAfterを過ぎた進行中セッションを放棄状態にする。
// versionを進めるため、同時に保存しようとした更新は競合として扱われる。
func (j *CleanupJob) markAbandoned(ctx context.Context, now time.Time) (int64, error) {
	q := j.query(
		`UPDATE interview_sessions SET status = 'abandoned', version = version + 1, updated_at = $1
		 WHERE status = 'in_progress' AND updated_at < $2`,
		`UPDATE interview_sessions SET status = 'abandoned', version = version + 1, updated_at = ?
		 WHERE status = 'in_progress' AND updated_at < ?`,
	)
	return j.exec(ctx, "放棄セッションの判定", q, j.timeArg(now), j.timeArg(now.Add(-j.AbandonAfter)))
}

// deleteAbandoned は放棄されてから保持期間を過ぎたセッションを削除する。
func (j *CleanupJob) deleteAbandoned(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -j.RetentionDays)
	q := j.query(
		`DELETE FROM interview_sessions WHERE status = 'abandoned' AND updated_at < $1`,
		`DELETE FROM interview_sessions WHERE status = 'abandoned' AND updated_at < ?`,
	)
	return j.exec(ctx, "放棄セッションの削除", q, j.timeArg(cutoff))
}

// deleteExpiredLogins は期限切れのログインセッションを削除する。
// ローカルモード（SQLite）にはログインセッションが存在しないため何もしない。
func (j *CleanupJob) deleteExpiredLogins(ctx context.Context, now time.Time) (int64, error) {
	if j.dialect == database.DialectSQLite {
		return 0, nil
	}
	return j.exec(ctx, "期限切れログインセッションの削除",
		`DELETE FROM sessions WHERE expires_at < $1`, now)
}

func (j *CleanupJob) exec(ctx context.Context, step, query string, args ...any) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error(step+"に失敗しました", slog.String("error", err.Error()))
		return 0, fmt.Errorf("%sに失敗しました: %w", step, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
