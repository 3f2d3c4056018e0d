// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ワーカー・ミドルウェアから利用する。
type MetricsCollector interface {
	ObserveAICall(operation, outcome string, duration time.Duration)
	IncAIFallback(operation, reason string)
	RecordSessionStarted()
	RecordSessionCompleted(score int)
	RecordNarrationCache(hit bool)
	RecordReanalysis(outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	aiCalls           *prometheus.CounterVec
	aiLatency         *prometheus.HistogramVec
	aiFallbacks       *prometheus.CounterVec
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionScore      prometheus.Histogram
	narrationCache    *prometheus.CounterVec
	reanalysis        *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		aiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewcoach_ai_calls_total",
			Help: "AIプロバイダ呼び出しの合計数（操作・結果別）",
		}, []string{"operation", "outcome"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interviewcoach_ai_call_duration_seconds",
			Help:    "AIプロバイダ呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"operation"}),
		aiFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewcoach_ai_fallback_total",
			Help: "定型コンテンツに切り替えた回数（操作・理由別）",
		}, []string{"operation", "reason"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewcoach_sessions_started_total",
			Help: "開始された面接セッションの合計数",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewcoach_sessions_completed_total",
			Help: "完了した面接セッションの合計数",
		}),
		sessionScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "interviewcoach_session_score",
			Help:    "完了した面接セッションのスコア分布",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		narrationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewcoach_narration_cache_total",
			Help: "読み上げ音声キャッシュの参照数（hit/miss）",
		}, []string{"result"}),
		reanalysis: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewcoach_reanalysis_total",
			Help: "バックグラウンド再分析の結果別件数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewcoach_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.aiCalls,
		c.aiLatency,
		c.aiFallbacks,
		c.sessionsStarted,
		c.sessionsCompleted,
		c.sessionScore,
		c.narrationCache,
		c.reanalysis,
		c.httpStatus,
	)

	return c
}

// ObserveAICall はAIプロバイダ呼び出しの結果とレイテンシを記録する。
func (c *Collector) ObserveAICall(operation, outcome string, duration time.Duration) {
	c.aiCalls.WithLabelValues(operation, outcome).Inc()
	c.aiLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncAIFallback は定型コンテンツへの切り替えを記録する。
func (c *Collector) IncAIFallback(operation, reason string) {
	c.aiFallbacks.WithLabelValues(operation, reason).Inc()
}

// RecordSessionStarted はセッション開始を記録する。
func (c *Collector) RecordSessionStarted() {
	c.sessionsStarted.Inc()
}

// RecordSessionCompleted はセッション完了とスコアを記録する。
func (c *Collector) RecordSessionCompleted(score int) {
	c.sessionsCompleted.Inc()
	c.sessionScore.Observe(float64(score))
}

// RecordNarrationCache は読み上げキャッシュのヒット・ミスを記録する。
func (c *Collector) RecordNarrationCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.narrationCache.WithLabelValues(result).Inc()
}

// RecordReanalysis は再分析の結果を記録する。
func (c *Collector) RecordReanalysis(outcome string) {
	c.reanalysis.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
