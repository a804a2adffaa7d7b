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
// ハンドラー層やワーカーから利用する。
type MetricsCollector interface {
	RecordContactSubmission(outcome string)
	RecordContactStatusUpdate(status string)
	RecordAuthAttempt(action, outcome string)
	RecordCallback(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRetentionDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	contactSubmissions *prometheus.CounterVec
	statusUpdates      *prometheus.CounterVec
	authAttempts       *prometheus.CounterVec
	callbacks          *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
	retentionDeleted   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		contactSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solidfoundation_contact_submissions_total",
			Help: "お問い合わせ送信の結果別の合計数",
		}, []string{"outcome"}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solidfoundation_contact_status_updates_total",
			Help: "対応状況の更新数（更新後のステータス別）",
		}, []string{"status"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solidfoundation_auth_attempts_total",
			Help: "認証操作の操作・結果別の合計数",
		}, []string{"action", "outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solidfoundation_auth_callbacks_total",
			Help: "認証コールバックの結果別の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solidfoundation_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solidfoundation_request_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solidfoundation_retention_deleted_total",
			Help: "保持期間を過ぎて削除された問い合わせの合計数",
		}),
	}

	reg.MustRegister(
		c.contactSubmissions,
		c.statusUpdates,
		c.authAttempts,
		c.callbacks,
		c.httpStatus,
		c.requestLatency,
		c.retentionDeleted,
	)

	return c
}

// RecordContactSubmission はお問い合わせ送信の結果（created, invalid, error）を記録する。
func (c *Collector) RecordContactSubmission(outcome string) {
	c.contactSubmissions.WithLabelValues(outcome).Inc()
}

// RecordContactStatusUpdate は対応状況の更新を記録する。
func (c *Collector) RecordContactStatusUpdate(status string) {
	c.statusUpdates.WithLabelValues(status).Inc()
}

// RecordAuthAttempt は認証操作（signup, login等）の結果を記録する。
func (c *Collector) RecordAuthAttempt(action, outcome string) {
	c.authAttempts.WithLabelValues(action, outcome).Inc()
}

// RecordCallback は認証コールバックの結果を記録する。
func (c *Collector) RecordCallback(outcome string) {
	c.callbacks.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRetentionDeleted は保持期間切れで削除した件数を記録する。
func (c *Collector) RecordRetentionDeleted(count int64) {
	c.retentionDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
