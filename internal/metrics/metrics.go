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
// トークン、認証サービス、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordTokenIssued(kind string)
	RecordTokenRejected(reason string)
	RecordLogin(outcome string)
	RecordRefresh(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokensIssued   *prometheus.CounterVec
	tokensRejected *prometheus.CounterVec
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_tokens_issued_total",
			Help: "種別ごとのトークン発行数",
		}, []string{"kind"}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_tokens_rejected_total",
			Help: "理由ごとのトークン検証失敗数",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_logins_total",
			Help: "結果ごとのログイン完了数",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_refreshes_total",
			Help: "結果ごとのトークンリフレッシュ数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todoman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.tokensIssued,
		c.tokensRejected,
		c.logins,
		c.refreshes,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued(kind string) {
	c.tokensIssued.WithLabelValues(kind).Inc()
}

// RecordTokenRejected はトークン検証失敗を記録する。
func (c *Collector) RecordTokenRejected(reason string) {
	c.tokensRejected.WithLabelValues(reason).Inc()
}

// RecordLogin はログイン完了の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを使用しないテストやツールで利用する。
type NopCollector struct{}

func (NopCollector) RecordTokenIssued(string)           {}
func (NopCollector) RecordTokenRejected(string)         {}
func (NopCollector) RecordLogin(string)                 {}
func (NopCollector) RecordRefresh(string)               {}
func (NopCollector) RecordHTTPStatus(int)               {}
func (NopCollector) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
