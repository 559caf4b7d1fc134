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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordAuthAttempt(op, result string)
	RecordTokenRejection(reason string)
	RecordGuardDenial(guard string)
	RecordStoreLatency(op string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts    *prometheus.CounterVec
	tokenRejections *prometheus.CounterVec
	guardDenials    *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadman_auth_attempts_total",
			Help: "登録・ログイン試行の合計数",
		}, []string{"op", "result"}),
		tokenRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadman_token_rejections_total",
			Help: "拒否されたセッショントークンの合計数",
		}, []string{"reason"}),
		guardDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadman_guard_denials_total",
			Help: "ルートガードで拒否されたリクエスト数",
		}, []string{"guard"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadman_store_latency_seconds",
			Help:    "資格情報・ロールストア呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.tokenRejections,
		c.guardDenials,
		c.storeLatency,
		c.httpStatus,
	)

	return c
}

// RecordAuthAttempt は登録・ログイン試行の結果を記録する。
// opは"register"または"login"、resultは"success"またはエラーコード。
func (c *Collector) RecordAuthAttempt(op, result string) {
	c.authAttempts.WithLabelValues(op, result).Inc()
}

// RecordTokenRejection はトークン拒否の理由を記録する。
func (c *Collector) RecordTokenRejection(reason string) {
	c.tokenRejections.WithLabelValues(reason).Inc()
}

// RecordGuardDenial はガードによる拒否を記録する。
func (c *Collector) RecordGuardDenial(guard string) {
	c.guardDenials.WithLabelValues(guard).Inc()
}

// RecordStoreLatency はストア呼び出しのレイテンシを記録する。
func (c *Collector) RecordStoreLatency(op string, duration time.Duration) {
	c.storeLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクス無効時とテストで使用する。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string) {}
func (Nop) RecordTokenRejection(string) {}
func (Nop) RecordGuardDenial(string) {}
func (Nop) RecordStoreLatency(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
