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
// ポータルクライアント・ワーカー・通知層から利用する。
type MetricsCollector interface {
	RecordPortalRequest(path string, statusCode int)
	RecordPortalLatency(path string, duration time.Duration)
	RecordLoginAttempt(success bool)
	RecordTelegramSend(success bool)
	RecordSyncResult(success bool)
	RecordNotificationSent(success bool)
	RecordWorkerError(loop string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	portalRequests    *prometheus.CounterVec
	portalLatency     *prometheus.HistogramVec
	loginAttempts     *prometheus.CounterVec
	telegramSends     *prometheus.CounterVec
	syncResults       *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	workerErrors      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		portalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedbot_portal_requests_total",
			Help: "ポータルAPIリクエストのパス・ステータスコード別合計数",
		}, []string{"path", "status_code"}),
		portalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schedbot_portal_request_seconds",
			Help:    "ポータルAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedbot_portal_login_total",
			Help: "ポータルログイン試行の結果別合計数",
		}, []string{"result"}),
		telegramSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedbot_telegram_sends_total",
			Help: "Telegramメッセージ送信の結果別合計数",
		}, []string{"result"}),
		syncResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedbot_schedule_sync_total",
			Help: "時間割同期の結果別合計数",
		}, []string{"result"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedbot_notifications_sent_total",
			Help: "授業リマインダー送信の結果別合計数",
		}, []string{"result"}),
		workerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedbot_worker_errors_total",
			Help: "バックグラウンドループのエラー合計数",
		}, []string{"loop"}),
	}

	reg.MustRegister(
		c.portalRequests,
		c.portalLatency,
		c.loginAttempts,
		c.telegramSends,
		c.syncResults,
		c.notificationsSent,
		c.workerErrors,
	)

	return c
}

// resultLabel は成功/失敗をラベル値に変換する。
func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordPortalRequest はポータルAPIリクエストの結果を記録する。
func (c *Collector) RecordPortalRequest(path string, statusCode int) {
	c.portalRequests.WithLabelValues(path, strconv.Itoa(statusCode)).Inc()
}

// RecordPortalLatency はポータルAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordPortalLatency(path string, duration time.Duration) {
	c.portalLatency.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordLoginAttempt はポータルログイン試行の結果を記録する。
func (c *Collector) RecordLoginAttempt(success bool) {
	c.loginAttempts.WithLabelValues(resultLabel(success)).Inc()
}

// RecordTelegramSend はTelegram送信の結果を記録する。
func (c *Collector) RecordTelegramSend(success bool) {
	c.telegramSends.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSyncResult は時間割同期の結果を記録する。
func (c *Collector) RecordSyncResult(success bool) {
	c.syncResults.WithLabelValues(resultLabel(success)).Inc()
}

// RecordNotificationSent はリマインダー送信の結果を記録する。
func (c *Collector) RecordNotificationSent(success bool) {
	c.notificationsSent.WithLabelValues(resultLabel(success)).Inc()
}

// RecordWorkerError はバックグラウンドループのエラーを記録する。
func (c *Collector) RecordWorkerError(loop string) {
	c.workerErrors.WithLabelValues(loop).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// Noop は何も記録しないMetricsCollector。テストや未配線の構成で使用する。
type Noop struct{}

func (Noop) RecordPortalRequest(string, int)            {}
func (Noop) RecordPortalLatency(string, time.Duration)  {}
func (Noop) RecordLoginAttempt(bool)                    {}
func (Noop) RecordTelegramSend(bool)                    {}
func (Noop) RecordSyncResult(bool)                      {}
func (Noop) RecordNotificationSent(bool)                {}
func (Noop) RecordWorkerError(string)                   {}

var _ MetricsCollector = Noop{}
