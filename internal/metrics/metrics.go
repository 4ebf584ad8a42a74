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
// 同期オーケストレーターやAPIクライアントから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(userID string)
	RecordSyncFailure(userID string)
	RecordUpstreamStatus(statusCode int)
	RecordSyncLatency(duration time.Duration)
	RecordTasksSynced(count int)
	RecordMembersSynced(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess    prometheus.Counter
	syncFail       prometheus.Counter
	upstreamStatus *prometheus.CounterVec
	syncLatency    prometheus.Histogram
	tasksSynced    prometheus.Counter
	membersSynced  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_sync_success_total",
			Help: "同期成功の合計数",
		}),
		syncFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_sync_fail_total",
			Help: "同期失敗の合計数",
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_upstream_status_total",
			Help: "ClickUp APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskflow_sync_latency_seconds",
			Help:    "同期処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tasksSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_tasks_synced_total",
			Help: "同期されたタスクの合計数",
		}),
		membersSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskflow_members_synced_total",
			Help: "同期されたメンバーの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.upstreamStatus,
		c.syncLatency,
		c.tasksSynced,
		c.membersSynced,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess(userID string) {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は同期失敗を記録する。
func (c *Collector) RecordSyncFailure(userID string) {
	c.syncFail.Inc()
}

// RecordUpstreamStatus はClickUp APIのステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSyncLatency は同期処理のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordTasksSynced は同期されたタスク数を記録する。
func (c *Collector) RecordTasksSynced(count int) {
	c.tasksSynced.Add(float64(count))
}

// RecordMembersSynced は同期されたメンバー数を記録する。
func (c *Collector) RecordMembersSynced(count int) {
	c.membersSynced.Add(float64(count))
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
