// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー・リポジトリ・ワーカーから利用する。
type MetricsCollector interface {
	RecordOperation(operation, code string, duration time.Duration)
	RecordViewSuppressed()
	RecordTxRetry()
	RecordBackfilled(patch string, count int64)
	RecordOrphanedMarkersDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	operations      *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	viewsSuppressed prometheus.Counter
	txRetries       prometheus.Counter
	backfilled      *prometheus.CounterVec
	orphansDeleted  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chime_operations_total",
			Help: "RPC操作の結果別の合計数（成功時のcodeは\"ok\"）",
		}, []string{"operation", "code"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chime_operation_duration_seconds",
			Help:    "RPC操作の処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		viewsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chime_views_suppressed_total",
			Help: "クールダウンにより加算されなかった閲覧の合計数",
		}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chime_tx_retries_total",
			Help: "直列化失敗・デッドロックによるトランザクション再試行の合計数",
		}),
		backfilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chime_backfill_documents_total",
			Help: "バックフィルで更新されたドキュメントの合計数",
		}, []string{"patch"}),
		orphansDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chime_orphaned_markers_deleted_total",
			Help: "削除された孤立マーカーの合計数",
		}),
	}

	reg.MustRegister(
		c.operations,
		c.opDuration,
		c.viewsSuppressed,
		c.txRetries,
		c.backfilled,
		c.orphansDeleted,
	)

	return c
}

// RecordOperation はRPC操作の結果と処理時間を記録する。
func (c *Collector) RecordOperation(operation, code string, duration time.Duration) {
	if code == "" {
		code = "ok"
	}
	c.operations.WithLabelValues(operation, code).Inc()
	c.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordViewSuppressed はクールダウンによる閲覧の抑止を記録する。
func (c *Collector) RecordViewSuppressed() {
	c.viewsSuppressed.Inc()
}

// RecordTxRetry はトランザクションの再試行を記録する。
func (c *Collector) RecordTxRetry() {
	c.txRetries.Inc()
}

// RecordBackfilled はバックフィルで更新したドキュメント数を記録する。
func (c *Collector) RecordBackfilled(patch string, count int64) {
	c.backfilled.WithLabelValues(patch).Add(float64(count))
}

// RecordOrphanedMarkersDeleted は削除した孤立マーカー数を記録する。
func (c *Collector) RecordOrphanedMarkersDeleted(count int64) {
	c.orphansDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを公開しないコマンド（backfill等）で使用する。
type NopCollector struct{}

func (NopCollector) RecordOperation(string, string, time.Duration) {}
func (NopCollector) RecordViewSuppressed()                         {}
func (NopCollector) RecordTxRetry()                                {}
func (NopCollector) RecordBackfilled(string, int64)                {}
func (NopCollector) RecordOrphanedMarkersDeleted(int64)            {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
