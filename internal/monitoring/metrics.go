package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标结果标签
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics 监控指标
type Metrics struct {
	// 提交指标
	CommitsTotal   *prometheus.CounterVec
	CommitDuration *prometheus.HistogramVec
	CommitBytes    *prometheus.HistogramVec
	StaleRemoved   *prometheus.CounterVec

	// 删除指标
	RemovalsTotal *prometheus.CounterVec
	DirsPruned    *prometheus.CounterVec

	// 暂存指标
	StagedBytes prometheus.Histogram

	// 清理指标
	OrphansRemoved *prometheus.CounterVec

	// 缓存指标
	CacheLookups *prometheus.CounterVec

	// HTTP 指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics 创建监控指标并注册到指定的注册表。
//
// 传入 nil 时使用独立的新注册表，便于测试中多次创建。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_commits_total",
				Help: "Total number of staged file commits",
			},
			[]string{"category", "result"},
		),

		CommitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cargo_commit_duration_seconds",
				Help:    "Time spent materializing staged content on disk",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),

		CommitBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cargo_commit_size_bytes",
				Help:    "Size of committed files in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB ~ 256MB
			},
			[]string{"category"},
		),

		StaleRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_stale_files_removed_total",
				Help: "Total number of stale sibling files replaced during commit",
			},
			[]string{"category"},
		),

		RemovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_removals_total",
				Help: "Total number of stored file removals",
			},
			[]string{"category", "result"},
		),

		DirsPruned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_directories_pruned_total",
				Help: "Total number of empty directories removed after deletion",
			},
			[]string{"category"},
		),

		StagedBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cargo_staged_size_bytes",
				Help:    "Size of content buffered in the staging area",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),

		OrphansRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_orphans_removed_total",
				Help: "Total number of orphaned files removed by sweeps",
			},
			[]string{"category"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_cache_lookups_total",
				Help: "Total number of stored file cache lookups",
			},
			[]string{"result"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cargo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cargo_errors_total",
				Help: "Total number of storage errors by operation",
			},
			[]string{"operation"},
		),

		gatherer: reg,
	}
}

// RecordCommit 记录一次提交
func (m *Metrics) RecordCommit(category string, size int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CommitsTotal.WithLabelValues(category, ResultError).Inc()
		m.ErrorsTotal.WithLabelValues("commit").Inc()
		return
	}
	m.CommitsTotal.WithLabelValues(category, ResultSuccess).Inc()
	m.CommitDuration.WithLabelValues(category).Observe(duration.Seconds())
	m.CommitBytes.WithLabelValues(category).Observe(float64(size))
}

// RecordStaleRemoved 记录被替换的旧文件数量
func (m *Metrics) RecordStaleRemoved(category string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.StaleRemoved.WithLabelValues(category).Add(float64(count))
}

// RecordRemoval 记录一次删除
func (m *Metrics) RecordRemoval(category string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RemovalsTotal.WithLabelValues(category, ResultError).Inc()
		m.ErrorsTotal.WithLabelValues("remove").Inc()
		return
	}
	m.RemovalsTotal.WithLabelValues(category, ResultSuccess).Inc()
}

// RecordPruned 记录删除的空目录数量
func (m *Metrics) RecordPruned(category string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.DirsPruned.WithLabelValues(category).Add(float64(count))
}

// RecordStaged 记录暂存内容大小
func (m *Metrics) RecordStaged(size int64) {
	if m == nil {
		return
	}
	m.StagedBytes.Observe(float64(size))
}

// RecordOrphanRemoved 记录清理的孤儿文件
func (m *Metrics) RecordOrphanRemoved(category string) {
	if m == nil {
		return
	}
	m.OrphansRemoved.WithLabelValues(category).Inc()
}

// RecordCacheLookup 记录缓存命中情况
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordError 记录其他操作错误
func (m *Metrics) RecordError(operation string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(operation).Inc()
}

// HTTPHandler 返回 Prometheus 指标处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
