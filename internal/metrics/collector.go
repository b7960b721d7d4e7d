// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 执行管线指标
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	stageRejections   *prometheus.CounterVec
	activeExecutions  prometheus.Gauge
	outputTruncated   prometheus.Counter
	fixesApplied      prometheus.Counter

	// 存储指标
	storeQueryDuration *prometheus.HistogramVec
	reportPolls        *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 执行管线指标
	c.executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of code executions",
		},
		[]string{"status"},
	)

	c.executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Code execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	c.stageRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_rejections_total",
			Help:      "Requests rejected before execution, by stage and error code",
		},
		[]string{"stage", "code"},
	)

	c.activeExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_executions",
			Help:      "Number of executions currently running",
		},
	)

	c.outputTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_truncated_total",
			Help:      "Executions whose captured output hit the size cap",
		},
	)

	c.fixesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preprocessor_fixes_total",
			Help:      "Total preprocessor fixes applied across executions",
		},
	)

	// 存储指标
	c.storeQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_query_duration_seconds",
			Help:      "Document store query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.reportPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_polls_total",
			Help:      "Prepared report poll attempts by outcome",
		},
		[]string{"outcome"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// ⚙️ 执行管线指标记录
// =============================================================================

// RecordExecution 记录一次执行的最终状态与耗时
func (c *Collector) RecordExecution(status string, duration time.Duration) {
	c.executionsTotal.WithLabelValues(status).Inc()
	c.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStageRejection 记录执行前被拒绝的请求
func (c *Collector) RecordStageRejection(stage, code string) {
	c.stageRejections.WithLabelValues(stage, code).Inc()
}

// ExecutionStarted 标记一次执行开始
func (c *Collector) ExecutionStarted() {
	c.activeExecutions.Inc()
}

// ExecutionFinished 标记一次执行结束
func (c *Collector) ExecutionFinished() {
	c.activeExecutions.Dec()
}

// RecordOutputTruncated 记录输出被截断
func (c *Collector) RecordOutputTruncated() {
	c.outputTruncated.Inc()
}

// RecordFixesApplied 记录预处理器修复次数
func (c *Collector) RecordFixesApplied(n int) {
	c.fixesApplied.Add(float64(n))
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreQuery 记录存储查询耗时
func (c *Collector) RecordStoreQuery(operation string, duration time.Duration) {
	c.storeQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReportPoll 记录预生成报表轮询结果
func (c *Collector) RecordReportPoll(outcome string) {
	c.reportPolls.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
