package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.executionsTotal)
	assert.NotNil(t, collector.executionDuration)
	assert.NotNil(t, collector.stageRejections)
	assert.NotNil(t, collector.storeQueryDuration)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录请求
	collector.RecordHTTPRequest("POST", "/api/v1/execute", 200, 100*time.Millisecond, 1024, 2048)

	// 验证指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	// 再记录一次相同的请求
	collector.RecordHTTPRequest("POST", "/api/v1/execute", 200, 50*time.Millisecond, 512, 1024)

	// 验证计数增加
	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordExecution(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录执行
	collector.RecordExecution("success", 500*time.Millisecond)
	collector.RecordExecution("runtime_fault", 20*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.executionsTotal)
	assert.Greater(t, count, 0)

	durCount := testutil.CollectAndCount(collector.executionDuration)
	assert.Greater(t, durCount, 0)
}

func TestCollector_RecordStageRejection(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录扫描阶段拒绝
	collector.RecordStageRejection("scanner", "SECURITY_VIOLATION")
	collector.RecordStageRejection("mediator", "CAPABILITY_REJECTED")

	// 验证指标
	count := testutil.CollectAndCount(collector.stageRejections)
	assert.Greater(t, count, 0)
}

func TestCollector_ActiveExecutions(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.ExecutionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.activeExecutions))

	collector.ExecutionFinished()
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.activeExecutions))
}

func TestCollector_RecordStoreQuery(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录存储查询
	collector.RecordStoreQuery("find", 20*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.storeQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordReportPoll(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录轮询结果
	collector.RecordReportPoll("not_ready")
	collector.RecordReportPoll("ready")

	// 验证指标
	count := testutil.CollectAndCount(collector.reportPolls)
	assert.Equal(t, 2, count)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("POST", "/api/v1/execute", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordExecution("success", 500*time.Millisecond)
			collector.RecordStoreQuery("find", 5*time.Millisecond)
			done <- true
		}(i)
	}

	// 等待所有 goroutine 完成
	for i := 0; i < 10; i++ {
		<-done
	}

	// 验证指标被正确记录
	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	execCount := testutil.CollectAndCount(collector.executionsTotal)
	assert.Greater(t, execCount, 0)

	storeCount := testutil.CollectAndCount(collector.storeQueryDuration)
	assert.Greater(t, storeCount, 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	logger := zap.NewNop()

	// 创建自定义 registry
	registry := prometheus.NewRegistry()

	// 创建 collector（会自动注册到默认 registry）
	collector := NewCollector(nextTestNamespace(), logger)

	// 手动注册到自定义 registry
	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	// 记录一些数据
	collector.RecordHTTPRequest("POST", "/api/v1/execute", 200, 100*time.Millisecond, 0, 0)

	// 验证可以从自定义 registry 收集指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}
