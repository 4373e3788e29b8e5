package monitoring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics 指标收集器 — atomic mirrors of the Prometheus series below, kept so
// GetStats/GetDashboardData can read a value back without scraping the
// registry (client_golang counters/gauges are write-only from Go code).
type Metrics struct {
	// 请求计数
	RequestsTotal   uint64
	RequestsSuccess uint64
	RequestsFailed  uint64

	// 工具调用
	ToolCallsTotal   uint64
	ToolCallsSuccess uint64
	ToolCallsFailed  uint64

	// 会话
	ActiveSessions int64

	// 延迟 (纳秒)
	RequestLatencySum   uint64
	RequestLatencyCount uint64
	ToolLatencySum      uint64
	ToolLatencyCount    uint64

	// 模型调用
	ModelCallsTotal uint64
	ModelTokensUsed uint64

	// 错误
	ErrorsTotal uint64

	// 启动时间
	StartTime time.Time
}

// promSeries holds the real Prometheus collectors Monitor publishes through
// its /metrics endpoint (infrastructure/monitoring/prometheus.go).
type promSeries struct {
	requestsTotal    prometheus.Counter
	requestsSuccess  prometheus.Counter
	requestsFailed   prometheus.Counter
	toolCallsTotal   prometheus.Counter
	toolCallsSuccess prometheus.Counter
	toolCallsFailed  prometheus.Counter
	modelCallsTotal  prometheus.Counter
	modelTokensUsed  prometheus.Counter
	errorsTotal      prometheus.Counter
	activeSessions   prometheus.Gauge
	requestLatency   prometheus.Histogram
	toolLatency      prometheus.Histogram
}

// Monitor 性能监控器 — wraps a dedicated Prometheus registry so the gateway's
// /metrics surface doesn't collide with anything else registered process-wide.
type Monitor struct {
	metrics  *Metrics
	logger   *zap.Logger
	mu       sync.RWMutex
	registry *prometheus.Registry
	prom     *promSeries

	// 历史数据 (用于图表)
	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Timestamp         time.Time
	RequestsPerSecond float64
	ToolCallsPerSec   float64
	AvgLatencyMs      float64
	ActiveSessions    int64
	MemoryMB          float64
	Goroutines        int
}

// NewMonitor 创建监控器. namespace prefixes every Prometheus series name
// (e.g. "ngoclaw"), matching the conventions wired in BudgetTracker/EventBus.
func NewMonitor(logger *zap.Logger, namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	prom := &promSeries{
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "requests_total",
			Help: "Total number of agent turn requests processed",
		}),
		requestsSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "requests_success_total",
			Help: "Total successful agent turn requests",
		}),
		requestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "requests_failed_total",
			Help: "Total failed agent turn requests",
		}),
		toolCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tool", Name: "calls_total",
			Help: "Total tool calls executed",
		}),
		toolCallsSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tool", Name: "calls_success_total",
			Help: "Total successful tool calls",
		}),
		toolCallsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tool", Name: "calls_failed_total",
			Help: "Total failed tool calls",
		}),
		modelCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "model", Name: "calls_total",
			Help: "Total LLM model calls",
		}),
		modelTokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "model", Name: "tokens_used_total",
			Help: "Total tokens consumed across all model calls",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Total errors encountered across the agent loop",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Number of sessions with a live ReplyDriver",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "agent", Name: "request_latency_seconds",
			Help:    "LLM call latency per agent loop step",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		toolLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "tool", Name: "call_latency_seconds",
			Help:    "Tool execution latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
	}
	registry.MustRegister(
		prom.requestsTotal, prom.requestsSuccess, prom.requestsFailed,
		prom.toolCallsTotal, prom.toolCallsSuccess, prom.toolCallsFailed,
		prom.modelCallsTotal, prom.modelTokensUsed, prom.errorsTotal,
		prom.activeSessions, prom.requestLatency, prom.toolLatency,
	)

	return &Monitor{
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		logger:       logger,
		registry:     registry,
		prom:         prom,
		history:      make([]MetricsSnapshot, 0, 100),
		historyLimit: 100,
	}
}

// 计数方法 — each updates both the atomic mirror (read back by GetStats) and
// the Prometheus series (scraped via PrometheusHandler).
func (m *Monitor) IncRequestTotal() {
	atomic.AddUint64(&m.metrics.RequestsTotal, 1)
	m.prom.requestsTotal.Inc()
}

func (m *Monitor) IncRequestSuccess() {
	atomic.AddUint64(&m.metrics.RequestsSuccess, 1)
	m.prom.requestsSuccess.Inc()
}

func (m *Monitor) IncRequestFailed() {
	atomic.AddUint64(&m.metrics.RequestsFailed, 1)
	m.prom.requestsFailed.Inc()
}

func (m *Monitor) IncToolCallTotal() {
	atomic.AddUint64(&m.metrics.ToolCallsTotal, 1)
	m.prom.toolCallsTotal.Inc()
}

func (m *Monitor) IncToolCallSuccess() {
	atomic.AddUint64(&m.metrics.ToolCallsSuccess, 1)
	m.prom.toolCallsSuccess.Inc()
}

func (m *Monitor) IncToolCallFailed() {
	atomic.AddUint64(&m.metrics.ToolCallsFailed, 1)
	m.prom.toolCallsFailed.Inc()
}

func (m *Monitor) IncModelCall() {
	atomic.AddUint64(&m.metrics.ModelCallsTotal, 1)
	m.prom.modelCallsTotal.Inc()
}

func (m *Monitor) IncError() {
	atomic.AddUint64(&m.metrics.ErrorsTotal, 1)
	m.prom.errorsTotal.Inc()
}

func (m *Monitor) AddTokensUsed(n int) {
	atomic.AddUint64(&m.metrics.ModelTokensUsed, uint64(n))
	m.prom.modelTokensUsed.Add(float64(n))
}

func (m *Monitor) SetActiveSessions(n int64) {
	atomic.StoreInt64(&m.metrics.ActiveSessions, n)
	m.prom.activeSessions.Set(float64(n))
}

func (m *Monitor) RecordRequestLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.RequestLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.RequestLatencyCount, 1)
	m.prom.requestLatency.Observe(d.Seconds())
}

func (m *Monitor) RecordToolLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.ToolLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.ToolLatencyCount, 1)
	m.prom.toolLatency.Observe(d.Seconds())
}

// Registry exposes the dedicated Prometheus registry backing this Monitor,
// for embedding its collectors elsewhere (tests, a combined /metrics mux).
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// GetStats 获取当前统计
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime)
	reqTotal := atomic.LoadUint64(&m.metrics.RequestsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6 // ms
	}

	return map[string]interface{}{
		"uptime_seconds":     uptime.Seconds(),
		"requests_total":     reqTotal,
		"requests_success":   atomic.LoadUint64(&m.metrics.RequestsSuccess),
		"requests_failed":    atomic.LoadUint64(&m.metrics.RequestsFailed),
		"tool_calls_total":   atomic.LoadUint64(&m.metrics.ToolCallsTotal),
		"tool_calls_success": atomic.LoadUint64(&m.metrics.ToolCallsSuccess),
		"tool_calls_failed":  atomic.LoadUint64(&m.metrics.ToolCallsFailed),
		"model_calls_total":  atomic.LoadUint64(&m.metrics.ModelCallsTotal),
		"model_tokens_used":  atomic.LoadUint64(&m.metrics.ModelTokensUsed),
		"active_sessions":    atomic.LoadInt64(&m.metrics.ActiveSessions),
		"errors_total":       atomic.LoadUint64(&m.metrics.ErrorsTotal),
		"avg_latency_ms":     avgLatency,
		"memory_mb":          float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":         runtime.NumGoroutine(),
		"rps":                float64(reqTotal) / uptime.Seconds(),
	}
}

// Snapshot 创建快照并保存
func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime).Seconds()
	reqTotal := atomic.LoadUint64(&m.metrics.RequestsTotal)
	toolTotal := atomic.LoadUint64(&m.metrics.ToolCallsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.RequestLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.RequestLatencySum)) / float64(count) / 1e6
	}

	snapshot := MetricsSnapshot{
		Timestamp:         time.Now(),
		RequestsPerSecond: float64(reqTotal) / uptime,
		ToolCallsPerSec:   float64(toolTotal) / uptime,
		AvgLatencyMs:      avgLatency,
		ActiveSessions:    atomic.LoadInt64(&m.metrics.ActiveSessions),
		MemoryMB:          float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:        runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

// GetHistory 获取历史快照
func (m *Monitor) GetHistory() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector 启动定期收集
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}

// DashboardData 仪表盘数据
type DashboardData struct {
	Stats   map[string]interface{} `json:"stats"`
	History []MetricsSnapshot      `json:"history"`
}

// GetDashboardData 获取仪表盘数据
func (m *Monitor) GetDashboardData() *DashboardData {
	return &DashboardData{
		Stats:   m.GetStats(),
		History: m.GetHistory(),
	}
}
