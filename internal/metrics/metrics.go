// metrics.go — per-tool request counts and response-time histograms, plus
// the Prometheus exposition of those counters and the registry/cache
// counters they sit alongside. Collectors register against their own
// *prometheus.Registry rather than the global one, so /metrics only ever
// exposes this server's series.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gasoline-mcp/browser-bridge/internal/cache"
	"github.com/gasoline-mcp/browser-bridge/internal/registry"
)

// Metrics is the Recorder implementation internal/dispatch.Dispatcher
// reports tool-call outcomes to, and the source of the Prometheus
// exposition on the optional metrics port.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	toolCalls   *prometheus.CounterVec
	toolErrors  *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec
}

// New creates a Metrics instance registered against its own Registry (not
// the global default), with every series under the given namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		namespace: namespace,
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total MCP tool invocations, by tool name.",
		}, []string{"tool"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Total MCP tool invocations that returned an error, by tool name.",
		}, []string{"tool"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_request_duration_seconds",
			Help:      "MCP tool call latency, by tool name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	reg.MustRegister(m.toolCalls, m.toolErrors, m.toolLatency)
	return m
}

// Gatherer exposes the private registry for promhttp.HandlerFor.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// RegisterComponentGauges wires the registry's and cache's own counters
// onto GaugeFuncs so /metrics exposes cache hits/misses, connection counts,
// and message counts without those components depending on Prometheus
// themselves — the gauges read the live component on scrape rather than
// being pushed to continuously.
func (m *Metrics) RegisterComponentGauges(namespace string, reg *registry.Registry, c *cache.Cache) {
	gaugeFunc := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, fn)
	}

	m.registry.MustRegister(
		gaugeFunc("cache_hits_total", "Total tab-cache hits.", func() float64 {
			return float64(c.GetCacheStats().Hits)
		}),
		gaugeFunc("cache_misses_total", "Total tab-cache misses.", func() float64 {
			return float64(c.GetCacheStats().Misses)
		}),
		gaugeFunc("cached_tabs", "Number of tabs currently held in the cache.", func() float64 {
			return float64(c.GetCacheStats().TabCount)
		}),
		gaugeFunc("connections_active", "Currently open extension connections.", func() float64 {
			return float64(reg.Stats().ActiveConnections)
		}),
		gaugeFunc("connections_total", "Extension connections accepted since startup.", func() float64 {
			return float64(reg.Stats().TotalConnections)
		}),
		gaugeFunc("messages_sent_total", "Frames enqueued onto extension connections.", func() float64 {
			return float64(reg.Stats().MessagesSent)
		}),
		gaugeFunc("messages_received_total", "Frames received from extension connections.", func() float64 {
			return float64(reg.Stats().MessagesReceived)
		}),
		gaugeFunc("connection_errors_total", "Connections torn down due to protocol errors.", func() float64 {
			return float64(reg.Stats().ConnectionErrors)
		}),
	)
}

// ObserveToolCall implements dispatch.Recorder: called once per tool
// invocation with its outcome.
func (m *Metrics) ObserveToolCall(tool string, duration time.Duration, err error) {
	m.toolCalls.WithLabelValues(tool).Inc()
	if err != nil {
		m.toolErrors.WithLabelValues(tool).Inc()
	}
	m.toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// Snapshot is a point-in-time read of the per-tool counters, used by
// /health's performance_stats (requests_per_second, average_response_time_ms,
// error_rate) which are derived, not scraped, from the same collectors.
type Snapshot struct {
	TotalCalls    float64
	TotalErrors   float64
	TotalSeconds  float64
	ObservedCount uint64
}

// Collect sums the per-tool vectors into a single Snapshot. Prometheus'
// client_golang does not expose vector totals directly, so this reads the
// private registry back in-process via Gather and sums each family's
// metrics. Gathered family names carry the namespace prefix, which is
// stripped before matching.
func (m *Metrics) Collect() Snapshot {
	var snap Snapshot

	mfs, err := m.registry.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range mfs {
		switch strings.TrimPrefix(mf.GetName(), m.namespace+"_") {
		case "tool_calls_total":
			for _, metric := range mf.GetMetric() {
				snap.TotalCalls += metric.GetCounter().GetValue()
			}
		case "tool_errors_total":
			for _, metric := range mf.GetMetric() {
				snap.TotalErrors += metric.GetCounter().GetValue()
			}
		case "tool_request_duration_seconds":
			for _, metric := range mf.GetMetric() {
				h := metric.GetHistogram()
				snap.TotalSeconds += h.GetSampleSum()
				snap.ObservedCount += h.GetSampleCount()
			}
		}
	}
	return snap
}
