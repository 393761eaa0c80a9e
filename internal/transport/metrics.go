// Copyright 2025 Joseph Cumines
//
// Metrics registry for observability

package transport

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Metric names exported at /metrics.
const (
	MetricToolCalls       = "xcodebuild_mcp_tool_calls_total"
	MetricToolDuration    = "xcodebuild_mcp_tool_call_duration_seconds"
	MetricCommands        = "xcodebuild_mcp_commands_total"
	MetricCommandDuration = "xcodebuild_mcp_command_duration_seconds"
	MetricLogSessions     = "xcodebuild_mcp_log_sessions_active"
	MetricSSEConnections  = "xcodebuild_mcp_sse_connections_active"
	MetricSSEEvents       = "xcodebuild_mcp_sse_events_sent_total"
)

// Tool calls and commands range from a millisecond (list_sims) to tens of
// minutes (a clean archive build).
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800,
}

// MetricsRegistry is a small in-memory registry exported in Prometheus text
// format. Label sets are pre-rendered strings: key1="v1",key2="v2".
type MetricsRegistry struct {
	counters   map[string]map[string]uint64
	gauges     map[string]map[string]float64
	histograms map[string]*histogram
	mu         sync.Mutex
}

type histogram struct {
	counts  map[string][]uint64
	sums    map[string]float64
	buckets []float64
}

// NewMetricsRegistry creates a registry with every server metric registered.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		counters:   make(map[string]map[string]uint64),
		gauges:     make(map[string]map[string]float64),
		histograms: make(map[string]*histogram),
	}
	for _, name := range []string{MetricToolCalls, MetricCommands, MetricSSEEvents} {
		m.counters[name] = make(map[string]uint64)
	}
	for _, name := range []string{MetricLogSessions, MetricSSEConnections} {
		m.gauges[name] = map[string]float64{"": 0}
	}
	for _, name := range []string{MetricToolDuration, MetricCommandDuration} {
		m.histograms[name] = &histogram{
			counts:  make(map[string][]uint64),
			sums:    make(map[string]float64),
			buckets: latencyBuckets,
		}
	}
	return m
}

// IncrementCounter adds one to a registered counter.
func (m *MetricsRegistry) IncrementCounter(name, labels string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		c[labels]++
	}
}

// SetGauge sets a registered gauge.
func (m *MetricsRegistry) SetGauge(name, labels string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		g[labels] = value
	}
}

// ObserveHistogram records value in a registered histogram.
func (m *MetricsRegistry) ObserveHistogram(name, labels string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		return
	}
	counts, ok := h.counts[labels]
	if !ok {
		// last slot is +Inf
		counts = make([]uint64, len(h.buckets)+1)
		h.counts[labels] = counts
	}
	i, _ := slices.BinarySearch(h.buckets, value)
	counts[i]++
	h.sums[labels] += value
}

// Counter returns the current value of a counter, for tests and diagnostics.
func (m *MetricsRegistry) Counter(name, labels string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name][labels]
}

// Gauge returns the current value of a gauge.
func (m *MetricsRegistry) Gauge(name, labels string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name][labels]
}

// RecordToolCall records one tool invocation. status is success, error or
// failure.
func (m *MetricsRegistry) RecordToolCall(tool, status string, duration time.Duration) {
	m.IncrementCounter(MetricToolCalls, Labels("tool", tool, "status", status))
	m.ObserveHistogram(MetricToolDuration, Labels("tool", tool), duration.Seconds())
}

// RecordCommand records one external command. Only the program's base name
// is used as a label, so project paths never reach the exposition.
func (m *MetricsRegistry) RecordCommand(program, status string, duration time.Duration) {
	program = filepath.Base(program)
	m.IncrementCounter(MetricCommands, Labels("command", program, "status", status))
	m.ObserveHistogram(MetricCommandDuration, Labels("command", program), duration.Seconds())
}

// SetLogSessions sets the number of active log capture sessions.
func (m *MetricsRegistry) SetLogSessions(n int) {
	m.SetGauge(MetricLogSessions, "", float64(n))
}

// RecordSSEEvent records an SSE event being sent.
func (m *MetricsRegistry) RecordSSEEvent() {
	m.IncrementCounter(MetricSSEEvents, "")
}

// SetSSEConnections sets the number of connected SSE clients.
func (m *MetricsRegistry) SetSSEConnections(n int) {
	m.SetGauge(MetricSSEConnections, "", float64(n))
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Labels renders key/value pairs as a Prometheus label set.
func Labels(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `%s="%s"`, kv[i], labelEscaper.Replace(kv[i+1]))
	}
	return b.String()
}

func sample(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// WritePrometheus writes all metrics in Prometheus text format, sorted by
// name then label set.
func (m *MetricsRegistry) WritePrometheus(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	for _, name := range sortedKeys(m.counters) {
		fmt.Fprintf(&b, "# TYPE %s counter\n", name)
		c := m.counters[name]
		for _, l := range sortedKeys(c) {
			fmt.Fprintf(&b, "%s %d\n", sample(name, l), c[l])
		}
	}
	for _, name := range sortedKeys(m.gauges) {
		fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		g := m.gauges[name]
		for _, l := range sortedKeys(g) {
			fmt.Fprintf(&b, "%s %g\n", sample(name, l), g[l])
		}
	}
	for _, name := range sortedKeys(m.histograms) {
		fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
		h := m.histograms[name]
		for _, l := range sortedKeys(h.counts) {
			prefix := l
			if prefix != "" {
				prefix += ","
			}
			var cumulative uint64
			for i, bound := range h.buckets {
				cumulative += h.counts[l][i]
				fmt.Fprintf(&b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, bound, cumulative)
			}
			cumulative += h.counts[l][len(h.buckets)]
			fmt.Fprintf(&b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, cumulative)
			fmt.Fprintf(&b, "%s %g\n", sample(name+"_sum", l), h.sums[l])
			fmt.Fprintf(&b, "%s %d\n", sample(name+"_count", l), cumulative)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
