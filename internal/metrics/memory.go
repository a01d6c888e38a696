// Package metrics provides the default in-process implementation of
// domain.MetricsSink: a thread-safe set of counters, gauges, and latency
// observations that internal/server exposes as a JSON snapshot. The control
// plane never depends on a particular metrics backend — callers only see
// domain.MetricsSink.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// key identifies one metric series by name and its tag set, flattened to a
// single string so it can be used as a map key.
func key(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := name
	for _, k := range keys {
		out += "," + k + "=" + tags[k]
	}
	return out
}

// latencyStats tracks a running count/sum for one latency series; Snapshot
// reports the mean rather than a full histogram, which is enough for a
// single-process health/debug endpoint.
type latencyStats struct {
	count int64
	sumMs float64
}

// Memory is a process-local domain.MetricsSink. The zero value is not
// usable; use New.
type Memory struct {
	mu        sync.Mutex
	counters  map[string]int64
	gauges    map[string]float64
	latencies map[string]latencyStats
}

// New creates an empty Memory sink.
func New() *Memory {
	return &Memory{
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
		latencies: make(map[string]latencyStats),
	}
}

// IncCounter satisfies domain.MetricsSink.
func (m *Memory) IncCounter(name string, delta int64, tags map[string]string) {
	k := key(name, tags)
	m.mu.Lock()
	m.counters[k] += delta
	m.mu.Unlock()
}

// SetGauge satisfies domain.MetricsSink.
func (m *Memory) SetGauge(name string, value float64, tags map[string]string) {
	k := key(name, tags)
	m.mu.Lock()
	m.gauges[k] = value
	m.mu.Unlock()
}

// ObserveLatency satisfies domain.MetricsSink.
func (m *Memory) ObserveLatency(name string, d time.Duration, tags map[string]string) {
	k := key(name, tags)
	m.mu.Lock()
	s := m.latencies[k]
	s.count++
	s.sumMs += float64(d.Microseconds()) / 1000
	m.latencies[k] = s
	m.mu.Unlock()
}

// Snapshot is the JSON-serializable view internal/server returns from
// GET /metrics.
type Snapshot struct {
	Counters map[string]int64             `json:"counters"`
	Gauges   map[string]float64           `json:"gauges"`
	Latency  map[string]LatencySnapshot   `json:"latency_ms"`
}

// LatencySnapshot is one series' observation count and mean, in
// milliseconds.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MeanMs float64 `json:"mean_ms"`
}

// Snapshot returns a point-in-time copy of every tracked series.
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Snapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
		Latency:  make(map[string]LatencySnapshot, len(m.latencies)),
	}
	for k, v := range m.counters {
		out.Counters[k] = v
	}
	for k, v := range m.gauges {
		out.Gauges[k] = v
	}
	for k, s := range m.latencies {
		mean := 0.0
		if s.count > 0 {
			mean = s.sumMs / float64(s.count)
		}
		out.Latency[k] = LatencySnapshot{Count: s.count, MeanMs: mean}
	}
	return out
}
