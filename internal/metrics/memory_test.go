package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncCounterAccumulatesByTagSet(t *testing.T) {
	m := New()
	m.IncCounter("decisions_recorded", 1, map[string]string{"action": "hold"})
	m.IncCounter("decisions_recorded", 2, map[string]string{"action": "hold"})
	m.IncCounter("decisions_recorded", 1, map[string]string{"action": "rebalance"})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Counters["decisions_recorded,action=hold"])
	assert.Equal(t, int64(1), snap.Counters["decisions_recorded,action=rebalance"])
}

func TestSetGaugeOverwrites(t *testing.T) {
	m := New()
	m.SetGauge("queue_depth", 5, nil)
	m.SetGauge("queue_depth", 2, nil)

	assert.Equal(t, 2.0, m.Snapshot().Gauges["queue_depth"])
}

func TestObserveLatencyTracksMean(t *testing.T) {
	m := New()
	m.ObserveLatency("poll_latency", 100*time.Millisecond, nil)
	m.ObserveLatency("poll_latency", 300*time.Millisecond, nil)

	snap := m.Snapshot().Latency["poll_latency"]
	assert.Equal(t, int64(2), snap.Count)
	assert.InDelta(t, 200, snap.MeanMs, 0.01)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := New()
	m.IncCounter("x", 1, nil)
	snap := m.Snapshot()
	snap.Counters["x"] = 999

	assert.Equal(t, int64(1), m.Snapshot().Counters["x"])
}
