package strategyagent

import (
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// aprPoint is a single historical APR observation for a pool.
type aprPoint struct {
	AprBps int32
	Time   time.Time
}

// AprTracker maintains a sliding window of recent APR observations per pool,
// the basis for the strategy agent's "scenario coverage" confidence factor
// (spec.md §4.5 point 4): the fraction of recent scenarios in which a given
// target pool's APR actually exceeded the source pool's, mirroring the
// teacher's PriceTracker sliding-window idiom retargeted from prices to
// pool APRs.
type AprTracker struct {
	mu         sync.RWMutex
	history    map[domain.PoolKey][]aprPoint
	windowSize time.Duration
}

// NewAprTracker builds a tracker retaining windowSize of history per pool.
func NewAprTracker(windowSize time.Duration) *AprTracker {
	if windowSize <= 0 {
		windowSize = 24 * time.Hour
	}
	return &AprTracker{history: make(map[domain.PoolKey][]aprPoint), windowSize: windowSize}
}

// Observe records pool's current APR at ts.
func (t *AprTracker) Observe(pool domain.PoolKey, aprBps int32, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[pool] = append(t.history[pool], aprPoint{AprBps: aprBps, Time: ts})
	t.trim(pool, ts)
}

// ScenarioCoverage returns the fraction (0..1) of recorded (source, target)
// history pairs, aligned by index, where target's APR exceeded source's —
// the "fraction of scenarios where gain > 0" spec.md §4.5 requires. Returns
// 1.0 (full coverage) when fewer than two aligned observations exist yet,
// so a brand-new pair does not spuriously zero out confidence.
func (t *AprTracker) ScenarioCoverage(source, target domain.PoolKey) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := t.history[source]
	tgt := t.history[target]
	n := len(src)
	if len(tgt) < n {
		n = len(tgt)
	}
	if n < 2 {
		return 1.0
	}
	positive := 0
	for i := 0; i < n; i++ {
		if tgt[i].AprBps > src[i].AprBps {
			positive++
		}
	}
	return float64(positive) / float64(n)
}

func (t *AprTracker) trim(pool domain.PoolKey, now time.Time) {
	cutoff := now.Add(-t.windowSize)
	pts := t.history[pool]
	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.history[pool] = pts[i:]
	}
}
