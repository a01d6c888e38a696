package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupRejectsWithinWindow(t *testing.T) {
	d := newDedup(time.Minute)
	now := time.Now()
	assert.False(t, d.isDuplicate("op-1", now))
	assert.True(t, d.isDuplicate("op-1", now.Add(time.Second)))
}

func TestDedupAllowsAfterTTL(t *testing.T) {
	d := newDedup(time.Minute)
	now := time.Now()
	assert.False(t, d.isDuplicate("op-1", now))
	assert.False(t, d.isDuplicate("op-1", now.Add(2*time.Minute)))
}

func TestDedupCleanupEvictsExpired(t *testing.T) {
	d := newDedup(time.Minute)
	now := time.Now()
	d.isDuplicate("op-1", now)
	d.cleanup(now.Add(2 * time.Minute))

	d.mu.Lock()
	_, exists := d.seen["op-1"]
	d.mu.Unlock()
	assert.False(t, exists)
}
