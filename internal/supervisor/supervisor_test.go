package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSupervisorStopsCleanlyOnCancel(t *testing.T) {
	bus := eventbus.New(16)
	var ran int32
	comp := Component{Name: "feed", Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		<-ctx.Done()
		return ctx.Err()
	}}
	sup := New([]Component{comp}, bus, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		require.NoError(t, sup.Run(ctx))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestSupervisorRestartsFailingComponent(t *testing.T) {
	bus := eventbus.New(16)
	var calls int32
	comp := Component{Name: "aggregator", Run: func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("transient failure")
		}
		<-ctx.Done()
		return ctx.Err()
	}}

	sup := New([]Component{comp}, bus, Config{RestartBaseBackoff: time.Millisecond, RestartMaxBackoff: 5 * time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := bus.Subscribe(ctx, eventbus.TopicHealthReport)
	go sup.Run(ctx)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&calls) < 3 {
		select {
		case <-events:
		case <-deadline:
			t.Fatal("component never reached its third attempt")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.False(t, sup.Degraded("aggregator"))
}

func TestSupervisorMarksDegradedAfterBudgetExhausted(t *testing.T) {
	bus := eventbus.New(16)
	comp := Component{Name: "orchestrator", Run: func(ctx context.Context) error {
		return errors.New("permanent failure")
	}}
	sup := New([]Component{comp}, bus, Config{RestartBaseBackoff: time.Millisecond, RestartMaxBackoff: 2 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := bus.Subscribe(ctx, eventbus.TopicHealthReport)
	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for !sup.Degraded("orchestrator") {
		select {
		case <-events:
		case <-deadline:
			t.Fatal("component never marked degraded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.True(t, sup.Degraded("orchestrator"))
}

func TestSupervisorFailureInOneComponentDoesNotAffectAnother(t *testing.T) {
	bus := eventbus.New(16)
	var healthyRuns int32
	failing := Component{Name: "bad", Run: func(ctx context.Context) error {
		return errors.New("always fails")
	}}
	healthy := Component{Name: "good", Run: func(ctx context.Context) error {
		atomic.AddInt32(&healthyRuns, 1)
		<-ctx.Done()
		return ctx.Err()
	}}
	sup := New([]Component{failing, healthy}, bus, Config{RestartBaseBackoff: time.Millisecond, RestartMaxBackoff: 2 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !sup.Degraded("bad") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, sup.Degraded("bad"))
	assert.False(t, sup.Degraded("good"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&healthyRuns))
}
