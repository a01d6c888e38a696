package upkeep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixedSnapshot struct{ snap domain.MarketSnapshot }

func (f fixedSnapshot) CurrentSnapshot() domain.MarketSnapshot { return f.snap }

type fixedGas struct{ wei uint64 }

func (f fixedGas) LatestGasWei(chainID domain.ChainId) (uint64, bool) { return f.wei, true }

type fixedDecision struct{ d domain.Decision }

func (f fixedDecision) LatestDecision() (domain.Decision, bool) { return f.d, true }

type countingSubmitter struct {
	calls int
	fail  int // number of leading calls to fail
}

func (s *countingSubmitter) SubmitRebalance(ctx context.Context, req ExecuteRebalanceRequest) error {
	s.calls++
	if s.calls <= s.fail {
		return errors.New("transient upstream error")
	}
	return nil
}

func poolSnap(chain domain.ChainId, apr int32) domain.MarketSnapshot {
	key := domain.PoolKey{ChainId: chain, Protocol: domain.ProtocolAave, PoolAddress: "0xa"}
	key2 := domain.PoolKey{ChainId: chain, Protocol: domain.ProtocolCompound, PoolAddress: "0xb"}
	return domain.MarketSnapshot{Pools: map[domain.PoolKey]domain.PoolSnapshot{
		key:  {Key: key, AprBps: apr, TvlSmallest: domain.NewBigInt(1000), ObservedAt: time.Now()},
		key2: {Key: key2, AprBps: apr + 200, TvlSmallest: domain.NewBigInt(1000), ObservedAt: time.Now()},
	}}
}

func TestAprDeltaTriggersSubmission(t *testing.T) {
	sub := &countingSubmitter{}
	bus := eventbus.New(16)
	decision := domain.Decision{Action: domain.ActionRebalance, ConfidencePpm: 900_000, ConsensusPpm: 900_000}
	e := New(fixedSnapshot{poolSnap(1, 300)}, fixedGas{wei: 10}, fixedDecision{decision}, sub, bus, Config{}, testLogger())
	e.Register(domain.UpkeepConfig{
		Id: "u1", TargetChain: 1, Active: true, AprDeltaThresholdBps: 100,
		MinConfidencePpm: 600_000, MinConsensusPpm: 600_000, GasCeilingWei: 100,
	})

	e.evaluateOne(context.Background(), "u1")
	assert.Equal(t, 1, sub.calls)
}

func TestGasCeilingBlocksSubmission(t *testing.T) {
	sub := &countingSubmitter{}
	bus := eventbus.New(16)
	decision := domain.Decision{Action: domain.ActionRebalance, ConfidencePpm: 900_000, ConsensusPpm: 900_000}
	e := New(fixedSnapshot{poolSnap(1, 300)}, fixedGas{wei: 500}, fixedDecision{decision}, sub, bus, Config{}, testLogger())
	e.Register(domain.UpkeepConfig{
		Id: "u1", TargetChain: 1, Active: true, AprDeltaThresholdBps: 100,
		MinConfidencePpm: 600_000, MinConsensusPpm: 600_000, GasCeilingWei: 100,
	})

	e.evaluateOne(context.Background(), "u1")
	assert.Zero(t, sub.calls, "gas above ceiling must block submission even though apr delta fired")
}

func TestTransientFailureRetriedThenSucceeds(t *testing.T) {
	sub := &countingSubmitter{fail: 2}
	bus := eventbus.New(16)
	decision := domain.Decision{Action: domain.ActionRebalance, ConfidencePpm: 900_000, ConsensusPpm: 900_000}
	e := New(fixedSnapshot{poolSnap(1, 300)}, fixedGas{wei: 10}, fixedDecision{decision}, sub, bus, Config{RetryBaseBackoff: time.Millisecond, MaxSubmitRetries: 5}, testLogger())
	e.Register(domain.UpkeepConfig{
		Id: "u1", TargetChain: 1, Active: true, AprDeltaThresholdBps: 100,
		MinConfidencePpm: 600_000, MinConsensusPpm: 600_000, GasCeilingWei: 100,
	})

	e.evaluateOne(context.Background(), "u1")
	assert.Equal(t, 3, sub.calls)
}

func TestPersistentFailurePausesAndEmitsUpkeepFailed(t *testing.T) {
	sub := &countingSubmitter{fail: 100}
	bus := eventbus.New(16)
	decision := domain.Decision{Action: domain.ActionRebalance, ConfidencePpm: 900_000, ConsensusPpm: 900_000}
	e := New(fixedSnapshot{poolSnap(1, 300)}, fixedGas{wei: 10}, fixedDecision{decision}, sub, bus, Config{RetryBaseBackoff: time.Millisecond, MaxSubmitRetries: 2}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	failed := bus.Subscribe(ctx, eventbus.TopicUpkeepFailed)

	u := domain.UpkeepConfig{
		Id: "u1", TargetChain: 1, Active: true, AprDeltaThresholdBps: 100,
		MinConfidencePpm: 600_000, MinConsensusPpm: 600_000, GasCeilingWei: 100,
	}
	e.Register(u)
	e.evaluateOne(context.Background(), "u1")

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("expected upkeepFailed event")
	}

	e.mu.Lock()
	paused := e.upkeeps["u1"].Paused(time.Now())
	e.mu.Unlock()
	require.True(t, paused)
}
