package signalagent

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/aggregator"
	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/feed"
)

type nopPriceSource struct{}

func (nopPriceSource) SimplePrice(ctx context.Context, pair string) (domain.PriceTick, error) {
	return domain.PriceTick{}, nil
}

type nopYieldSource struct{}

func (nopYieldSource) Pools(ctx context.Context, chainID domain.ChainId) ([]domain.PoolSnapshot, error) {
	return nil, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestAgent(t *testing.T, cfg Config) (*Agent, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(16)
	f := feed.New(nopPriceSource{}, nopYieldSource{}, bus, feed.Config{}, nil, nil, testLogger())
	agg := aggregator.New(f, bus, aggregator.Config{}, testLogger())
	return New(agg, bus, cfg, testLogger()), bus
}

func TestAprDeltaEmitsOpportunityForSameTokenPoolsAcrossChains(t *testing.T) {
	a, bus := newTestAgent(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := bus.Subscribe(ctx, eventbus.TopicSignal)

	keyA := domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"}
	keyB := domain.PoolKey{ChainId: 2, Protocol: domain.ProtocolCompound, PoolAddress: "0xb"}
	now := time.Now()
	snap := domain.MarketSnapshot{Pools: map[domain.PoolKey]domain.PoolSnapshot{
		keyA: {Key: keyA, Token: "USDC", AprBps: 650, ConfidencePpm: 950_000, ObservedAt: now},
		keyB: {Key: keyB, Token: "USDC", AprBps: 890, ConfidencePpm: 900_000, ObservedAt: now},
	}}
	a.evaluateSnapshot(snap)

	select {
	case ev := <-signals:
		sig, ok := ev.(domain.Signal)
		require.True(t, ok)
		assert.Equal(t, domain.SignalKindOpportunity, sig.Kind)
		assert.Equal(t, int64(240), sig.MagnitudeBps) // |890-650|
		assert.Equal(t, domain.ChainId(2), sig.ChainId, "opportunity points at the higher-APR leg")
		assert.Equal(t, int32(900_000), sig.ConfidencePpm, "confidence is the min of the two legs")
	case <-time.After(time.Second):
		t.Fatal("expected an opportunity signal")
	}
}

func TestAprDeltaIgnoresDifferentTokensAndBelowThreshold(t *testing.T) {
	a, bus := newTestAgent(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := bus.Subscribe(ctx, eventbus.TopicSignal)

	keyA := domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"}
	keyB := domain.PoolKey{ChainId: 2, Protocol: domain.ProtocolCompound, PoolAddress: "0xb"}
	keyC := domain.PoolKey{ChainId: 3, Protocol: domain.ProtocolCurve, PoolAddress: "0xc"}
	now := time.Now()
	snap := domain.MarketSnapshot{Pools: map[domain.PoolKey]domain.PoolSnapshot{
		keyA: {Key: keyA, Token: "USDC", AprBps: 650, ObservedAt: now},
		keyB: {Key: keyB, Token: "DAI", AprBps: 890, ObservedAt: now}, // different token, no pairing with A
		keyC: {Key: keyC, Token: "USDC", AprBps: 680, ObservedAt: now}, // 30bps delta, below default 100bps threshold
	}}
	a.evaluateSnapshot(snap)

	select {
	case ev := <-signals:
		t.Fatalf("expected no opportunity signal, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGasCeilingSuppressesOpportunityButNotUtilizationAlert(t *testing.T) {
	a, bus := newTestAgent(t, Config{GasCeilingWei: 100})
	a.OnGas(feed.GasObservation{ChainId: 1, GasWei: 200, ObservedAt: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := bus.Subscribe(ctx, eventbus.TopicSignal)

	keyA := domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"} // gas-breached chain
	keyB := domain.PoolKey{ChainId: 2, Protocol: domain.ProtocolCompound, PoolAddress: "0xb"}
	now := time.Now()
	a.evaluateSnapshot(domain.MarketSnapshot{Pools: map[domain.PoolKey]domain.PoolSnapshot{
		keyA: {Key: keyA, Token: "USDC", AprBps: 500, UtilizationBps: 9500, ObservedAt: now},
		keyB: {Key: keyB, Token: "USDC", AprBps: 900, UtilizationBps: 1000, ObservedAt: now},
	}})

	kinds := map[domain.SignalKind]int{}
	timeout := time.After(time.Second)
drain:
	for {
		select {
		case ev := <-signals:
			sig := ev.(domain.Signal)
			kinds[sig.Kind]++
		case <-timeout:
			break drain
		}
	}
	assert.Zero(t, kinds[domain.SignalKindOpportunity], "opportunity must be suppressed when either leg's chain breaches the gas ceiling")
	assert.Greater(t, kinds[domain.SignalKindAlert], 0, "utilization and gas alerts still fire")
}

func TestSignificantPriceChangeEmitsInfo(t *testing.T) {
	a, bus := newTestAgent(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := bus.Subscribe(ctx, eventbus.TopicSignal)

	a.evaluatePriceChange(feed.PriceChange{Pair: "ETH/USD", DeltaBps: 300, Tick: domain.PriceTick{ConfidencePpm: 990_000, ObservedAt: time.Now()}})

	select {
	case ev := <-signals:
		sig := ev.(domain.Signal)
		assert.Equal(t, domain.SignalKindInfo, sig.Kind)
		assert.Equal(t, "ETH/USD", sig.Pair)
	case <-time.After(time.Second):
		t.Fatal("expected an info signal")
	}
}
