package strategyagent

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

type zeroFee struct{}

func (zeroFee) EstimateFeeBps(ctx context.Context, step domain.ReallocationStep) (int64, error) {
	return 0, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testSnapshot() domain.MarketSnapshot {
	now := time.Now()
	aave := domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"}
	compound := domain.PoolKey{ChainId: 2, Protocol: domain.ProtocolCompound, PoolAddress: "0xc"}
	return domain.MarketSnapshot{
		Pools: map[domain.PoolKey]domain.PoolSnapshot{
			aave:     {Key: aave, AprBps: 300, UtilizationBps: 5000, ObservedAt: now},
			compound: {Key: compound, AprBps: 800, UtilizationBps: 4000, ObservedAt: now},
		},
		TakenAt: now,
	}
}

func TestEvaluateProducesDeterministicTopK(t *testing.T) {
	snap := testSnapshot()
	positions := []Position{{
		Pool:           domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"},
		Token:          "USDC",
		AmountSmallest: domain.NewBigInt(1_000_000),
	}}

	reg := NewRegistry()
	reg.Register(HigherAprGenerator{})
	engine := NewEngine(reg, zeroFee{}, NewAprTracker(time.Hour), Config{TopK: 8}, testLogger())

	scores1, err := engine.Evaluate(context.Background(), positions, snap, nil)
	require.NoError(t, err)
	scores2, err := engine.Evaluate(context.Background(), positions, snap, nil)
	require.NoError(t, err)

	require.Len(t, scores1, 1)
	assert.Equal(t, scores1, scores2, "identical inputs must produce identical outputs")
	assert.Equal(t, int64(400), scores1[0].ExpectedGainBps) // 800-300=500bps gross, zero fee, default 100bps slippage
}

func TestExpectedGainSubtractsFeeAndSlippage(t *testing.T) {
	snap := testSnapshot()
	positions := []Position{{
		Pool:           domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"},
		Token:          "USDC",
		AmountSmallest: domain.NewBigInt(1_000_000),
	}}
	reg := NewRegistry()
	reg.Register(HigherAprGenerator{})
	engine := NewEngine(reg, zeroFee{}, NewAprTracker(time.Hour), Config{SlippageBps: 100}, testLogger())

	scores, err := engine.Evaluate(context.Background(), positions, snap, nil)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, int64(400), scores[0].ExpectedGainBps) // 500 gross - 0 fee - 100 slippage
}

func TestNoHigherAprPoolProducesNoCandidates(t *testing.T) {
	now := time.Now()
	only := domain.PoolKey{ChainId: 1, Protocol: domain.ProtocolAave, PoolAddress: "0xa"}
	snap := domain.MarketSnapshot{Pools: map[domain.PoolKey]domain.PoolSnapshot{
		only: {Key: only, AprBps: 900, ObservedAt: now},
	}, TakenAt: now}
	positions := []Position{{Pool: only, Token: "USDC", AmountSmallest: domain.NewBigInt(1)}}

	reg := NewRegistry()
	reg.Register(HigherAprGenerator{})
	engine := NewEngine(reg, zeroFee{}, NewAprTracker(time.Hour), Config{}, testLogger())

	scores, err := engine.Evaluate(context.Background(), positions, snap, nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}
