// Package strategyagent is the Strategy Agent: given the current
// allocation, the latest MarketSnapshot, and recent Signals, it
// deterministically enumerates candidate reallocations and scores each one
// (spec.md §4.5).
package strategyagent

import (
	"context"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// Position is one of the caller's current deployed balances, the starting
// point candidate generators move capital out of.
type Position struct {
	Pool           domain.PoolKey
	Token          string
	AmountSmallest *domain.BigInt
}

// FeeEstimator supplies a read-only bridge-fee estimate for a candidate
// step, per spec.md §4.5 point 2 ("fee estimate supplied by Orchestrator
// via a read-only interface").
type FeeEstimator interface {
	EstimateFeeBps(ctx context.Context, step domain.ReallocationStep) (int64, error)
}

// Generator enumerates candidate ReallocationSteps from the current
// positions given a MarketSnapshot and recent Signals. Generators are pure
// functions of their inputs: same inputs, same candidates, in the same
// order, so the engine's determinism holds regardless of which generators
// are registered.
type Generator interface {
	Name() string
	Candidates(ctx context.Context, positions []Position, snap domain.MarketSnapshot, signals []domain.Signal) ([]domain.ReallocationStep, error)
}

// Config controls the engine's candidate-scoring parameters, all per
// spec.md §4.5 defaults.
type Config struct {
	TopK              int
	SlippageBps       int64
	ProtocolRiskBps   map[domain.Protocol]int64
	VolatilityWeight  int64
}

func (c Config) withDefaults() Config {
	if c.TopK == 0 {
		c.TopK = 8
	}
	if c.SlippageBps == 0 {
		c.SlippageBps = 100
	}
	if c.ProtocolRiskBps == nil {
		c.ProtocolRiskBps = map[domain.Protocol]int64{}
	}
	return c
}
