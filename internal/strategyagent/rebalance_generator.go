package strategyagent

import (
	"context"
	"sort"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// HigherAprGenerator is the default candidate generator (spec.md §4.5 point
// 1): for each current position, it proposes moving into every pool with
// strictly higher apr_bps, ordered deterministically by gross expected gain
// so the caller's top-K truncation is itself deterministic.
type HigherAprGenerator struct{}

// Name identifies this generator in the registry.
func (HigherAprGenerator) Name() string { return "higher_apr" }

// Candidates enumerates one step per (position, target pool) pair where the
// target's apr_bps strictly exceeds the position's current pool.
func (HigherAprGenerator) Candidates(ctx context.Context, positions []Position, snap domain.MarketSnapshot, signals []domain.Signal) ([]domain.ReallocationStep, error) {
	type scored struct {
		step domain.ReallocationStep
		gain int64 // gross, amount-weighted apr delta bps, before fees/slippage
	}
	var out []scored

	for _, pos := range positions {
		current, ok := snap.Pool(pos.Pool)
		if !ok {
			continue
		}
		for key, target := range snap.Pools {
			if key == pos.Pool {
				continue
			}
			if target.AprBps <= current.AprBps {
				continue
			}
			step := domain.ReallocationStep{
				FromChain:         pos.Pool.ChainId,
				SourcePoolAddress: pos.Pool.PoolAddress,
				SourceProtocol:    pos.Pool.Protocol,
				ToChain:           key.ChainId,
				Token:             pos.Token,
				AmountSmallest:    pos.AmountSmallest,
				TargetPoolAddress: key.PoolAddress,
				TargetProtocol:    key.Protocol,
				ExpectedApyBps:    target.AprBps,
			}
			out = append(out, scored{step: step, gain: int64(target.AprBps-current.AprBps) * pos.AmountSmallest.Int().Int64()})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].gain != out[j].gain {
			return out[i].gain > out[j].gain
		}
		// Deterministic tie-break so equal-gain candidates always sort the
		// same way regardless of map iteration order upstream.
		a, b := out[i].step, out[j].step
		if a.FromChain != b.FromChain {
			return a.FromChain < b.FromChain
		}
		if a.ToChain != b.ToChain {
			return a.ToChain < b.ToChain
		}
		return a.TargetPoolAddress < b.TargetPoolAddress
	})

	steps := make([]domain.ReallocationStep, len(out))
	for i, s := range out {
		steps[i] = s.step
	}
	return steps, nil
}
