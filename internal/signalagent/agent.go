// Package signalagent is the Signal Agent: it watches the aggregator's
// snapshots, gas observations, and significant price changes, and applies
// four ordered rules to emit domain.Signal events (spec.md §4.4).
package signalagent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/crossfluxx/rebalancer/internal/aggregator"
	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/feed"
)

// Config controls the agent's rule thresholds, all per spec.md §4.4 defaults.
type Config struct {
	AprDeltaThresholdBps int64
	UtilizationCeilingBps int32
	GasCeilingWei         uint64
}

func (c Config) withDefaults() Config {
	if c.AprDeltaThresholdBps == 0 {
		c.AprDeltaThresholdBps = 100
	}
	if c.UtilizationCeilingBps == 0 {
		c.UtilizationCeilingBps = 9000
	}
	return c
}

// Agent evaluates the four signal rules in a fixed order and publishes the
// resulting Signal events onto the bus.
type Agent struct {
	agg    *aggregator.Aggregator
	bus    *eventbus.Bus
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	latestGasWei map[domain.ChainId]uint64
}

// New builds a signal Agent.
func New(agg *aggregator.Aggregator, bus *eventbus.Bus, cfg Config, logger *slog.Logger) *Agent {
	return &Agent{
		agg:          agg,
		bus:          bus,
		cfg:          cfg.withDefaults(),
		logger:       logger.With(slog.String("component", "signal_agent")),
		latestGasWei: make(map[domain.ChainId]uint64),
	}
}

// OnGas records the latest observed gas price for a chain, consumed by rule 3
// on the next snapshot evaluation.
func (a *Agent) OnGas(obs feed.GasObservation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latestGasWei[obs.ChainId] = obs.GasWei
}

// Run subscribes to snapshot and significantPriceChange events and evaluates
// the rule set on each, until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	snapshots := a.bus.Subscribe(ctx, eventbus.TopicSnapshot)
	priceChanges := a.bus.Subscribe(ctx, eventbus.TopicSignificantPriceChange)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-snapshots:
			if !ok {
				return ctx.Err()
			}
			snap, ok := ev.(domain.MarketSnapshot)
			if !ok {
				continue
			}
			a.evaluateSnapshot(snap)
		case ev, ok := <-priceChanges:
			if !ok {
				return ctx.Err()
			}
			change, ok := ev.(feed.PriceChange)
			if !ok {
				continue
			}
			a.evaluatePriceChange(change)
		}
	}
}

// evaluateSnapshot applies rules 1-3 (APR delta, utilization ceiling, gas
// ceiling) to every pool in the snapshot, in that fixed order: a gas-ceiling
// breach on a pool's chain suppresses any opportunity signal involving that
// pool but does not suppress its utilization alert.
func (a *Agent) evaluateSnapshot(snap domain.MarketSnapshot) {
	// Rule 1: cross-pool, same-token APR delta -> opportunity.
	a.evaluateAprDelta(snap)

	for key, pool := range snap.Pools {
		gasHigh := a.gasCeilingBreached(key.ChainId)

		// Rule 2: utilization >= ceiling -> alert. Never suppressed by gas.
		if pool.UtilizationBps >= a.cfg.UtilizationCeilingBps {
			a.publish(domain.Signal{
				Kind:          domain.SignalKindAlert,
				ChainId:       key.ChainId,
				Protocol:      key.Protocol,
				MagnitudeBps:  int64(pool.UtilizationBps),
				ConfidencePpm: 1_000_000,
				Message:       fmt.Sprintf("utilization %dbps on %s/%s at or above ceiling", pool.UtilizationBps, key.Protocol, key.PoolAddress),
				CreatedAt:     pool.ObservedAt,
			})
		}

		// Rule 3: gas above ceiling -> alert (the suppression itself, made visible).
		if gasHigh {
			a.publish(domain.Signal{
				Kind:          domain.SignalKindAlert,
				ChainId:       key.ChainId,
				Protocol:      key.Protocol,
				ConfidencePpm: 1_000_000,
				Message:       fmt.Sprintf("gas above ceiling on chain %v, opportunities suppressed", key.ChainId),
				CreatedAt:     pool.ObservedAt,
			})
		}
	}
}

// evaluateAprDelta applies rule 1: for every pair of pools sharing the same
// token across chains/protocols, an APR delta at or above the configured
// threshold is an opportunity signal, suppressed if either leg's chain is
// gas-ceiling-breached (rule 3 suppresses rule 1, never the reverse).
func (a *Agent) evaluateAprDelta(snap domain.MarketSnapshot) {
	byToken := make(map[string][]domain.PoolSnapshot)
	for _, pool := range snap.Pools {
		byToken[pool.Token] = append(byToken[pool.Token], pool)
	}

	for _, pools := range byToken {
		sort.Slice(pools, func(i, j int) bool {
			ki, kj := pools[i].Key, pools[j].Key
			if ki.ChainId != kj.ChainId {
				return ki.ChainId < kj.ChainId
			}
			if ki.Protocol != kj.Protocol {
				return ki.Protocol < kj.Protocol
			}
			return ki.PoolAddress < kj.PoolAddress
		})
		for i := 0; i < len(pools); i++ {
			for j := i + 1; j < len(pools); j++ {
				a.emitAprDeltaIfOpportunity(pools[i], pools[j])
			}
		}
	}
}

// emitAprDeltaIfOpportunity compares one pool pair and publishes an
// opportunity signal if their APR delta clears the threshold.
func (a *Agent) emitAprDeltaIfOpportunity(x, y domain.PoolSnapshot) {
	// Orient so target is the higher-APR leg: funds would move toward it.
	source, target := x, y
	if source.AprBps > target.AprBps {
		source, target = target, source
	}

	delta := deltaBps32(source.AprBps, target.AprBps)
	if delta < a.cfg.AprDeltaThresholdBps {
		return
	}
	if a.gasCeilingBreached(source.Key.ChainId) || a.gasCeilingBreached(target.Key.ChainId) {
		return
	}

	observedAt := source.ObservedAt
	if target.ObservedAt.After(observedAt) {
		observedAt = target.ObservedAt
	}

	a.publish(domain.Signal{
		Kind:          domain.SignalKindOpportunity,
		ChainId:       target.Key.ChainId,
		Protocol:      target.Key.Protocol,
		MagnitudeBps:  delta,
		ConfidencePpm: clampPpm(minInt32(source.ConfidencePpm, target.ConfidencePpm)),
		Message: fmt.Sprintf("apr delta %dbps for %s: %s/%s on chain %v (%dbps) vs %s/%s on chain %v (%dbps)",
			delta, source.Token,
			source.Key.Protocol, source.Key.PoolAddress, source.Key.ChainId, source.AprBps,
			target.Key.Protocol, target.Key.PoolAddress, target.Key.ChainId, target.AprBps),
		CreatedAt: observedAt,
	})
}

// evaluatePriceChange applies rule 4: any significant price change is
// reported as an info signal, regardless of gas.
func (a *Agent) evaluatePriceChange(change feed.PriceChange) {
	a.publish(domain.Signal{
		Kind:          domain.SignalKindInfo,
		Pair:          change.Pair,
		MagnitudeBps:  change.DeltaBps,
		ConfidencePpm: change.Tick.ConfidencePpm,
		Message:       fmt.Sprintf("significant price change on %s", change.Pair),
		CreatedAt:     change.Tick.ObservedAt,
	})
}

func (a *Agent) gasCeilingBreached(chainID domain.ChainId) bool {
	if a.cfg.GasCeilingWei == 0 {
		return false
	}
	a.mu.Lock()
	gas, ok := a.latestGasWei[chainID]
	a.mu.Unlock()
	return ok && gas > a.cfg.GasCeilingWei
}

func (a *Agent) publish(s domain.Signal) {
	if !s.Valid() {
		a.logger.Warn("dropping invalid signal", slog.Any("signal", s))
		return
	}
	a.bus.Publish(eventbus.TopicSignal, s)
}

// deltaBps32 returns the absolute basis-point delta between two APRs.
func deltaBps32(a, b int32) int64 {
	diff := int64(a) - int64(b)
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func minInt32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func clampPpm(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 1_000_000 {
		return 1_000_000
	}
	return v
}
