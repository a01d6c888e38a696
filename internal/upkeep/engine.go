// Package upkeep is the Automation/Upkeep Engine: it periodically evaluates
// four trigger conditions for every active domain.UpkeepConfig and, when
// they fire, submits an ExecuteRebalanceRequest to the orchestrator,
// retrying transient failures and pausing on persistent ones (spec.md
// §4.7).
package upkeep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

// ExecuteRebalanceRequest is submitted to the orchestrator when upkeep_needed
// evaluates true for an UpkeepConfig.
type ExecuteRebalanceRequest struct {
	Decision        domain.Decision
	InitiatedByUpkeep string
}

// Submitter is the orchestrator's entry point, kept as a narrow interface so
// the engine never imports the orchestrator package directly.
type Submitter interface {
	SubmitRebalance(ctx context.Context, req ExecuteRebalanceRequest) error
}

// SnapshotSource exposes the aggregator's current snapshot, used for
// conditions 1 (APY delta) and 3 (TVL delta).
type SnapshotSource interface {
	CurrentSnapshot() domain.MarketSnapshot
}

// GasSource exposes the latest observed gas price for a chain, used for
// condition 4.
type GasSource interface {
	LatestGasWei(chainID domain.ChainId) (uint64, bool)
}

// DecisionSource exposes the latest Decision reached by the voting
// coordinator, which every upkeep condition is gated on.
type DecisionSource interface {
	LatestDecision() (domain.Decision, bool)
}

// Config controls the engine-wide evaluation cadence and retry behavior,
// per spec.md §4.7 defaults.
type Config struct {
	EvalInterval     time.Duration
	MaxSubmitRetries int
	RetryBaseBackoff time.Duration
	PauseDuration    time.Duration
}

func (c Config) withDefaults() Config {
	if c.EvalInterval == 0 {
		c.EvalInterval = 60 * time.Second
	}
	if c.MaxSubmitRetries == 0 {
		c.MaxSubmitRetries = 5
	}
	if c.RetryBaseBackoff == 0 {
		c.RetryBaseBackoff = 2 * time.Second
	}
	if c.PauseDuration == 0 {
		c.PauseDuration = 30 * time.Minute
	}
	return c
}

// Engine evaluates every registered UpkeepConfig on a fixed tick.
type Engine struct {
	snapshots SnapshotSource
	gas       GasSource
	decisions DecisionSource
	submitter Submitter
	bus       *eventbus.Bus
	cfg       Config
	logger    *slog.Logger

	mu       sync.Mutex
	upkeeps  map[string]*domain.UpkeepConfig
}

// New builds an upkeep Engine.
func New(snapshots SnapshotSource, gas GasSource, decisions DecisionSource, submitter Submitter, bus *eventbus.Bus, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		snapshots: snapshots,
		gas:       gas,
		decisions: decisions,
		submitter: submitter,
		bus:       bus,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "upkeep")),
		upkeeps:   make(map[string]*domain.UpkeepConfig),
	}
}

// Register adds or replaces an UpkeepConfig.
func (e *Engine) Register(u domain.UpkeepConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upkeeps[u.Id] = &u
}

// Run evaluates all registered upkeeps every EvalInterval until ctx is
// cancelled. Each upkeep is serialized against itself — spec.md §5 requires
// upkeep evaluation serialized per UpkeepConfig — but distinct upkeeps may
// be evaluated within the same tick independently since they never share
// mutable state.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

// EvaluateOnce evaluates every registered upkeep exactly once, submitting
// any rebalance whose conditions fire. It's the synchronous counterpart to
// Run's ticker loop, for the `once` CLI subcommand's single-cycle semantics
// (spec.md §6).
func (e *Engine) EvaluateOnce(ctx context.Context) {
	e.evaluateAll(ctx)
}

func (e *Engine) evaluateAll(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.upkeeps))
	for id := range e.upkeeps {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.evaluateOne(ctx, id)
	}
}

func (e *Engine) evaluateOne(ctx context.Context, id string) {
	e.mu.Lock()
	u, ok := e.upkeeps[id]
	e.mu.Unlock()
	if !ok {
		return
	}

	now := time.Now()
	if u.Paused(now) {
		return
	}
	if !u.Active {
		return
	}

	decision, hasDecision := e.decisions.LatestDecision()
	if !hasDecision || decision.Action == domain.ActionHold {
		return
	}
	if decision.ConfidencePpm < u.MinConfidencePpm || decision.ConsensusPpm < u.MinConsensusPpm {
		return
	}

	snap := e.snapshots.CurrentSnapshot()
	trigger, fired := e.evaluateConditions(u, snap, now)
	if !fired {
		return
	}
	if !e.gasWithinCeiling(u) {
		return
	}

	e.logger.Info("upkeep needed", slog.String("upkeep_id", u.Id), slog.String("reason", string(trigger.Reason)))
	e.bus.Publish(eventbus.TopicUpkeepNeeded, trigger)

	req := ExecuteRebalanceRequest{Decision: decision, InitiatedByUpkeep: u.Id}
	if err := e.submitWithRetry(ctx, req); err != nil {
		e.pauseUpkeep(u, now, err)
		return
	}

	e.mu.Lock()
	u.LastRebalanceTs = now
	u.ConsecutiveFails = 0
	u.LastTvl = tvlForChain(snap, u.TargetChain)
	e.mu.Unlock()
}

// evaluateConditions checks spec.md §4.7 conditions 1-3 in order, returning
// the first that fires (condition 4, gas ceiling, is checked separately as
// a gate, not a trigger reason).
func (e *Engine) evaluateConditions(u *domain.UpkeepConfig, snap domain.MarketSnapshot, now time.Time) (domain.UpkeepTrigger, bool) {
	if delta, ok := crossPoolAprDelta(snap, u.TargetChain); ok && delta >= int64(u.AprDeltaThresholdBps) {
		return domain.UpkeepTrigger{UpkeepId: u.Id, Reason: domain.TriggerAprDelta, Detail: fmt.Sprintf("apr delta %dbps", delta), FiredAt: now}, true
	}
	if u.Interval > 0 && now.Sub(u.LastRebalanceTs) >= u.Interval {
		return domain.UpkeepTrigger{UpkeepId: u.Id, Reason: domain.TriggerTimeInterval, Detail: "interval elapsed", FiredAt: now}, true
	}
	if tvl := tvlForChain(snap, u.TargetChain); tvl != nil && u.LastTvl != nil && !u.LastTvl.IsZero() {
		deltaBps := domain.DeltaBps(u.LastTvl, tvl)
		if deltaBps >= int64(u.TvlDeltaThresholdBps) {
			return domain.UpkeepTrigger{UpkeepId: u.Id, Reason: domain.TriggerTvlDelta, Detail: fmt.Sprintf("tvl delta %dbps", deltaBps), FiredAt: now}, true
		}
	}
	return domain.UpkeepTrigger{}, false
}

func (e *Engine) gasWithinCeiling(u *domain.UpkeepConfig) bool {
	if u.GasCeilingWei == 0 {
		return true
	}
	gas, ok := e.gas.LatestGasWei(u.TargetChain)
	if !ok {
		return true
	}
	return gas <= u.GasCeilingWei
}

// submitWithRetry retries transient submission failures up to
// MaxSubmitRetries times with exponential backoff, per spec.md §4.7.
func (e *Engine) submitWithRetry(ctx context.Context, req ExecuteRebalanceRequest) error {
	var lastErr error
	backoff := e.cfg.RetryBaseBackoff
	for attempt := 1; attempt <= e.cfg.MaxSubmitRetries; attempt++ {
		err := e.submitter.SubmitRebalance(ctx, req)
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Warn("rebalance submission failed, retrying", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt == e.cfg.MaxSubmitRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("upkeep: submission failed after %d attempts: %w", e.cfg.MaxSubmitRetries, lastErr)
}

func (e *Engine) pauseUpkeep(u *domain.UpkeepConfig, now time.Time, cause error) {
	e.mu.Lock()
	u.ConsecutiveFails++
	u.PausedUntil = now.Add(e.cfg.PauseDuration)
	e.mu.Unlock()

	e.logger.Error("upkeep paused after persistent submission failure", slog.String("upkeep_id", u.Id), slog.String("error", cause.Error()))
	e.bus.Publish(eventbus.TopicUpkeepFailed, domain.UpkeepTrigger{UpkeepId: u.Id, Detail: cause.Error(), FiredAt: now})
}

// crossPoolAprDelta returns the largest APR spread among all pools on
// chainID, used for upkeep condition 1. Pools are not grouped by token:
// PoolSnapshot.Token is not consulted, so a spread between pools holding
// different tokens also counts.
func crossPoolAprDelta(snap domain.MarketSnapshot, chainID domain.ChainId) (int64, bool) {
	var min, max int32
	found := false
	for key, pool := range snap.Pools {
		if key.ChainId != chainID {
			continue
		}
		if !found {
			min, max = pool.AprBps, pool.AprBps
			found = true
			continue
		}
		if pool.AprBps < min {
			min = pool.AprBps
		}
		if pool.AprBps > max {
			max = pool.AprBps
		}
	}
	if !found {
		return 0, false
	}
	return int64(max - min), true
}

func tvlForChain(snap domain.MarketSnapshot, chainID domain.ChainId) *domain.BigInt {
	var total *domain.BigInt
	for key, pool := range snap.Pools {
		if key.ChainId != chainID {
			continue
		}
		if total == nil {
			total = pool.TvlSmallest
			continue
		}
		if pool.TvlSmallest != nil {
			total = total.Add(pool.TvlSmallest)
		}
	}
	return total
}
