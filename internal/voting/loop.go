package voting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/strategyagent"
)

// SnapshotSource exposes the aggregator's current snapshot.
type SnapshotSource interface {
	CurrentSnapshot() domain.MarketSnapshot
}

// PositionSource exposes the vault's current deployed positions, the
// starting point strategy candidate generators move capital out of.
type PositionSource interface {
	Positions(ctx context.Context) ([]strategyagent.Position, error)
}

// StrategyEvaluator scores candidate reallocations, satisfied by
// strategyagent.Engine.
type StrategyEvaluator interface {
	Evaluate(ctx context.Context, positions []strategyagent.Position, snap domain.MarketSnapshot, signals []domain.Signal) ([]domain.StrategyScore, error)
}

// LoopConfig controls the decision loop's cadence and signal retention.
type LoopConfig struct {
	EvalInterval time.Duration
	SignalWindow time.Duration
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.EvalInterval == 0 {
		c.EvalInterval = 30 * time.Second
	}
	if c.SignalWindow == 0 {
		c.SignalWindow = 5 * time.Minute
	}
	return c
}

// signalEntry pairs a Signal with its arrival time so the Loop can expire
// it out of the evaluation window.
type signalEntry struct {
	signal    domain.Signal
	arrivedAt time.Time
}

// Loop drives one Coordinator.Evaluate cycle per tick: it folds in every
// Signal received since the last expiry sweep, asks the StrategyEvaluator
// for the current candidate set, and publishes exactly one Decision
// (spec.md §4.6 "produces exactly one Decision per evaluation cycle").
// It also satisfies upkeep.DecisionSource via LatestDecision, so the
// upkeep engine never has to subscribe to the bus directly.
type Loop struct {
	coord      *Coordinator
	strategy   StrategyEvaluator
	snapshots  SnapshotSource
	positions  PositionSource
	bus        *eventbus.Bus
	cfg        LoopConfig
	logger     *slog.Logger

	mu      sync.Mutex
	signals []signalEntry
	latest  domain.Decision
	hasLatest bool
	now     func() time.Time
}

// NewLoop builds a decision Loop around an existing Coordinator.
func NewLoop(coord *Coordinator, strategy StrategyEvaluator, snapshots SnapshotSource, positions PositionSource, bus *eventbus.Bus, cfg LoopConfig, logger *slog.Logger) *Loop {
	return &Loop{
		coord:     coord,
		strategy:  strategy,
		snapshots: snapshots,
		positions: positions,
		bus:       bus,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "voting_loop")),
		now:       time.Now,
	}
}

// LatestDecision returns the most recent Decision reached, satisfying
// upkeep.DecisionSource.
func (l *Loop) LatestDecision() (domain.Decision, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.hasLatest
}

// Run subscribes to signal events and evaluates one decision cycle on every
// EvalInterval tick until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	signals := l.bus.Subscribe(ctx, eventbus.TopicSignal)
	ticker := time.NewTicker(l.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-signals:
			if !ok {
				return ctx.Err()
			}
			sig, ok := ev.(domain.Signal)
			if !ok {
				continue
			}
			l.mu.Lock()
			l.signals = append(l.signals, signalEntry{signal: sig, arrivedAt: l.now()})
			l.mu.Unlock()
		case <-ticker.C:
			l.evaluateCycle(ctx)
		}
	}
}

func (l *Loop) evaluateCycle(ctx context.Context) {
	if _, err := l.EvaluateOnce(ctx); err != nil {
		l.logger.Error("strategy evaluation failed", slog.String("error", err.Error()))
	}
}

// EvaluateOnce runs a single evaluation cycle synchronously — expiring the
// signal window, scoring candidates, and reaching one Decision — and
// returns it directly instead of only publishing it to the bus. Run calls
// this on every tick; the `once` CLI subcommand calls it directly for a
// single snapshot+decision cycle with no background loop (spec.md §6).
func (l *Loop) EvaluateOnce(ctx context.Context) (domain.Decision, error) {
	recent := l.expireAndCollect()

	positions, err := l.positions.Positions(ctx)
	if err != nil {
		l.logger.Warn("position lookup failed, evaluating with no open positions", slog.String("error", err.Error()))
	}

	snap := l.snapshots.CurrentSnapshot()
	candidates, err := l.strategy.Evaluate(ctx, positions, snap, recent)
	if err != nil {
		return domain.Decision{}, err
	}

	decision := l.coord.Evaluate(recent, candidates)

	l.mu.Lock()
	l.latest = decision
	l.hasLatest = true
	l.mu.Unlock()

	l.bus.Publish(eventbus.TopicDecision, decision)
	l.logger.Info("decision reached",
		slog.String("action", string(decision.Action)),
		slog.Int32("confidence_ppm", decision.ConfidencePpm),
		slog.Int32("consensus_ppm", decision.ConsensusPpm),
	)
	return decision, nil
}

// expireAndCollect drops signals older than SignalWindow and returns a copy
// of what remains, oldest first.
func (l *Loop) expireAndCollect() []domain.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.SignalWindow)
	kept := l.signals[:0]
	for _, e := range l.signals {
		if e.arrivedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.signals = kept

	out := make([]domain.Signal, len(l.signals))
	for i, e := range l.signals {
		out[i] = e.signal
	}
	return out
}
