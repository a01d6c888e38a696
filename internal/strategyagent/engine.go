package strategyagent

import (
	"context"
	"log/slog"
	"sort"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// Engine fans a MarketSnapshot + recent Signals out to every registered
// generator, scores each resulting candidate, and returns the top-K
// StrategyScores by expected_gain_bps — deterministic given identical
// inputs, per spec.md §4.5's explicit "same inputs ⇒ same outputs"
// requirement.
type Engine struct {
	registry *Registry
	fees     FeeEstimator
	tracker  *AprTracker
	cfg      Config
	logger   *slog.Logger
}

// NewEngine builds an Engine.
func NewEngine(registry *Registry, fees FeeEstimator, tracker *AprTracker, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		registry: registry,
		fees:     fees,
		tracker:  tracker,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "strategy_agent")),
	}
}

// Evaluate runs every registered generator over positions/snap/signals and
// returns up to TopK StrategyScores ordered by descending expected_gain_bps.
func (e *Engine) Evaluate(ctx context.Context, positions []Position, snap domain.MarketSnapshot, signals []domain.Signal) ([]domain.StrategyScore, error) {
	now := snap.TakenAt
	for key, pool := range snap.Pools {
		e.tracker.Observe(key, pool.AprBps, now)
	}

	var scores []domain.StrategyScore
	for _, gen := range e.registry.List() {
		steps, err := gen.Candidates(ctx, positions, snap, signals)
		if err != nil {
			e.logger.Warn("generator failed", slog.String("generator", gen.Name()), slog.String("error", err.Error()))
			continue
		}
		for _, step := range steps {
			score, err := e.scoreStep(ctx, gen.Name(), step, snap, signals)
			if err != nil {
				e.logger.Warn("scoring candidate failed", slog.String("generator", gen.Name()), slog.String("error", err.Error()))
				continue
			}
			scores = append(scores, score)
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].ExpectedGainBps != scores[j].ExpectedGainBps {
			return scores[i].ExpectedGainBps > scores[j].ExpectedGainBps
		}
		return scores[i].GeneratorName < scores[j].GeneratorName
	})

	if len(scores) > e.cfg.TopK {
		scores = scores[:e.cfg.TopK]
	}
	return scores, nil
}

// scoreStep implements spec.md §4.5 points 2-4 for one candidate step.
func (e *Engine) scoreStep(ctx context.Context, generator string, step domain.ReallocationStep, snap domain.MarketSnapshot, signals []domain.Signal) (domain.StrategyScore, error) {
	current, _ := snap.Pool(step.SourcePool())
	grossDeltaBps := int64(step.ExpectedApyBps - current.AprBps)

	feeBps, err := e.fees.EstimateFeeBps(ctx, step)
	if err != nil {
		return domain.StrategyScore{}, err
	}

	expectedGain := grossDeltaBps - feeBps - e.cfg.SlippageBps

	risk := riskBps(step, snap, signals, e.cfg)

	coverage := e.tracker.ScenarioCoverage(step.SourcePool(), step.TargetPool())
	confidencePpm := scenarioConfidencePpm(signals, coverage)

	return domain.StrategyScore{
		GeneratorName:   generator,
		Steps:           []domain.ReallocationStep{step},
		ExpectedGainBps: expectedGain,
		RiskBps:         risk,
		ConfidencePpm:   confidencePpm,
	}, nil
}

// scenarioConfidencePpm multiplies the confidence of every signal passed in
// (signals with a non-positive confidence are skipped) by the
// scenario-coverage factor, clamped to [0, 1_000_000] —
// spec.md §4.5 point 4.
func scenarioConfidencePpm(signals []domain.Signal, coverage float64) int32 {
	productPpm := int64(1_000_000)
	for _, sig := range signals {
		if sig.ConfidencePpm <= 0 {
			continue
		}
		productPpm = productPpm * int64(sig.ConfidencePpm) / 1_000_000
	}
	result := float64(productPpm) * coverage
	if result > 1_000_000 {
		result = 1_000_000
	}
	if result < 0 {
		result = 0
	}
	return int32(result)
}
