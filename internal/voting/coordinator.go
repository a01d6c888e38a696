// Package voting is the Voting Coordinator: it combines the Signal Agent's
// recent signals and the Strategy Agent's candidate scores into exactly one
// Decision per evaluation cycle (spec.md §4.6).
package voting

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// Config mirrors spec.md §4.6's weighting and threshold constants.
type Config struct {
	SignalWeightPpm       int32
	StrategyWeightPpm     int32
	ConsensusThresholdPpm int32
	MinConfidencePpm      int32
	EmergencyThresholdBps int64
	SafePool              domain.PoolKey
}

func (c Config) withDefaults() Config {
	if c.SignalWeightPpm == 0 && c.StrategyWeightPpm == 0 {
		c.SignalWeightPpm = 400_000
		c.StrategyWeightPpm = 600_000
	}
	if c.ConsensusThresholdPpm == 0 {
		c.ConsensusThresholdPpm = 700_000
	}
	if c.MinConfidencePpm == 0 {
		c.MinConfidencePpm = 600_000
	}
	return c
}

// Coordinator evaluates one cycle's Signals + StrategyScores into a single
// Decision. Serialized by the caller (supervisor): spec.md §5 requires the
// Voting Coordinator to process one decision at a time.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// New builds a Coordinator. newID/now default to uuid.NewString/time.Now
// when nil; tests may override both for determinism.
func New(cfg Config, logger *slog.Logger, newID func() string, now func() time.Time) *Coordinator {
	if newID == nil {
		newID = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &Coordinator{cfg: cfg.withDefaults(), logger: logger.With(slog.String("component", "voting")), newID: newID, now: now}
}

type candidateScore struct {
	candidate     domain.StrategyScore
	signalSupport float64
	combinedPpm   int32
}

// Evaluate implements spec.md §4.6's decision rule: emergency_exit checked
// first against the signal set, then the highest-combined-score candidate
// against the consensus/confidence thresholds, else hold.
func (c *Coordinator) Evaluate(signals []domain.Signal, candidates []domain.StrategyScore) domain.Decision {
	if step, ok := c.emergencyStep(signals); ok {
		return domain.Decision{
			Id:            c.id(),
			Action:        domain.ActionEmergencyExit,
			Steps:         []domain.ReallocationStep{step},
			ConfidencePpm: 1_000_000,
			ConsensusPpm:  1_000_000,
			Reasoning:     []string{"emergency alert severity exceeded threshold, bypassing consensus check"},
			ReachedAt:     c.now(),
		}
	}

	scored := c.scoreCandidates(signals, candidates)
	if len(scored) == 0 {
		return domain.Decision{
			Id:        c.id(),
			Action:    domain.ActionHold,
			Reasoning: []string{"no candidates to evaluate"},
			ReachedAt: c.now(),
		}
	}

	best := scored[0]
	if best.combinedPpm >= c.cfg.ConsensusThresholdPpm && best.candidate.ConfidencePpm >= c.cfg.MinConfidencePpm {
		return domain.Decision{
			Id:            c.id(),
			Action:        domain.ActionRebalance,
			Steps:         best.candidate.Steps,
			ConfidencePpm: best.candidate.ConfidencePpm,
			ConsensusPpm:  best.combinedPpm,
			Reasoning: []string{
				"best candidate combined_score met consensus and confidence thresholds",
			},
			ReachedAt: c.now(),
		}
	}

	return domain.Decision{
		Id:            c.id(),
		Action:        domain.ActionHold,
		ConfidencePpm: best.candidate.ConfidencePpm,
		ConsensusPpm:  best.combinedPpm,
		Reasoning:     []string{"best candidate below consensus or confidence threshold"},
		ReachedAt:     c.now(),
	}
}

// scoreCandidates computes combined_score = w_s*signal_support + w_t*strategy_score
// for each candidate and sorts by the spec.md §4.6 tie-break: higher
// confidence, then lower aggregate risk, then lexicographic on
// (from_chain, to_chain, pool_address).
func (c *Coordinator) scoreCandidates(signals []domain.Signal, candidates []domain.StrategyScore) []candidateScore {
	out := make([]candidateScore, 0, len(candidates))
	for _, cand := range candidates {
		support := signalSupport(signals, cand)
		// strategy_score is the candidate's own normalized expected gain,
		// clamped to [0,1] via its confidence as a proxy for "how much of
		// the modeled gain actually survives" — ExpectedGainBps itself has
		// no natural [0,1] scale, so confidence_ppm (already bounded) is
		// the correct input to the weighted sum.
		strategyScore := float64(cand.ConfidencePpm) / 1_000_000
		combined := float64(c.cfg.SignalWeightPpm)/1_000_000*support + float64(c.cfg.StrategyWeightPpm)/1_000_000*strategyScore
		out = append(out, candidateScore{
			candidate:     cand,
			signalSupport: support,
			combinedPpm:   int32(combined * 1_000_000),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.combinedPpm != b.combinedPpm {
			return a.combinedPpm > b.combinedPpm
		}
		if a.candidate.ConfidencePpm != b.candidate.ConfidencePpm {
			return a.candidate.ConfidencePpm > b.candidate.ConfidencePpm
		}
		if a.candidate.RiskBps != b.candidate.RiskBps {
			return a.candidate.RiskBps < b.candidate.RiskBps
		}
		return lexicographicLess(a.candidate, b.candidate)
	})
	return out
}

func lexicographicLess(a, b domain.StrategyScore) bool {
	as, bs := firstStep(a), firstStep(b)
	if as.FromChain != bs.FromChain {
		return as.FromChain < bs.FromChain
	}
	if as.ToChain != bs.ToChain {
		return as.ToChain < bs.ToChain
	}
	return as.TargetPoolAddress < bs.TargetPoolAddress
}

func firstStep(s domain.StrategyScore) domain.ReallocationStep {
	if len(s.Steps) == 0 {
		return domain.ReallocationStep{}
	}
	return s.Steps[0]
}

// signalSupport is the fraction of opportunity signals whose ChainId equals
// the candidate's first step's FromChain or ToChain; the signal's token and
// direction are not compared.
func signalSupport(signals []domain.Signal, cand domain.StrategyScore) float64 {
	if len(signals) == 0 || len(cand.Steps) == 0 {
		return 0
	}
	step := cand.Steps[0]
	var opportunities, matches int
	for _, sig := range signals {
		if sig.Kind != domain.SignalKindOpportunity {
			continue
		}
		opportunities++
		if sig.ChainId == step.FromChain || sig.ChainId == step.ToChain {
			matches++
		}
	}
	if opportunities == 0 {
		return 0
	}
	return float64(matches) / float64(opportunities)
}

// emergencyStep returns the safe-pool relocation step when any alert
// signal's magnitude meets or exceeds the emergency threshold.
func (c *Coordinator) emergencyStep(signals []domain.Signal) (domain.ReallocationStep, bool) {
	for _, sig := range signals {
		if sig.Kind != domain.SignalKindAlert {
			continue
		}
		if sig.MagnitudeBps < c.cfg.EmergencyThresholdBps {
			continue
		}
		return domain.ReallocationStep{
			FromChain:         sig.ChainId,
			SourceProtocol:    sig.Protocol,
			ToChain:           c.cfg.SafePool.ChainId,
			TargetPoolAddress: c.cfg.SafePool.PoolAddress,
			TargetProtocol:    c.cfg.SafePool.Protocol,
		}, true
	}
	return domain.ReallocationStep{}, false
}

func (c *Coordinator) id() string {
	if c.newID != nil {
		return c.newID()
	}
	return ""
}
