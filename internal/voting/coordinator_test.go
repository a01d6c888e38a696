package voting

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestRebalanceWhenAboveThresholds(t *testing.T) {
	c := New(Config{ConsensusThresholdPpm: 700_000, MinConfidencePpm: 600_000}, testLogger(), func() string { return "d1" }, fixedClock(time.Now()))

	step := domain.ReallocationStep{FromChain: 1, ToChain: 2, TargetPoolAddress: "0xb"}
	candidates := []domain.StrategyScore{{
		GeneratorName: "g", Steps: []domain.ReallocationStep{step}, ExpectedGainBps: 500, ConfidencePpm: 900_000,
	}}
	signals := []domain.Signal{{Kind: domain.SignalKindOpportunity, ChainId: 1}}

	d := c.Evaluate(signals, candidates)
	assert.Equal(t, domain.ActionRebalance, d.Action)
	assert.NotEmpty(t, d.Steps)
}

func TestHoldWhenBelowConsensusThreshold(t *testing.T) {
	c := New(Config{ConsensusThresholdPpm: 700_000, MinConfidencePpm: 600_000}, testLogger(), func() string { return "d1" }, fixedClock(time.Now()))

	candidates := []domain.StrategyScore{{
		GeneratorName: "g", Steps: []domain.ReallocationStep{{FromChain: 1, ToChain: 2}}, ExpectedGainBps: 10, ConfidencePpm: 100_000,
	}}
	d := c.Evaluate(nil, candidates)
	assert.Equal(t, domain.ActionHold, d.Action)
	assert.Empty(t, d.Steps)
}

func TestEmergencyExitBypassesConsensus(t *testing.T) {
	c := New(Config{
		ConsensusThresholdPpm: 999_999,
		MinConfidencePpm:      999_999,
		EmergencyThresholdBps: 1000,
		SafePool:              domain.PoolKey{ChainId: 9, Protocol: domain.ProtocolAave, PoolAddress: "0xsafe"},
	}, testLogger(), func() string { return "d1" }, fixedClock(time.Now()))

	signals := []domain.Signal{{Kind: domain.SignalKindAlert, ChainId: 1, MagnitudeBps: 5000}}
	d := c.Evaluate(signals, nil)
	assert.Equal(t, domain.ActionEmergencyExit, d.Action)
	assert.Equal(t, domain.ChainId(9), d.Steps[0].ToChain)
}

func TestTieBreakPrefersHigherConfidenceThenLowerRisk(t *testing.T) {
	c := New(Config{ConsensusThresholdPpm: 2_000_000 /* unreachable, forces hold, but order still checked via scoreCandidates */}, testLogger(), nil, fixedClock(time.Now()))

	a := domain.StrategyScore{Steps: []domain.ReallocationStep{{FromChain: 1, ToChain: 2, TargetPoolAddress: "0xa"}}, ConfidencePpm: 900_000, RiskBps: 50}
	b := domain.StrategyScore{Steps: []domain.ReallocationStep{{FromChain: 1, ToChain: 2, TargetPoolAddress: "0xb"}}, ConfidencePpm: 900_000, RiskBps: 10}
	scored := c.scoreCandidates(nil, []domain.StrategyScore{a, b})
	assert.Equal(t, "0xb", scored[0].candidate.Steps[0].TargetPoolAddress, "lower risk wins the tie when confidence is equal")
}
