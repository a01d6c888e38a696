package domain

import "time"

// UpkeepConfig is one registered scheduled condition evaluator that may
// request rebalance execution (spec.md §3/§4.7). AprDeltaThresholdBps,
// Interval, TvlDeltaThresholdBps, and GasCeilingWei are the per-registration
// thresholds the spec's four conditions are evaluated against; LastTvl is
// the TVL observed at the previous evaluation, the baseline condition 3's
// delta is computed from.
type UpkeepConfig struct {
	Id              string
	TargetChain     ChainId
	TargetContract  string
	CheckData       []byte
	GasLimit        uint64
	MinConfidencePpm int32
	MinConsensusPpm  int32
	Active          bool

	AprDeltaThresholdBps int32
	Interval             time.Duration
	TvlDeltaThresholdBps int32
	GasCeilingWei        uint64

	LastRebalanceTs time.Time
	LastTvl          *BigInt
	ConsecutiveFails int
	PausedUntil     time.Time
}

// Paused reports whether the upkeep is currently paused due to persistent
// submission failure (spec.md §4.7).
func (u UpkeepConfig) Paused(now time.Time) bool {
	return !u.PausedUntil.IsZero() && now.Before(u.PausedUntil)
}

// UpkeepTriggerReason names which of the four §4.7 conditions fired.
type UpkeepTriggerReason string

const (
	TriggerAprDelta        UpkeepTriggerReason = "apr_delta"
	TriggerTimeInterval    UpkeepTriggerReason = "time_interval"
	TriggerTvlDelta        UpkeepTriggerReason = "tvl_delta"
)

// UpkeepTrigger is a single fired condition (1-3; condition 4, the gas
// ceiling, is a gate ANDed against these, not itself a trigger reason),
// carrying enough context to explain itself in logs and notifications.
type UpkeepTrigger struct {
	UpkeepId string
	Reason   UpkeepTriggerReason
	Detail   string
	FiredAt  time.Time
}
