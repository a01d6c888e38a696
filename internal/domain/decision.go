package domain

import "time"

// DecisionAction is the voting coordinator's final verdict for one cycle
// (spec.md §4.6).
type DecisionAction string

const (
	ActionHold          DecisionAction = "hold"
	ActionRebalance     DecisionAction = "rebalance"
	ActionEmergencyExit DecisionAction = "emergency_exit"
)

// Decision is the Voting Coordinator's output: a single action, the steps
// to execute if the action is not Hold, and the consensus/confidence
// figures that justified it (spec.md §3). Id is an expansion — the history
// store and the `explain` CLI subcommand need a stable key to look a
// decision up by.
type Decision struct {
	Id            string
	Action        DecisionAction
	Steps         []ReallocationStep
	ConfidencePpm int32
	ConsensusPpm  int32
	Reasoning     []string
	ReachedAt     time.Time
}

// Valid enforces the Decision invariants from spec.md §3 and §8
// "action-step consistency": confidence/consensus are valid fractions, and
// action=rebalance iff steps is non-empty.
func (d Decision) Valid() bool {
	if d.ConfidencePpm < 0 || d.ConfidencePpm > 1_000_000 {
		return false
	}
	if d.ConsensusPpm < 0 || d.ConsensusPpm > 1_000_000 {
		return false
	}
	if d.Action == ActionRebalance {
		return len(d.Steps) > 0
	}
	if d.Action == ActionHold {
		return len(d.Steps) == 0
	}
	return true // emergency_exit: the voting coordinator supplies the safe-pool step; not checked here
}
