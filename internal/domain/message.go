package domain

import "time"

// MessageState is one stage of the cross-chain message lifecycle (spec.md
// §4.8). Terminal states: Finalized (success) and the five named failure
// states below.
type MessageState string

const (
	MessageCreated             MessageState = "created"
	MessageFeeEstimated        MessageState = "fee_estimated"
	MessageSubmitted           MessageState = "submitted"
	MessageSourceConfirmed     MessageState = "source_confirmed"
	MessageInFlight            MessageState = "in_flight"
	MessageDestinationDelivered MessageState = "destination_delivered"
	MessageFinalized           MessageState = "finalized"

	MessageFeeEstimateFailed  MessageState = "fee_estimate_failed"
	MessageSubmissionFailed   MessageState = "submission_failed"
	MessageSourceReverted     MessageState = "source_reverted"
	MessageDeliveryTimeout    MessageState = "delivery_timeout"
	MessageDestinationReverted MessageState = "destination_reverted"
)

// transitions enumerates the legal next states for each MessageState per
// spec.md §4.8.
var transitions = map[MessageState][]MessageState{
	MessageCreated:             {MessageFeeEstimated, MessageFeeEstimateFailed},
	MessageFeeEstimated:        {MessageSubmitted, MessageSubmissionFailed},
	MessageSubmitted:           {MessageSourceConfirmed, MessageSourceReverted},
	MessageSourceConfirmed:     {MessageInFlight},
	MessageInFlight:            {MessageDestinationDelivered, MessageDeliveryTimeout},
	MessageDestinationDelivered: {MessageFinalized, MessageDestinationReverted},
}

var terminalStates = map[MessageState]bool{
	MessageFinalized:            true,
	MessageFeeEstimateFailed:    true,
	MessageSubmissionFailed:     true,
	MessageSourceReverted:       true,
	MessageDeliveryTimeout:      true,
	MessageDestinationReverted:  true,
}

// IsTerminal reports whether s admits no further transition.
func IsTerminal(s MessageState) bool { return terminalStates[s] }

// Retryable reports whether a message in state s may be retried per
// spec.md §4.8: only FeeEstimateFailed and SubmissionFailed are retried
// automatically; the Reverted/Timeout states are surfaced as errors.
func Retryable(s MessageState) bool {
	return s == MessageFeeEstimateFailed || s == MessageSubmissionFailed
}

// CanTransition reports whether a message may move from `from` to `to`.
// Terminal states admit no further transition; non-terminal states may only
// move to the states spec.md §4.8 names for them (including their own
// specific failure state — there is no universal "any state can fail" edge,
// since each stage fails into a stage-specific terminal state).
func CanTransition(from, to MessageState) bool {
	if IsTerminal(from) {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CrossChainMessage tracks one in-flight bridge transfer end-to-end: the
// step it fulfills, the bridge's own message id once submitted, and its
// current lifecycle state (spec.md §3 CrossChainMessage).
type CrossChainMessage struct {
	MessageId       string
	BridgeMessageId string
	OperationId     string
	Step            ReallocationStep
	FeeNative       *BigInt
	GasLimit        uint64
	State           MessageState
	Attempts        int
	SubmittedAt     time.Time
	LastEventAt     time.Time
	FinalReceipt    string
	LastError       string
}

// Terminal reports whether the message has reached a state the
// orchestrator will no longer advance.
func (m CrossChainMessage) Terminal() bool { return IsTerminal(m.State) }

// Transition advances the message to `to` if legal, updating LastEventAt
// and returning a *Error of kind KindState otherwise (spec.md §7 StateError
// — "invalid state transition — fatal per message").
func (m *CrossChainMessage) Transition(to MessageState, now time.Time) error {
	if !CanTransition(m.State, to) {
		return NewError(KindState, false, "illegal message transition "+string(m.State)+"->"+string(to), nil)
	}
	m.State = to
	m.LastEventAt = now
	return nil
}
