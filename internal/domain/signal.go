package domain

import "time"

// SignalKind classifies a Signal emitted by the signal agent (spec.md §4.4).
type SignalKind string

const (
	SignalKindOpportunity SignalKind = "opportunity"
	SignalKindAlert       SignalKind = "alert"
	SignalKindInfo        SignalKind = "info"
)

// Signal is a single observation emitted by the signal agent describing a
// magnitude-bearing event on a chain/protocol/pair. Strategy and voting
// consume Signals; they never see raw feed data directly.
type Signal struct {
	Kind          SignalKind
	ChainId       ChainId
	Protocol      Protocol
	Pair          string
	MagnitudeBps  int64
	ConfidencePpm int32
	Message       string
	CreatedAt     time.Time
}

// Valid enforces the Signal invariant from spec.md §3: confidence is a valid
// parts-per-million fraction and magnitude is non-negative (direction, where
// relevant, is carried in Message/Kind, not the sign of Magnitude).
func (s Signal) Valid() bool {
	return s.ConfidencePpm >= 0 && s.ConfidencePpm <= 1_000_000 && s.MagnitudeBps >= 0
}
