// Package domain defines the core entities and invariants of the rebalance
// control plane: chains, pools, prices, snapshots, signals, strategies,
// decisions, upkeeps, and the cross-chain message lifecycle.
package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies an error for propagation-policy decisions (§7):
// which errors are retriable, which are fatal, and which degrade to a
// "hold" or "missing data" outcome instead of failing outright.
type ErrKind string

const (
	// KindConfig marks a fatal startup configuration problem.
	KindConfig ErrKind = "config"
	// KindUpstream marks a retriable external I/O failure.
	KindUpstream ErrKind = "upstream"
	// KindChain marks an on-chain RPC/contract error; Retriable further
	// categorizes it.
	KindChain ErrKind = "chain"
	// KindConsensus marks a cycle where no decision could be reached;
	// the caller treats this the same as an explicit hold.
	KindConsensus ErrKind = "consensus"
	// KindState marks an invalid state-machine transition; fatal for the
	// affected message only, never for the engine.
	KindState ErrKind = "state"
	// KindCancelled marks a caller-initiated cancellation.
	KindCancelled ErrKind = "cancelled"
)

// Error is the structured error type used across the control plane so that
// every component can answer "what kind of failure was this" without string
// matching. It wraps an optional cause for errors.Is/As compatibility.
type Error struct {
	Kind      ErrKind
	Reason    string
	Retriable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an *Error, optionally wrapping cause.
func NewError(kind ErrKind, retriable bool, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Retriable: retriable, Cause: cause}
}

// IsRetriable reports whether err (or a wrapped *Error within it) is marked
// retriable. Non-*Error errors are treated as non-retriable.
func IsRetriable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retriable
	}
	return false
}

// KindOf extracts the ErrKind from err, or "" if err does not wrap *Error.
func KindOf(err error) ErrKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Sentinel errors for conditions that don't need a dynamic reason string.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrNoDecision       = errors.New("no current decision")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrOverlappingSteps = errors.New("overlapping position already in flight")
)
