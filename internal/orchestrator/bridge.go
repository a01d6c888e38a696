package orchestrator

import (
	"context"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// FeeEstimator quotes the bridge fee and gas limit for a step, read-only
// (spec.md §4.8 Created→FeeEstimated). The Strategy Agent also depends on
// this interface to price candidates before they ever reach the
// orchestrator (spec.md §4.5 point 2).
type FeeEstimator interface {
	EstimateFee(ctx context.Context, step domain.ReallocationStep) (feeNative *domain.BigInt, gasLimit uint64, err error)
}

// BridgeSubmitter sends the actual cross-chain message once a fee has been
// quoted (spec.md §4.8 FeeEstimated→Submitted).
type BridgeSubmitter interface {
	SendCrossChain(ctx context.Context, step domain.ReallocationStep, feeNative *domain.BigInt, gasLimit uint64) (bridgeMessageID string, err error)
}

// SourceWatcher observes the source chain to confirm or revert a submitted
// message (spec.md §4.8 Submitted→SourceConfirmed/SourceReverted).
type SourceWatcher interface {
	// SourceStatus reports the number of confirmations seen for
	// bridgeMessageID on chainID, or reverted=true if the source
	// transaction itself reverted.
	SourceStatus(ctx context.Context, chainID domain.ChainId, bridgeMessageID string) (confirmations uint64, reverted bool, err error)
}

// DestinationWatcher observes the destination chain for delivery and the
// subsequent rebalance-execution event (spec.md §4.8 InFlight→
// DestinationDelivered→Finalized).
type DestinationWatcher interface {
	// DestinationStatus reports whether the bridge message has been
	// received on the destination chain, and if so whether the
	// destination-side rebalance execution itself succeeded.
	DestinationStatus(ctx context.Context, chainID domain.ChainId, bridgeMessageID string) (delivered bool, executionReverted bool, receipt string, err error)
}

// ChainParamsSource resolves a chain's static parameters, used to look up
// the confirmation depth gating SourceConfirmed→InFlight.
type ChainParamsSource interface {
	Params(id domain.ChainId) (domain.ChainParams, bool)
}
