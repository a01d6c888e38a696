package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type stubFees struct {
	fee     *domain.BigInt
	gas     uint64
	failN   int32
	calls   int32
}

func (s *stubFees) EstimateFee(ctx context.Context, step domain.ReallocationStep) (*domain.BigInt, uint64, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.failN {
		return nil, 0, errors.New("fee quote unavailable")
	}
	return s.fee, s.gas, nil
}

type stubBridge struct {
	failN int32
	calls int32
}

func (s *stubBridge) SendCrossChain(ctx context.Context, step domain.ReallocationStep, fee *domain.BigInt, gasLimit uint64) (string, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.failN {
		return "", errors.New("bridge submission failed")
	}
	return "bridge-msg-1", nil
}

type instantSource struct{ depth uint64 }

func (s instantSource) SourceStatus(ctx context.Context, chainID domain.ChainId, bridgeMessageID string) (uint64, bool, error) {
	return s.depth, false, nil
}

type instantDest struct{}

func (instantDest) DestinationStatus(ctx context.Context, chainID domain.ChainId, bridgeMessageID string) (bool, bool, string, error) {
	return true, false, "0xreceipt", nil
}

type fixedChainParams struct{ depth uint64 }

func (f fixedChainParams) Params(id domain.ChainId) (domain.ChainParams, bool) {
	return domain.ChainParams{ChainId: id, ConfirmationDepth: f.depth}, true
}

func testStep() domain.ReallocationStep {
	return domain.ReallocationStep{
		FromChain: 1, SourcePoolAddress: "0xsrc", SourceProtocol: domain.ProtocolAave,
		ToChain: 42161, TargetPoolAddress: "0xdst", TargetProtocol: domain.ProtocolCompound,
		AmountSmallest: domain.NewBigInt(1000),
	}
}

func testDecision(steps ...domain.ReallocationStep) domain.Decision {
	return domain.Decision{Id: "d1", Action: domain.ActionRebalance, Steps: steps, ConfidencePpm: 900_000, ConsensusPpm: 900_000}
}

func waitForFinalized(t *testing.T, e *Engine, msgID string) domain.CrossChainMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, ok := e.Message(msgID); ok && domain.IsTerminal(m.State) {
			return m
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("message never reached a terminal state")
	return domain.CrossChainMessage{}
}

func TestSubmitDrivesMessageToFinalized(t *testing.T) {
	bus := eventbus.New(16)
	e := New(&stubFees{fee: domain.NewBigInt(5), gas: 21000}, &stubBridge{}, instantSource{depth: 1}, instantDest{}, fixedChainParams{depth: 1}, bus, Config{ConfirmationPoll: time.Millisecond}, "wallet-1", testLogger())

	err := e.Submit(context.Background(), testDecision(testStep()), "upkeep-1")
	require.NoError(t, err)

	op, ok := e.Operation("") // unknown id lookup should fail gracefully
	assert.False(t, ok)
	_ = op

	e.mu.Lock()
	var msgID string
	for id := range e.messages {
		msgID = id
	}
	e.mu.Unlock()
	require.NotEmpty(t, msgID)

	m := waitForFinalized(t, e, msgID)
	assert.Equal(t, domain.MessageFinalized, m.State)
	assert.Equal(t, "0xreceipt", m.FinalReceipt)
}

func TestOverlappingSourcePoolRejected(t *testing.T) {
	bus := eventbus.New(16)
	e := New(&stubFees{fee: domain.NewBigInt(5), gas: 21000}, &stubBridge{}, instantSource{depth: 1}, instantDest{}, fixedChainParams{depth: 1}, bus, Config{ConfirmationPoll: time.Millisecond}, "wallet-1", testLogger())

	step := testStep()
	first := testDecision(step)
	first.Id = "op-1"
	second := testDecision(step)
	second.Id = "op-2"

	require.NoError(t, e.Submit(context.Background(), first, "upkeep-1"))
	err := e.Submit(context.Background(), second, "upkeep-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOverlappingSteps)
}

func TestFeeEstimateRetriedThenSucceeds(t *testing.T) {
	bus := eventbus.New(16)
	fees := &stubFees{fee: domain.NewBigInt(5), gas: 21000, failN: 2}
	e := New(fees, &stubBridge{}, instantSource{depth: 1}, instantDest{}, fixedChainParams{depth: 1}, bus, Config{RetryBaseBackoff: time.Millisecond, MaxSubmissionRetries: 3, ConfirmationPoll: time.Millisecond}, "wallet-1", testLogger())

	err := e.Submit(context.Background(), testDecision(testStep()), "upkeep-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), fees.calls)
}

func TestPersistentFeeFailureReturnsError(t *testing.T) {
	bus := eventbus.New(16)
	fees := &stubFees{fee: domain.NewBigInt(5), gas: 21000, failN: 100}
	e := New(fees, &stubBridge{}, instantSource{depth: 1}, instantDest{}, fixedChainParams{depth: 1}, bus, Config{RetryBaseBackoff: time.Millisecond, MaxSubmissionRetries: 2, ConfirmationPoll: time.Millisecond}, "wallet-1", testLogger())

	err := e.Submit(context.Background(), testDecision(testStep()), "upkeep-1")
	require.Error(t, err)

	e.mu.Lock()
	var found bool
	for _, m := range e.messages {
		if m.State == domain.MessageFeeEstimateFailed {
			found = true
		}
	}
	e.mu.Unlock()
	assert.True(t, found)
}
