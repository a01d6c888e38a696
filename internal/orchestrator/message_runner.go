package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// advanceToSubmitted drives m from Created through FeeEstimated to
// Submitted, retrying each of the two retriable stages up to
// MaxSubmissionRetries times with exponential backoff (spec.md §4.8
// "Retries: only FeeEstimateFailed and SubmissionFailed are retried").
func (e *Engine) advanceToSubmitted(ctx context.Context, m *domain.CrossChainMessage) error {
	err := e.withRetry(ctx, m, "fee estimate", func() error {
		fee, gasLimit, err := e.fees.EstimateFee(ctx, m.Step)
		if err != nil {
			return err
		}
		m.FeeNative = fee
		m.GasLimit = gasLimit
		return nil
	})
	if err != nil {
		e.transition(m, domain.MessageFeeEstimateFailed, err)
		return err
	}
	e.transition(m, domain.MessageFeeEstimated, nil)

	err = e.withRetry(ctx, m, "submission", func() error {
		// A prior attempt may have recorded a bridge message ID before a
		// later step in that same attempt errored; BridgeSubmitter exposes
		// no "was this already sent" query, so the strongest guard
		// available against double-submission is: never call
		// SendCrossChain again once we've already observed one succeed.
		if m.BridgeMessageId != "" {
			return nil
		}
		bridgeID, err := e.bridge.SendCrossChain(ctx, m.Step, m.FeeNative, m.GasLimit)
		if err != nil {
			return err
		}
		m.BridgeMessageId = bridgeID
		return nil
	})
	if err != nil {
		e.transition(m, domain.MessageSubmissionFailed, err)
		return err
	}
	m.SubmittedAt = e.now()
	e.transition(m, domain.MessageSubmitted, nil)
	return nil
}

// withRetry runs fn up to MaxSubmissionRetries times with exponential
// backoff starting at RetryBaseBackoff; fn mutates m directly on success.
func (e *Engine) withRetry(ctx context.Context, m *domain.CrossChainMessage, label string, fn func() error) error {
	var lastErr error
	backoff := e.cfg.RetryBaseBackoff
	for attempt := 1; attempt <= e.cfg.MaxSubmissionRetries; attempt++ {
		m.Attempts++
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		e.logger.Warn(label+" failed, retrying", slog.String("message_id", m.MessageId), slog.Int("attempt", attempt), slog.String("error", lastErr.Error()))
		if attempt == e.cfg.MaxSubmissionRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", label, e.cfg.MaxSubmissionRetries, lastErr)
}

// runMessageLifecycle polls the source and destination watchers from
// Submitted through Finalized, applying spec.md §4.8's two timeouts. It
// never retries Reverted/Timeout states — those are terminal errors
// surfaced to history (spec.md §4.8).
func (e *Engine) runMessageLifecycle(ctx context.Context, m *domain.CrossChainMessage) {
	if err := e.awaitSourceConfirmation(ctx, m); err != nil {
		return
	}
	e.transition(m, domain.MessageInFlight, nil)

	if err := e.awaitDestinationDelivery(ctx, m); err != nil {
		return
	}
	e.transition(m, domain.MessageDestinationDelivered, nil)
	e.finalize(ctx, m)
}

// resumeMessageLifecycle re-enters a message's lifecycle at whatever stage
// a checkpoint last recorded it in, rather than assuming Submitted like
// runMessageLifecycle does. Used by Engine.Resume after a restart: a
// checkpointed message may be sitting in any non-terminal state, and
// re-running the full lifecycle from the top would attempt an illegal
// self-transition (e.g. SourceConfirmed -> SourceConfirmed).
func (e *Engine) resumeMessageLifecycle(ctx context.Context, m *domain.CrossChainMessage) {
	switch m.State {
	case domain.MessageCreated, domain.MessageFeeEstimated:
		if err := e.advanceToSubmitted(ctx, m); err != nil {
			return
		}
		e.runMessageLifecycle(ctx, m)
	case domain.MessageSubmitted:
		e.runMessageLifecycle(ctx, m)
	case domain.MessageSourceConfirmed:
		e.transition(m, domain.MessageInFlight, nil)
		if err := e.awaitDestinationDelivery(ctx, m); err != nil {
			return
		}
		e.transition(m, domain.MessageDestinationDelivered, nil)
		e.finalize(ctx, m)
	case domain.MessageInFlight:
		if err := e.awaitDestinationDelivery(ctx, m); err != nil {
			return
		}
		e.transition(m, domain.MessageDestinationDelivered, nil)
		e.finalize(ctx, m)
	case domain.MessageDestinationDelivered:
		e.finalize(ctx, m)
	default:
		e.logger.Warn("resume: message in unexpected state, leaving as-is", slog.String("message_id", m.MessageId), slog.String("state", string(m.State)))
	}
}

func (e *Engine) awaitSourceConfirmation(ctx context.Context, m *domain.CrossChainMessage) error {
	depth := uint64(1)
	if params, ok := e.chains.Params(m.Step.FromChain); ok && params.ConfirmationDepth > 0 {
		depth = params.ConfirmationDepth
	}

	deadline := e.now().Add(e.cfg.SourceTimeout)
	ticker := time.NewTicker(e.cfg.ConfirmationPoll)
	defer ticker.Stop()

	for {
		confirmations, reverted, err := e.source.SourceStatus(ctx, m.Step.FromChain, m.BridgeMessageId)
		if err != nil {
			e.logger.Warn("source status poll failed", slog.String("message_id", m.MessageId), slog.String("error", err.Error()))
		} else if reverted {
			e.transition(m, domain.MessageSourceReverted, fmt.Errorf("source transaction reverted"))
			return fmt.Errorf("source reverted")
		} else if confirmations >= depth {
			e.transition(m, domain.MessageSourceConfirmed, nil)
			return nil
		}

		if e.now().After(deadline) {
			e.transition(m, domain.MessageSourceReverted, fmt.Errorf("source confirmation timed out after %s", e.cfg.SourceTimeout))
			return fmt.Errorf("source confirmation timeout")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) awaitDestinationDelivery(ctx context.Context, m *domain.CrossChainMessage) error {
	deadline := e.now().Add(e.cfg.DestinationTimeout)
	ticker := time.NewTicker(e.cfg.ConfirmationPoll)
	defer ticker.Stop()

	for {
		delivered, reverted, receipt, err := e.dest.DestinationStatus(ctx, m.Step.ToChain, m.BridgeMessageId)
		if err != nil {
			e.logger.Warn("destination status poll failed", slog.String("message_id", m.MessageId), slog.String("error", err.Error()))
		} else if delivered {
			m.FinalReceipt = receipt
			if reverted {
				e.transition(m, domain.MessageDestinationReverted, fmt.Errorf("destination execution reverted"))
				return fmt.Errorf("destination reverted")
			}
			return nil
		}

		if e.now().After(deadline) {
			e.transition(m, domain.MessageDeliveryTimeout, fmt.Errorf("destination delivery timed out after %s", e.cfg.DestinationTimeout))
			return fmt.Errorf("delivery timeout")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// finalize transitions a delivered message to Finalized. Realized-fee
// reconciliation against the quoted FeeNative would need the receipt
// decoded into a structured fee figure; the bridge clients modeled here
// return only an opaque receipt string, so feeVariance is logged as
// "unavailable" rather than computed — a known gap, not silently dropped.
func (e *Engine) finalize(ctx context.Context, m *domain.CrossChainMessage) {
	e.transition(m, domain.MessageFinalized, nil)
	e.logger.Info("message finalized",
		slog.String("message_id", m.MessageId),
		slog.String("operation_id", m.OperationId),
		slog.String("quoted_fee_native", m.FeeNative.String()),
		slog.String("fee_variance", "unavailable"),
		slog.String("receipt", m.FinalReceipt),
	)
}

func (e *Engine) transition(m *domain.CrossChainMessage, to domain.MessageState, cause error) {
	if cause != nil {
		m.LastError = cause.Error()
	}
	if err := m.Transition(to, e.now()); err != nil {
		e.logger.Error("illegal message transition attempted", slog.String("message_id", m.MessageId), slog.String("error", err.Error()))
		return
	}
	e.saveMessage(context.Background(), m)
	e.publishStateChange(m)
}
