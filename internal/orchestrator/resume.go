package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

// Resume reloads every open RebalanceOperation and CrossChainMessage from
// the attached CheckpointStore and re-enters their lifecycles in the
// background, so a restart picks up in-flight work instead of losing track
// of it or re-deciding it from scratch (spec.md §8 "no double-submission").
// A no-op if no CheckpointStore was attached via WithCheckpoints.
func (e *Engine) Resume(ctx context.Context) error {
	if e.checkpoints == nil {
		return nil
	}

	ops, err := e.checkpoints.OpenOperations(ctx)
	if err != nil {
		return domain.NewError(domain.KindState, false, "resume: load open operations", err)
	}
	msgs, err := e.checkpoints.OpenMessages(ctx)
	if err != nil {
		return domain.NewError(domain.KindState, false, "resume: load open messages", err)
	}

	byOperation := make(map[string][]*domain.CrossChainMessage)
	for i := range msgs {
		m := msgs[i]
		byOperation[m.OperationId] = append(byOperation[m.OperationId], &m)
	}

	for i := range ops {
		op := ops[i]
		group := byOperation[op.Id]

		e.mu.Lock()
		opCopy := op
		e.operations[op.Id] = &opCopy
		for _, m := range group {
			e.messages[m.MessageId] = m
		}
		keys := make([]serialKey, len(op.Steps))
		for j, step := range op.Steps {
			k := serialKey{user: e.walletUser, sourcePool: step.SourcePool()}
			keys[j] = k
			e.activeSourcePools[k] = op.Id
		}
		e.mu.Unlock()

		e.logger.Info("resuming in-flight rebalance operation", slog.String("operation_id", op.Id), slog.Int("open_messages", len(group)))
		go e.resumeOperation(context.Background(), &opCopy, group, keys)
	}

	return nil
}

// resumeOperation mirrors runOperation but re-enters each message's
// lifecycle via resumeMessageLifecycle instead of assuming every message
// starts from Submitted.
func (e *Engine) resumeOperation(ctx context.Context, op *domain.RebalanceOperation, msgs []*domain.CrossChainMessage, keys []serialKey) {
	var wg sync.WaitGroup
	for _, m := range msgs {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.resumeMessageLifecycle(ctx, m)
		}()
	}
	wg.Wait()

	status := domain.OperationComplete
	for _, m := range msgs {
		if m.State != domain.MessageFinalized {
			status = domain.OperationPartial
		}
	}

	e.mu.Lock()
	op.Status = status
	op.UpdatedAt = e.now()
	for _, k := range keys {
		if e.activeSourcePools[k] == op.Id {
			delete(e.activeSourcePools, k)
		}
	}
	e.mu.Unlock()
	e.saveOperation(ctx, op)

	e.bus.Publish(eventbus.TopicRebalanceCompleted, *op)
	e.logger.Info("resumed rebalance operation finished", slog.String("operation_id", op.Id), slog.String("status", string(status)))
}
