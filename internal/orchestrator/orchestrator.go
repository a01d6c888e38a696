// Package orchestrator is the Cross-Chain Execution Orchestrator: it turns
// one accepted Decision into an ordered set of CrossChainMessages and drives
// each through the bridge state machine to Finalized (spec.md §4.8),
// adapted from the teacher's signal-to-order executor pipeline
// (internal/executor/executor.go) — deduplication becomes per-source-pool
// serialization, and the order-placement loop becomes the message state
// machine.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/upkeep"
)

// serialKey is the (user, source_pool) pair spec.md §9 requires the
// orchestrator to serialize overlapping operations by.
type serialKey struct {
	user       string
	sourcePool domain.PoolKey
}

// Engine owns the in-flight CrossChainMessage set exclusively (spec.md §3
// "Ownership"). It is the only component that writes CrossChainMessage and
// RebalanceOperation state.
type Engine struct {
	fees   FeeEstimator
	bridge BridgeSubmitter
	source SourceWatcher
	dest   DestinationWatcher
	chains ChainParamsSource
	bus    *eventbus.Bus
	cfg    Config
	logger *slog.Logger

	walletUser string
	newID      func() string
	now        func() time.Time

	dedup *dedup

	checkpoints domain.CheckpointStore // optional; nil disables restart-resume

	mu                sync.Mutex
	operations        map[string]*domain.RebalanceOperation
	messages          map[string]*domain.CrossChainMessage
	activeSourcePools map[serialKey]string // -> holding operation id
}

// WithCheckpoints attaches a domain.CheckpointStore that every operation
// and message transition is persisted to, enabling Resume to reload
// in-flight work after a restart (spec.md §8 "no double-submission").
// Returns e for chaining after New.
func (e *Engine) WithCheckpoints(cp domain.CheckpointStore) *Engine {
	e.checkpoints = cp
	return e
}

func (e *Engine) saveOperation(ctx context.Context, op *domain.RebalanceOperation) {
	if e.checkpoints == nil {
		return
	}
	if err := e.checkpoints.SaveOperation(ctx, *op); err != nil {
		e.logger.Error("checkpoint operation failed", slog.String("operation_id", op.Id), slog.String("error", err.Error()))
	}
}

func (e *Engine) saveMessage(ctx context.Context, m *domain.CrossChainMessage) {
	if e.checkpoints == nil {
		return
	}
	if err := e.checkpoints.SaveMessage(ctx, *m); err != nil {
		e.logger.Error("checkpoint message failed", slog.String("message_id", m.MessageId), slog.String("error", err.Error()))
	}
}

// New builds an orchestrator Engine. walletUser identifies the controlled
// vault for the (user, source_pool) serialization key; it is typically the
// configured wallet address, since this control plane manages one vault.
func New(fees FeeEstimator, bridge BridgeSubmitter, source SourceWatcher, dest DestinationWatcher, chains ChainParamsSource, bus *eventbus.Bus, cfg Config, walletUser string, logger *slog.Logger) *Engine {
	return &Engine{
		fees:              fees,
		bridge:            bridge,
		source:            source,
		dest:              dest,
		chains:            chains,
		bus:               bus,
		cfg:               cfg.withDefaults(),
		logger:            logger.With(slog.String("component", "orchestrator")),
		walletUser:        walletUser,
		newID:             uuid.NewString,
		now:               time.Now,
		dedup:             newDedup(5 * time.Minute),
		operations:        make(map[string]*domain.RebalanceOperation),
		messages:          make(map[string]*domain.CrossChainMessage),
		activeSourcePools: make(map[serialKey]string),
	}
}

// SubmitRebalance satisfies upkeep.Submitter so the upkeep Engine can submit
// through this orchestrator without orchestrator importing upkeep's caller.
func (e *Engine) SubmitRebalance(ctx context.Context, req upkeep.ExecuteRebalanceRequest) error {
	return e.Submit(ctx, req.Decision, req.InitiatedByUpkeep)
}

// Submit converts decision into a RebalanceOperation, drives every message
// to Submitted synchronously (so the caller's own retry loop — the upkeep
// engine's submitWithRetry — observes a definitive success/failure), then
// continues each message's lifecycle to Finalized in the background.
func (e *Engine) Submit(ctx context.Context, decision domain.Decision, initiatedBy string) error {
	if len(decision.Steps) == 0 {
		return domain.NewError(domain.KindConsensus, false, "decision carries no steps to execute", nil)
	}
	if decision.Id != "" && e.dedup.isDuplicate(decision.Id, e.now()) {
		return domain.NewError(domain.KindConsensus, false, "decision already submitted within the dedup window", domain.ErrAlreadyExists)
	}

	keys := make([]serialKey, len(decision.Steps))
	for i, step := range decision.Steps {
		keys[i] = serialKey{user: e.walletUser, sourcePool: step.SourcePool()}
	}

	e.mu.Lock()
	for _, k := range keys {
		if holder, busy := e.activeSourcePools[k]; busy {
			e.mu.Unlock()
			return domain.NewError(domain.KindConsensus, false,
				fmt.Sprintf("source pool %s already in flight under operation %s", k.sourcePool.PoolAddress, holder),
				domain.ErrOverlappingSteps)
		}
	}
	opID := e.newID()
	for _, k := range keys {
		e.activeSourcePools[k] = opID
	}
	now := e.now()
	op := &domain.RebalanceOperation{
		Id:        opID,
		Decision:  decision,
		User:      e.walletUser,
		Steps:     decision.Steps,
		Status:    domain.OperationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.operations[opID] = op
	e.mu.Unlock()
	e.saveOperation(ctx, op)

	msgs := make([]*domain.CrossChainMessage, len(decision.Steps))
	for i, step := range decision.Steps {
		msgs[i] = &domain.CrossChainMessage{
			MessageId:   e.newID(),
			OperationId: opID,
			Step:        step,
			State:       domain.MessageCreated,
			LastEventAt: now,
		}
	}

	e.mu.Lock()
	for _, m := range msgs {
		e.messages[m.MessageId] = m
		op.MessageIds = append(op.MessageIds, m.MessageId)
	}
	op.Status = domain.OperationRunning
	e.mu.Unlock()
	for _, m := range msgs {
		e.saveMessage(ctx, m)
	}
	e.saveOperation(ctx, op)

	e.logger.Info("rebalance operation submitted", slog.String("operation_id", opID), slog.String("initiated_by", initiatedBy), slog.Int("steps", len(msgs)))

	if err := e.submitAll(ctx, msgs); err != nil {
		e.failOperation(op, keys, err)
		return err
	}

	go e.runOperation(context.Background(), op, msgs, keys)
	return nil
}

// submitAll drives every message Created->Submitted, sequentially by
// default or grouped by source chain when ParallelPerSource is set
// (spec.md §4.8 "Ordering within a single Decision").
func (e *Engine) submitAll(ctx context.Context, msgs []*domain.CrossChainMessage) error {
	if !e.cfg.ParallelPerSource {
		for _, m := range msgs {
			if err := e.advanceToSubmitted(ctx, m); err != nil {
				return err
			}
		}
		return nil
	}

	bySource := make(map[domain.ChainId][]*domain.CrossChainMessage)
	for _, m := range msgs {
		bySource[m.Step.FromChain] = append(bySource[m.Step.FromChain], m)
	}

	// An all-or-nothing barrier is correct here (unlike the supervisor's
	// per-component independence): one source chain's submission failure
	// should fail the whole Decision rather than leave some steps
	// half-submitted, so errgroup's cancel-on-first-error semantics fit.
	g, gctx := errgroup.WithContext(ctx)
	for _, group := range bySource {
		group := group
		g.Go(func() error {
			for _, m := range group {
				if err := e.advanceToSubmitted(gctx, m); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// runOperation advances every message through the remaining lifecycle
// stages and releases the (user, source_pool) locks once the whole
// operation reaches a terminal status.
func (e *Engine) runOperation(ctx context.Context, op *domain.RebalanceOperation, msgs []*domain.CrossChainMessage, keys []serialKey) {
	var wg sync.WaitGroup
	for _, m := range msgs {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runMessageLifecycle(ctx, m)
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
	e.logger.Info("rebalance operation finished", slog.String("operation_id", op.Id), slog.String("status", string(status)))
}

func (e *Engine) failOperation(op *domain.RebalanceOperation, keys []serialKey, cause error) {
	e.mu.Lock()
	op.Status = domain.OperationFailed
	op.UpdatedAt = e.now()
	for _, k := range keys {
		if e.activeSourcePools[k] == op.Id {
			delete(e.activeSourcePools, k)
		}
	}
	e.mu.Unlock()
	e.saveOperation(context.Background(), op)
	e.logger.Error("rebalance operation submission failed", slog.String("operation_id", op.Id), slog.String("error", cause.Error()))
}

// Operation returns the operation tracked under id, for the `explain` CLI
// subcommand and tests.
func (e *Engine) Operation(id string) (domain.RebalanceOperation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.operations[id]
	if !ok {
		return domain.RebalanceOperation{}, false
	}
	return *op, true
}

// Message returns the message tracked under id.
func (e *Engine) Message(id string) (domain.CrossChainMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.messages[id]
	if !ok {
		return domain.CrossChainMessage{}, false
	}
	return *m, true
}

func (e *Engine) publishStateChange(m *domain.CrossChainMessage) {
	e.bus.Publish(eventbus.TopicMessageStateChanged, *m)
}
