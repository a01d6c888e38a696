package voting

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/strategyagent"
)

func loopTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixedSnapshot struct{ snap domain.MarketSnapshot }

func (f fixedSnapshot) CurrentSnapshot() domain.MarketSnapshot { return f.snap }

type fixedPositions struct{ positions []strategyagent.Position }

func (f fixedPositions) Positions(ctx context.Context) ([]strategyagent.Position, error) {
	return f.positions, nil
}

type fixedStrategy struct{ scores []domain.StrategyScore }

func (f fixedStrategy) Evaluate(ctx context.Context, positions []strategyagent.Position, snap domain.MarketSnapshot, signals []domain.Signal) ([]domain.StrategyScore, error) {
	return f.scores, nil
}

func TestLoopPublishesOneDecisionPerTick(t *testing.T) {
	bus := eventbus.New(16)
	coord := New(Config{}, loopTestLogger(), func() string { return "d1" }, nil)
	loop := NewLoop(coord, fixedStrategy{}, fixedSnapshot{}, fixedPositions{}, bus, LoopConfig{EvalInterval: 10 * time.Millisecond}, loopTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	decisions := bus.Subscribe(ctx, eventbus.TopicDecision)
	go loop.Run(ctx)

	select {
	case ev := <-decisions:
		d, ok := ev.(domain.Decision)
		require.True(t, ok)
		assert.Equal(t, domain.ActionHold, d.Action)
	case <-time.After(time.Second):
		t.Fatal("no decision published within timeout")
	}

	_, ok := loop.LatestDecision()
	assert.True(t, ok)
}

func TestLoopExpiresOldSignalsFromWindow(t *testing.T) {
	bus := eventbus.New(16)
	coord := New(Config{}, loopTestLogger(), func() string { return "d1" }, nil)
	loop := NewLoop(coord, fixedStrategy{}, fixedSnapshot{}, fixedPositions{}, bus, LoopConfig{SignalWindow: 10 * time.Millisecond}, loopTestLogger())

	base := time.Now()
	loop.now = func() time.Time { return base }
	loop.signals = append(loop.signals, signalEntry{signal: domain.Signal{Kind: domain.SignalKindOpportunity}, arrivedAt: base})

	loop.now = func() time.Time { return base.Add(time.Second) }
	recent := loop.expireAndCollect()
	assert.Empty(t, recent, "signal older than the window should have expired")
}
