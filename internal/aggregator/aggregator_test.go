package aggregator

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
	"github.com/crossfluxx/rebalancer/internal/feed"
)

type nopPriceSource struct{ tick domain.PriceTick }

func (s nopPriceSource) SimplePrice(ctx context.Context, pair string) (domain.PriceTick, error) {
	return s.tick, nil
}

type nopYieldSource struct{ pools []domain.PoolSnapshot }

func (s nopYieldSource) Pools(ctx context.Context, chainID domain.ChainId) ([]domain.PoolSnapshot, error) {
	return s.pools, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCurrentSnapshotStartsEmpty(t *testing.T) {
	bus := eventbus.New(16)
	f := feed.New(nopPriceSource{}, nopYieldSource{}, bus, feed.Config{}, nil, nil, testLogger())
	a := New(f, bus, Config{}, testLogger())

	snap := a.CurrentSnapshot()
	assert.Empty(t, snap.Pools)
	assert.Empty(t, snap.Prices)
}

func TestRebuildOnPriceUpdatePublishesSnapshot(t *testing.T) {
	now := time.Now()
	tick := domain.PriceTick{Pair: "ETH/USD", PriceE18: domain.NewBigInt(1000), ConfidencePpm: 990_000, ObservedAt: now}
	bus := eventbus.New(16)
	f := feed.New(nopPriceSource{tick: tick}, nopYieldSource{}, bus, feed.Config{}, []string{"ETH/USD"}, nil, testLogger())
	a := New(f, bus, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	snaps := bus.Subscribe(ctx, eventbus.TopicSnapshot)

	bus.Publish(eventbus.TopicPriceUpdate, tick)

	select {
	case ev := <-snaps:
		snap, ok := ev.(domain.MarketSnapshot)
		require.True(t, ok)
		_, found := snap.Price("ETH/USD")
		assert.True(t, found)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot publish after price update")
	}
}

func TestLiveFeedIsBoundedAndThreadSafe(t *testing.T) {
	bus := eventbus.New(16)
	f := feed.New(nopPriceSource{}, nopYieldSource{}, bus, feed.Config{}, nil, nil, testLogger())
	a := New(f, bus, Config{LiveFeedCapacity: 3}, testLogger())

	for i := 0; i < 10; i++ {
		a.recordLive(LiveEvent{Kind: "price", Pair: "ETH/USD"})
	}
	assert.Len(t, a.LiveFeed(), 3)
}
