// Package aggregator is the Market Data Aggregator: it listens to the feed's
// priceUpdate/significantPriceChange events, recomputes a MarketSnapshot on
// each emission, and publishes both the snapshot and a bounded live event
// feed of what changed (spec.md §4.3).
package aggregator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/feed"
)

// LiveEvent is one entry in the aggregator's bounded live event feed.
type LiveEvent struct {
	Kind  string // "price" or "price_change"
	Pair  string
	Pool  domain.PoolKey
	Price domain.PriceTick
	Snap  domain.PoolSnapshot
}

// Config controls the aggregator's live event feed capacity.
type Config struct {
	LiveFeedCapacity int
}

func (c Config) withDefaults() Config {
	if c.LiveFeedCapacity == 0 {
		c.LiveFeedCapacity = 100
	}
	return c
}

// Aggregator holds the single current MarketSnapshot behind an atomic
// pointer so readers never block on the writer and always see a
// consistent, fully-built snapshot (single-producer/multi-consumer swap,
// spec.md §5).
type Aggregator struct {
	feed   *feed.Feed
	bus    *eventbus.Bus
	logger *slog.Logger

	current atomic.Pointer[domain.MarketSnapshot] // never nil after New

	mu        sync.Mutex
	liveFeed  []LiveEvent
	liveCap   int
}

// New builds an Aggregator that reads from f and republishes onto bus.
func New(f *feed.Feed, bus *eventbus.Bus, cfg Config, logger *slog.Logger) *Aggregator {
	cfg = cfg.withDefaults()
	a := &Aggregator{
		feed:    f,
		bus:     bus,
		logger:  logger.With(slog.String("component", "aggregator")),
		liveCap: cfg.LiveFeedCapacity,
	}
	a.current.Store(domain.NewMarketSnapshot(nil, nil, time.Time{}))
	return a
}

// CurrentSnapshot returns the most recently published snapshot.
func (a *Aggregator) CurrentSnapshot() domain.MarketSnapshot {
	return *a.current.Load()
}

// LiveFeed returns a copy of the bounded recent-events buffer, oldest first.
func (a *Aggregator) LiveFeed() []LiveEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]LiveEvent, len(a.liveFeed))
	copy(out, a.liveFeed)
	return out
}

// Run subscribes to the feed's priceUpdate and significantPriceChange events
// and rebuilds the snapshot on every emission until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	prices := a.bus.Subscribe(ctx, eventbus.TopicPriceUpdate)
	pools := a.bus.Subscribe(ctx, eventbus.TopicSignificantPriceChange)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-prices:
			if !ok {
				return ctx.Err()
			}
			tick, ok := ev.(domain.PriceTick)
			if !ok {
				continue
			}
			a.recordLive(LiveEvent{Kind: "price", Pair: tick.Pair, Price: tick})
			a.rebuild()
		case ev, ok := <-pools:
			if !ok {
				return ctx.Err()
			}
			change, ok := ev.(feed.PriceChange)
			if !ok {
				continue
			}
			a.recordLive(LiveEvent{Kind: "price_change", Pair: change.Pair, Price: change.Tick})
			a.rebuild()
		}
	}
}

// rebuild recomputes the snapshot from the feed's current latest-price and
// latest-yield maps and atomically swaps it in, then publishes it.
func (a *Aggregator) rebuild() {
	pools := a.feed.LatestYields()
	snap := domain.NewMarketSnapshot(pools, a.collectPrices(), time.Now())
	a.current.Store(snap)
	a.bus.Publish(eventbus.TopicSnapshot, *snap)
}

// RebuildNow recomputes and publishes the snapshot from the feed's current
// state for the given pairs, bypassing the live-event-derived pair tracking
// Run relies on. It's for the `once` CLI subcommand, which calls Feed.PollOnce
// directly rather than running the event-driven Run loop, so there is no live
// feed of "pairs seen" to draw from yet.
func (a *Aggregator) RebuildNow(pairs []string) domain.MarketSnapshot {
	prices := make(map[string]domain.PriceTick, len(pairs))
	for _, pair := range pairs {
		if tick, ok := a.feed.LatestPrice(pair); ok {
			prices[pair] = tick
		}
	}
	pools := a.feed.LatestYields()
	snap := domain.NewMarketSnapshot(pools, prices, time.Now())
	a.current.Store(snap)
	a.bus.Publish(eventbus.TopicSnapshot, *snap)
	return *snap
}

func (a *Aggregator) collectPrices() map[string]domain.PriceTick {
	// The feed only exposes LatestPrice per pair; the aggregator tracks the
	// set of pairs it has seen via the live feed so it can assemble the full
	// price map without the feed needing a "all latest prices" method.
	a.mu.Lock()
	seen := make(map[string]struct{})
	for _, ev := range a.liveFeed {
		if ev.Pair != "" {
			seen[ev.Pair] = struct{}{}
		}
	}
	a.mu.Unlock()

	out := make(map[string]domain.PriceTick, len(seen))
	for pair := range seen {
		if tick, ok := a.feed.LatestPrice(pair); ok {
			out[pair] = tick
		}
	}
	return out
}

func (a *Aggregator) recordLive(ev LiveEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.liveFeed = append(a.liveFeed, ev)
	if len(a.liveFeed) > a.liveCap {
		a.liveFeed = a.liveFeed[len(a.liveFeed)-a.liveCap:]
	}
}
