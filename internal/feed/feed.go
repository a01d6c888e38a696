// Package feed is the Price/Yield Data Feed: it polls on-chain price
// oracles (via PriceSource) and off-chain yield aggregator APIs (via
// YieldSource) on configurable cadences, normalizes into PriceTick/
// PoolSnapshot, and emits priceUpdate/significantPriceChange events
// (spec.md §4.2).
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
)

// PriceSource reads the latest on-chain-or-API price tick for pair.
type PriceSource interface {
	SimplePrice(ctx context.Context, pair string) (domain.PriceTick, error)
}

// YieldSource reads the latest pool snapshots for one chain.
type YieldSource interface {
	Pools(ctx context.Context, chainID domain.ChainId) ([]domain.PoolSnapshot, error)
}

// Config controls the feed's polling cadences and significant-change
// thresholds, per spec.md §4.2 defaults.
type Config struct {
	PriceInterval       time.Duration
	YieldInterval       time.Duration
	DegradedInterval    time.Duration
	SignificantDeltaBps int64
	MaxStaleness        time.Duration
	MinConfidencePpm    int32
	DegradeAfterFailures int
}

func (c Config) withDefaults() Config {
	if c.PriceInterval == 0 {
		c.PriceInterval = 60 * time.Second
	}
	if c.YieldInterval == 0 {
		c.YieldInterval = 300 * time.Second
	}
	if c.DegradedInterval == 0 {
		c.DegradedInterval = c.PriceInterval * 2
	}
	if c.SignificantDeltaBps == 0 {
		c.SignificantDeltaBps = 200
	}
	if c.MaxStaleness == 0 {
		c.MaxStaleness = time.Hour
	}
	if c.MinConfidencePpm == 0 {
		c.MinConfidencePpm = 950_000
	}
	if c.DegradeAfterFailures == 0 {
		c.DegradeAfterFailures = 3
	}
	return c
}

// PriceChange carries a significant change event's payload.
type PriceChange struct {
	Pair     string
	DeltaBps int64
	Tick     domain.PriceTick
}

// Feed polls its sources and republishes price/yield data onto the event
// bus. One Feed instance per process; Pairs/Chains determine what it polls.
type Feed struct {
	priceSrc PriceSource
	yieldSrc YieldSource
	bus      *eventbus.Bus
	cfg      Config
	logger   *slog.Logger

	pairs  []string
	chains []domain.ChainId

	mu           sync.RWMutex
	lastEmitted  map[string]domain.PriceTick
	latestTicks  map[string]domain.PriceTick
	latestPools  map[domain.PoolKey]domain.PoolSnapshot
	priceFails   int
	yieldFails   int
}

// New builds a Feed. pairs and chains are the static polling targets
// (config-driven, set once at startup).
func New(priceSrc PriceSource, yieldSrc YieldSource, bus *eventbus.Bus, cfg Config, pairs []string, chains []domain.ChainId, logger *slog.Logger) *Feed {
	return &Feed{
		priceSrc:    priceSrc,
		yieldSrc:    yieldSrc,
		bus:         bus,
		cfg:         cfg.withDefaults(),
		logger:      logger.With(slog.String("component", "feed")),
		pairs:       pairs,
		chains:      chains,
		lastEmitted: make(map[string]domain.PriceTick),
		latestTicks: make(map[string]domain.PriceTick),
		latestPools: make(map[domain.PoolKey]domain.PoolSnapshot),
	}
}

// LatestPrice returns the most recently polled tick for pair, if any has
// been observed yet.
func (f *Feed) LatestPrice(pair string) (domain.PriceTick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latestTicks[pair]
	return t, ok
}

// LatestYields returns a copy of the current pool-snapshot map.
func (f *Feed) LatestYields() map[domain.PoolKey]domain.PoolSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[domain.PoolKey]domain.PoolSnapshot, len(f.latestPools))
	for k, v := range f.latestPools {
		out[k] = v
	}
	return out
}

// PollOnce polls every configured price pair and chain's yields exactly
// once, publishing the same events Run's tickers would, for the `once`
// CLI subcommand's single-cycle semantics (spec.md §6).
func (f *Feed) PollOnce(ctx context.Context) {
	f.pollPricesOnce(ctx)
	f.pollYieldsOnce(ctx)
}

// Run polls prices and yields on independent tickers until ctx is
// cancelled. Each source's failures are isolated from the other.
func (f *Feed) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); f.runPriceLoop(ctx) }()
	go func() { defer wg.Done(); f.runYieldLoop(ctx) }()
	wg.Wait()
	return ctx.Err()
}

func (f *Feed) runPriceLoop(ctx context.Context) {
	interval := f.cfg.PriceInterval
	for {
		f.pollPricesOnce(ctx)

		f.mu.RLock()
		degraded := f.priceFails >= f.cfg.DegradeAfterFailures
		f.mu.RUnlock()
		wait := interval
		if degraded {
			wait = f.cfg.DegradedInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Feed) pollPricesOnce(ctx context.Context) {
	for _, pair := range f.pairs {
		tick, err := f.priceSrc.SimplePrice(ctx, pair)
		if err != nil {
			f.mu.Lock()
			f.priceFails++
			f.mu.Unlock()
			f.logger.Warn("price source failed", slog.String("pair", pair), slog.String("error", err.Error()))
			continue
		}
		f.mu.Lock()
		f.priceFails = 0
		f.latestTicks[pair] = tick
		f.mu.Unlock()

		f.bus.Publish(eventbus.TopicPriceUpdate, tick)
		f.maybeEmitSignificantChange(pair, tick)
	}
}

// maybeEmitSignificantChange implements the §4.2 "significant change"
// algorithm: ignore stale or low-confidence ticks; otherwise compare
// against the last-emitted tick for the pair and emit+update if the delta
// meets the threshold.
func (f *Feed) maybeEmitSignificantChange(pair string, tick domain.PriceTick) {
	if tick.Stale(time.Now(), f.cfg.MaxStaleness) {
		return
	}
	if tick.ConfidencePpm < f.cfg.MinConfidencePpm {
		return
	}

	f.mu.Lock()
	last, ok := f.lastEmitted[pair]
	if !ok {
		f.lastEmitted[pair] = tick
		f.mu.Unlock()
		return
	}
	delta := domain.DeltaBps(last.PriceE18, tick.PriceE18)
	significant := delta >= f.cfg.SignificantDeltaBps
	if significant {
		f.lastEmitted[pair] = tick
	}
	f.mu.Unlock()

	if significant {
		f.bus.Publish(eventbus.TopicSignificantPriceChange, PriceChange{Pair: pair, DeltaBps: delta, Tick: tick})
	}
}

func (f *Feed) runYieldLoop(ctx context.Context) {
	interval := f.cfg.YieldInterval
	for {
		f.pollYieldsOnce(ctx)

		f.mu.RLock()
		degraded := f.yieldFails >= f.cfg.DegradeAfterFailures
		f.mu.RUnlock()
		wait := interval
		if degraded {
			wait = f.cfg.DegradedInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Feed) pollYieldsOnce(ctx context.Context) {
	for _, chainID := range f.chains {
		pools, err := f.yieldSrc.Pools(ctx, chainID)
		if err != nil {
			f.mu.Lock()
			f.yieldFails++
			f.mu.Unlock()
			f.logger.Warn("yield source failed", slog.Any("chain_id", chainID), slog.String("error", err.Error()))
			continue
		}
		f.mu.Lock()
		f.yieldFails = 0
		for _, p := range pools {
			f.latestPools[p.Key] = p
		}
		f.mu.Unlock()
	}
}
