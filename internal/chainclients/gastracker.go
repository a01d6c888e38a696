package chainclients

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// GasTracker polls each registered chain's gas price on a fixed cadence and
// serves the latest observed value, satisfying upkeep.GasSource's
// LatestGasWei for upkeep condition 4 (spec.md §4.7). Adapted from the
// feed package's ticker-driven poll loop, narrowed to a single metric.
type GasTracker struct {
	clients  *ClientSet
	registry *domain.ChainRegistry
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	latest map[domain.ChainId]uint64
}

// NewGasTracker builds a GasTracker. interval defaults to 30s when zero.
func NewGasTracker(clients *ClientSet, registry *domain.ChainRegistry, interval time.Duration, logger *slog.Logger) *GasTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &GasTracker{
		clients:  clients,
		registry: registry,
		interval: interval,
		logger:   logger.With(slog.String("component", "gastracker")),
		latest:   make(map[domain.ChainId]uint64),
	}
}

// Run polls every registered chain's gas price until ctx is cancelled.
func (g *GasTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.pollAll(ctx)
		}
	}
}

func (g *GasTracker) pollAll(ctx context.Context) {
	for _, params := range g.registry.All() {
		price, err := g.clients.gasPriceFor(ctx, params.ChainId)
		if err != nil {
			g.logger.Warn("gas price poll failed", slog.Uint64("chain_id", uint64(params.ChainId)), slog.String("error", err.Error()))
			continue
		}
		g.mu.Lock()
		g.latest[params.ChainId] = price.Uint64()
		g.mu.Unlock()
	}
}

// LatestGasWei returns the last observed gas price for chainID, satisfying
// upkeep.GasSource.
func (g *GasTracker) LatestGasWei(chainID domain.ChainId) (uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.latest[chainID]
	return v, ok
}
