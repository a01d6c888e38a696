package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// GasObservation is one chain's current gas price, consumed by the Signal
// Agent (rule 3) and the Upkeep Engine (condition 4).
type GasObservation struct {
	ChainId  domain.ChainId
	GasWei   uint64
	ObservedAt time.Time
}

// GasHandler is invoked for each gas observation.
type GasHandler func(GasObservation)

// GasFeed subscribes to a chain's gas-price WebSocket feed and invokes
// onGas on each update, reconnecting with backoff on disconnect — the same
// shape as the teacher's Polymarket WS feed, retargeted to a generic
// {chain_id, gas_wei} wire message.
type GasFeed struct {
	wsURL   string
	chainID domain.ChainId
	onGas   GasHandler
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewGasFeed builds a feed that subscribes to wsURL for chainID's gas price.
func NewGasFeed(wsURL string, chainID domain.ChainId, onGas GasHandler, logger *slog.Logger) *GasFeed {
	return &GasFeed{
		wsURL:   wsURL,
		chainID: chainID,
		onGas:   onGas,
		logger:  logger.With(slog.String("component", "gas_feed"), slog.Any("chain_id", chainID)),
		done:    make(chan struct{}),
	}
}

type gasMessage struct {
	GasWei uint64 `json:"gas_wei"`
}

// Run connects and reconnects with a fixed 2s backoff until ctx is
// cancelled or Close is called.
func (f *GasFeed) Run(ctx context.Context) error {
	if f.wsURL == "" {
		f.logger.Info("no gas websocket configured, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("gas feed disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *GasFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg gasMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if f.onGas != nil {
			f.onGas(GasObservation{ChainId: f.chainID, GasWei: msg.GasWei, ObservedAt: time.Now()})
		}
	}
}

// Close stops the feed.
func (f *GasFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
