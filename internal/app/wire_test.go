package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/config"
)

// testPrivateKey is a well-known, unfunded test-only secp256k1 key (the
// default Ganache/Hardhat account #0), used only to exercise crypto.Signer's
// address derivation — never a real vault credential.
const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func validTestConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Wallet.PrivateKey = testPrivateKey
	cfg.Feed.YieldAPIBaseURL = "https://yields.example.com"
	cfg.Feed.PriceAPIBaseURL = "https://prices.example.com"
	for i := range cfg.Chains {
		cfg.Chains[i].RPCURL = "https://rpc.example.com"
	}
	return &cfg
}

func TestWireBuildsEveryDependencyWithRedisDisabled(t *testing.T) {
	cfg := validTestConfig()
	require.NoError(t, cfg.Validate())
	require.False(t, cfg.Redis.Enabled, "test assumes the default config leaves redis disabled")

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger(), "")
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Bus)
	assert.NotNil(t, deps.Feed)
	assert.NotNil(t, deps.Aggregator)
	assert.NotNil(t, deps.SignalAgent)
	assert.NotNil(t, deps.StrategyEngine)
	assert.NotNil(t, deps.VotingLoop)
	assert.NotNil(t, deps.Upkeep)
	assert.NotNil(t, deps.Orchestrator)
	assert.NotNil(t, deps.Supervisor)
	assert.NotNil(t, deps.History)
	assert.NotNil(t, deps.Checkpoints)
	assert.NotNil(t, deps.Metrics)

	// Redis is never dialed here: with cfg.Redis.Enabled false (the
	// default), the optional distributed cache/pubsub layer stays nil
	// rather than attempting a connection no test environment provides.
	assert.Nil(t, deps.SnapshotCache)
	assert.Nil(t, deps.Relay)

	assert.Contains(t, deps.ComponentNames, "feed")
	assert.Contains(t, deps.ComponentNames, "history_recorder")
}

func TestWireServerEnabledRegistersHTTPComponent(t *testing.T) {
	cfg := validTestConfig()
	require.NoError(t, cfg.Validate())
	cfg.Server.Enabled = true
	cfg.Server.Port = 18099

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger(), "")
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Server)
	assert.Contains(t, deps.ComponentNames, "http_server")
}

func TestWireRejectsBadPrivateKey(t *testing.T) {
	cfg := validTestConfig()
	cfg.Wallet.PrivateKey = "not-hex"

	_, _, err := Wire(context.Background(), cfg, testLogger(), "")
	require.Error(t, err)
}
