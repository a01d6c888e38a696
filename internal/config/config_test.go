package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsFailValidationWithoutWalletAndFeedURLs(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet:")
	assert.Contains(t, err.Error(), "feed: yield_api_base_url")
}

func TestValidConfigPasses(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Feed.YieldAPIBaseURL = "https://yields.example.com"
	cfg.Feed.PriceAPIBaseURL = "https://prices.example.com"
	for i := range cfg.Chains {
		cfg.Chains[i].RPCURL = "https://rpc.example.com"
	}
	assert.NoError(t, cfg.Validate())
}

func TestDuplicateChainIdRejected(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Feed.YieldAPIBaseURL = "https://yields.example.com"
	cfg.Feed.PriceAPIBaseURL = "https://prices.example.com"
	cfg.Chains[1].ChainId = cfg.Chains[0].ChainId
	for i := range cfg.Chains {
		cfg.Chains[i].RPCURL = "https://rpc.example.com"
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate chain_id")
}

func TestRedactedConfigHidesSecretsWithoutMutatingOriginal(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "super-secret"
	cfg.Redis.Password = "also-secret"

	redacted := RedactedConfig(&cfg)
	assert.Equal(t, "***", redacted.Wallet.PrivateKey)
	assert.Equal(t, "***", redacted.Redis.Password)
	assert.Equal(t, "super-secret", cfg.Wallet.PrivateKey, "original must be untouched")
}
