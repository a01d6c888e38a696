package chainclients

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testRegistry() *domain.ChainRegistry {
	return domain.NewChainRegistry([]domain.ChainParams{
		{ChainId: 1, Name: "mainnet", Selector: "5009297550715157269", RouterAddress: "0x1111111111111111111111111111111111111111", RPCURL: "http://127.0.0.1:1", ConfirmationDepth: 12},
		{ChainId: 42161, Name: "arbitrum", Selector: "4949039107694359620", RouterAddress: "0x2222222222222222222222222222222222222222", RPCURL: "http://127.0.0.1:1", ConfirmationDepth: 1},
	})
}

func TestSelectorUint64ParsesDecimalString(t *testing.T) {
	assert.Equal(t, uint64(5009297550715157269), selectorUint64(domain.ChainSelector("5009297550715157269")))
	assert.Equal(t, uint64(0), selectorUint64(domain.ChainSelector("")))
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, isSuccessful(1))
	assert.False(t, isSuccessful(0))
}

func TestClientForUnregisteredChainReturnsError(t *testing.T) {
	cs := NewClientSet(testRegistry(), nil)
	_, _, err := cs.clientFor(domain.ChainId(999))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestClientForRegisteredChainDialsLazily(t *testing.T) {
	cs := NewClientSet(testRegistry(), nil)
	client, params, err := cs.clientFor(domain.ChainId(1))
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, "mainnet", params.Name)

	// second call reuses the cached client
	client2, _, err := cs.clientFor(domain.ChainId(1))
	require.NoError(t, err)
	assert.Same(t, client, client2)
}

func TestVaultClientMissingAddressReturnsUnsupportedChainError(t *testing.T) {
	clients := NewClientSet(testRegistry(), nil)
	vault := NewVaultClient(clients, map[domain.ChainId]string{})
	_, err := vault.GetUserDeposit(context.Background(), 1, "0xuser", "0xtoken")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestHealthCheckerMissingAddressReturnsUnsupportedChainError(t *testing.T) {
	clients := NewClientSet(testRegistry(), nil)
	checker := NewHealthCheckerClient(clients, map[domain.ChainId]string{})
	_, err := checker.VerifyCollateral(context.Background(), 1, "0xpool", domain.NewBigInt(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestExecutorClientMissingAddressReturnsUnsupportedChainError(t *testing.T) {
	clients := NewClientSet(testRegistry(), nil)
	exec := NewExecutorClient(clients, map[domain.ChainId]string{})
	_, err := exec.SupportedProtocols(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestBridgeABIEstimateFeePacksAndUnpacks(t *testing.T) {
	callData, err := bridgeABI.Pack("estimateFee",
		selectorUint64("4949039107694359620"),
		common.HexToAddress("0xtoken0000000000000000000000000000000000"),
		big.NewInt(1000),
		big.NewInt(300000),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, callData)

	// Simulate a contract returning a packed uint256 fee and confirm Unpack
	// recovers it, exercising the same decode path EstimateFee relies on.
	encoded, err := bridgeABI.Methods["estimateFee"].Outputs.Pack(big.NewInt(42))
	require.NoError(t, err)
	vals, err := bridgeABI.Unpack("estimateFee", encoded)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, big.NewInt(42), vals[0])
}

func TestGasTrackerLatestGasWeiUnknownChain(t *testing.T) {
	clients := NewClientSet(testRegistry(), nil)
	gt := NewGasTracker(clients, testRegistry(), 0, testLogger())
	_, ok := gt.LatestGasWei(domain.ChainId(7))
	assert.False(t, ok)
}

func TestGasTrackerPollAllRecordsPerChainFailureIndependently(t *testing.T) {
	clients := NewClientSet(testRegistry(), nil)
	gt := NewGasTracker(clients, testRegistry(), 0, testLogger())
	// Dialing 127.0.0.1:1 and suggesting gas price will fail for both
	// registered chains; pollAll must not panic and must leave the map
	// empty rather than partially populate it with zero values.
	gt.pollAll(context.Background())
	_, ok := gt.LatestGasWei(domain.ChainId(1))
	assert.False(t, ok)
}
