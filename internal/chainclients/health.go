package chainclients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// HealthCheckerClient reads the collateral health-checker contract named in
// spec.md §6 (verifyCollateral, getCollateralRatio) — a second, independent
// collateral read the signal agent or emergency-exit path can corroborate
// against the vault's own getHealthScore.
type HealthCheckerClient struct {
	clients        *ClientSet
	checkerAddress map[domain.ChainId]common.Address
}

// NewHealthCheckerClient builds a HealthCheckerClient.
func NewHealthCheckerClient(clients *ClientSet, checkerAddresses map[domain.ChainId]string) *HealthCheckerClient {
	addrs := make(map[domain.ChainId]common.Address, len(checkerAddresses))
	for id, a := range checkerAddresses {
		addrs[id] = common.HexToAddress(a)
	}
	return &HealthCheckerClient{clients: clients, checkerAddress: addrs}
}

// VerifyCollateral reports whether amount of collateral against pool is
// considered healthy by the checker contract.
func (h *HealthCheckerClient) VerifyCollateral(ctx context.Context, chainID domain.ChainId, pool string, amount *domain.BigInt) (bool, error) {
	result, err := h.call(ctx, chainID, "verifyCollateral", common.HexToAddress(pool), amount.Int())
	if err != nil {
		return false, err
	}
	vals, err := healthABI.Unpack("verifyCollateral", result)
	if err != nil || len(vals) == 0 {
		return false, domain.NewError(domain.KindChain, false, "unpack verifyCollateral result", err)
	}
	ok, isBool := vals[0].(bool)
	if !isBool {
		return false, domain.NewError(domain.KindChain, false, "unexpected verifyCollateral return type", nil)
	}
	return ok, nil
}

// GetCollateralRatio returns pool's current collateral ratio in basis
// points.
func (h *HealthCheckerClient) GetCollateralRatio(ctx context.Context, chainID domain.ChainId, pool string) (int64, error) {
	result, err := h.call(ctx, chainID, "getCollateralRatio", common.HexToAddress(pool))
	if err != nil {
		return 0, err
	}
	vals, err := healthABI.Unpack("getCollateralRatio", result)
	if err != nil || len(vals) == 0 {
		return 0, domain.NewError(domain.KindChain, false, "unpack getCollateralRatio result", err)
	}
	ratio, ok := vals[0].(*big.Int)
	if !ok {
		return 0, domain.NewError(domain.KindChain, false, "unexpected getCollateralRatio return type", nil)
	}
	return ratio.Int64(), nil
}

func (h *HealthCheckerClient) call(ctx context.Context, chainID domain.ChainId, method string, args ...interface{}) ([]byte, error) {
	client, _, err := h.clients.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	addr, ok := h.checkerAddress[chainID]
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "no health checker address configured for chain", domain.ErrUnsupportedChain)
	}
	callData, err := healthABI.Pack(method, args...)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, false, "pack "+method+" calldata", err)
	}
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: callData}, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, true, "call "+method, err)
	}
	return result, nil
}
