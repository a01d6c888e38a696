package chainclients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// VaultClient reads the yield vault contract's per-user accounting
// (getUserDeposit, getHealthScore) named in spec.md §6. It is read-only:
// deposit/withdraw are end-user wallet actions this control plane observes
// rather than initiates, so no signing path is wired here.
type VaultClient struct {
	clients       *ClientSet
	vaultAddress  map[domain.ChainId]common.Address
}

// NewVaultClient builds a VaultClient. vaultAddresses maps each chain to
// its deployed vault contract address.
func NewVaultClient(clients *ClientSet, vaultAddresses map[domain.ChainId]string) *VaultClient {
	addrs := make(map[domain.ChainId]common.Address, len(vaultAddresses))
	for id, a := range vaultAddresses {
		addrs[id] = common.HexToAddress(a)
	}
	return &VaultClient{clients: clients, vaultAddress: addrs}
}

// GetUserDeposit returns the user's deposited balance of token on chainID.
func (v *VaultClient) GetUserDeposit(ctx context.Context, chainID domain.ChainId, user, token string) (*domain.BigInt, error) {
	result, err := v.call(ctx, chainID, "getUserDeposit", common.HexToAddress(user), common.HexToAddress(token))
	if err != nil {
		return nil, err
	}
	vals, err := vaultABI.Unpack("getUserDeposit", result)
	if err != nil || len(vals) == 0 {
		return nil, domain.NewError(domain.KindChain, false, "unpack getUserDeposit result", err)
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "unexpected getUserDeposit return type", nil)
	}
	return domain.NewBigIntFromBig(amount), nil
}

// GetHealthScore returns the user's collateral health score in basis
// points, used to corroborate the health-checker's verifyCollateral result.
func (v *VaultClient) GetHealthScore(ctx context.Context, chainID domain.ChainId, user string) (int64, error) {
	result, err := v.call(ctx, chainID, "getHealthScore", common.HexToAddress(user))
	if err != nil {
		return 0, err
	}
	vals, err := vaultABI.Unpack("getHealthScore", result)
	if err != nil || len(vals) == 0 {
		return 0, domain.NewError(domain.KindChain, false, "unpack getHealthScore result", err)
	}
	score, ok := vals[0].(*big.Int)
	if !ok {
		return 0, domain.NewError(domain.KindChain, false, "unexpected getHealthScore return type", nil)
	}
	return score.Int64(), nil
}

func (v *VaultClient) call(ctx context.Context, chainID domain.ChainId, method string, args ...interface{}) ([]byte, error) {
	client, _, err := v.clients.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	addr, ok := v.vaultAddress[chainID]
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "no vault address configured for chain", domain.ErrUnsupportedChain)
	}
	callData, err := vaultABI.Pack(method, args...)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, false, "pack "+method+" calldata", err)
	}
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: callData}, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, true, "call "+method, err)
	}
	return result, nil
}
