package chainclients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// ERC20Client wraps the standard token interface named in spec.md §6
// (balanceOf, allowance, approve, decimals) — used before submission to
// confirm the vault holds enough of the source token and has approved the
// router to move it, avoiding a doomed on-chain submission.
type ERC20Client struct {
	clients *ClientSet
	signer  Signer
}

// NewERC20Client builds an ERC20Client sharing clients' dialed connections
// and signer.
func NewERC20Client(clients *ClientSet, signer Signer) *ERC20Client {
	return &ERC20Client{clients: clients, signer: signer}
}

// BalanceOf returns holder's token balance on chainID.
func (e *ERC20Client) BalanceOf(ctx context.Context, chainID domain.ChainId, token, holder string) (*domain.BigInt, error) {
	result, err := e.callView(ctx, chainID, token, "balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return nil, domain.NewError(domain.KindChain, false, "unpack balanceOf result", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "unexpected balanceOf return type", nil)
	}
	return domain.NewBigIntFromBig(bal), nil
}

// Allowance returns the amount spender may move on owner's behalf.
func (e *ERC20Client) Allowance(ctx context.Context, chainID domain.ChainId, token, owner, spender string) (*domain.BigInt, error) {
	result, err := e.callView(ctx, chainID, token, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", result)
	if err != nil || len(vals) == 0 {
		return nil, domain.NewError(domain.KindChain, false, "unpack allowance result", err)
	}
	allowed, ok := vals[0].(*big.Int)
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "unexpected allowance return type", nil)
	}
	return domain.NewBigIntFromBig(allowed), nil
}

// Approve signs and submits an approve transaction granting spender amount
// on the signer's own balance of token.
func (e *ERC20Client) Approve(ctx context.Context, chainID domain.ChainId, token, spender string, amount *domain.BigInt) (string, error) {
	client, _, err := e.clients.clientFor(chainID)
	if err != nil {
		return "", err
	}

	callData, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount.Int())
	if err != nil {
		return "", domain.NewError(domain.KindChain, false, "pack approve calldata", err)
	}

	nonce, err := client.PendingNonceAt(ctx, e.signer.Address())
	if err != nil {
		return "", domain.NewError(domain.KindChain, true, "fetch nonce", err)
	}
	gasPrice, err := e.clients.gasPriceFor(ctx, chainID)
	if err != nil {
		return "", domain.NewError(domain.KindChain, true, "fetch gas price", err)
	}

	tokenAddr := common.HexToAddress(token)
	tx := types.NewTransaction(nonce, tokenAddr, big.NewInt(0), 80_000, gasPrice, callData)

	chainIDBig := new(big.Int).SetUint64(uint64(chainID))
	signed, err := e.signer.SignTx(tx, chainIDBig)
	if err != nil {
		return "", domain.NewError(domain.KindChain, false, "sign transaction", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", domain.NewError(domain.KindChain, true, "send transaction", err)
	}

	return signed.Hash().Hex(), nil
}

func (e *ERC20Client) callView(ctx context.Context, chainID domain.ChainId, token, method string, args ...interface{}) ([]byte, error) {
	client, _, err := e.clients.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	callData, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, false, "pack "+method+" calldata", err)
	}
	tokenAddr := common.HexToAddress(token)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: callData}, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, true, "call "+method, err)
	}
	return result, nil
}
