package chainclients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// defaultBridgeGasLimit is the conservative upper bound used when a fee
// estimate is needed before the executor's own gas estimate is available.
const defaultBridgeGasLimit = uint64(300_000)

// Signer is the subset of internal/crypto.Signer that BridgeClient needs:
// an address to act from and a way to sign a legacy transaction for the
// target chain. internal/crypto.Signer satisfies this directly.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// BridgeClient implements orchestrator.FeeEstimator and
// orchestrator.BridgeSubmitter against the router contract at each chain's
// ChainParams.RouterAddress, following the teacher pack's pack-sign-send
// shape for on-chain calls (abi.Pack, types.NewTransaction, SignTx,
// SendTransaction) rather than generated contract bindings.
type BridgeClient struct {
	clients  *ClientSet
	signer   Signer
	executor *ExecutorClient // optional; nil falls back to defaultBridgeGasLimit
}

// NewBridgeClient builds a BridgeClient sharing clients' dialed connections
// and signer. executor may be nil, in which case EstimateFee sizes the
// destination gas limit with defaultBridgeGasLimit instead of querying the
// destination chain's rebalance executor.
func NewBridgeClient(clients *ClientSet, signer Signer, executor *ExecutorClient) *BridgeClient {
	return &BridgeClient{clients: clients, signer: signer, executor: executor}
}

// EstimateFee calls the source router's estimateFee view function for the
// step's destination selector, token, amount, and a gas limit (the
// executor's EstimateRebalanceCost when available and positive, else
// defaultBridgeGasLimit), satisfying orchestrator.FeeEstimator (spec.md §4.8
// FeeEstimated).
func (b *BridgeClient) EstimateFee(ctx context.Context, step domain.ReallocationStep) (*domain.BigInt, uint64, error) {
	client, params, err := b.clients.clientFor(step.FromChain)
	if err != nil {
		return nil, 0, err
	}
	destParams, ok := b.clients.registry.Params(step.ToChain)
	if !ok {
		return nil, 0, domain.NewError(domain.KindChain, false, "destination chain not registered", domain.ErrUnsupportedChain)
	}

	gasLimit := defaultBridgeGasLimit
	if b.executor != nil {
		if estimated, err := b.executor.EstimateRebalanceCost(ctx, step.ToChain, step.SourcePoolAddress, step.TargetPoolAddress, step.AmountSmallest); err == nil && estimated > 0 {
			gasLimit = estimated
		}
	}

	callData, err := bridgeABI.Pack("estimateFee",
		selectorUint64(destParams.Selector),
		common.HexToAddress(step.Token),
		step.AmountSmallest.Int(),
		new(big.Int).SetUint64(gasLimit),
	)
	if err != nil {
		return nil, 0, domain.NewError(domain.KindChain, false, "pack estimateFee calldata", err)
	}

	router := common.HexToAddress(params.RouterAddress)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &router, Data: callData}, nil)
	if err != nil {
		return nil, 0, domain.NewError(domain.KindChain, true, "call estimateFee", err)
	}

	vals, err := bridgeABI.Unpack("estimateFee", result)
	if err != nil || len(vals) == 0 {
		return nil, 0, domain.NewError(domain.KindChain, false, "unpack estimateFee result", err)
	}
	fee, ok := vals[0].(*big.Int)
	if !ok {
		return nil, 0, domain.NewError(domain.KindChain, false, "unexpected estimateFee return type", nil)
	}
	return domain.NewBigIntFromBig(fee), gasLimit, nil
}

// SendCrossChain signs and submits a sendCrossChainRebalance transaction on
// the step's source chain router, returning the signed transaction's hash
// once the node accepts it (spec.md §4.8 Submitted). The bridge's own
// message id from the MessageSent event is not read; callers use the
// transaction hash as the message's tracking id.
func (b *BridgeClient) SendCrossChain(ctx context.Context, step domain.ReallocationStep, feeNative *domain.BigInt, gasLimit uint64) (string, error) {
	client, params, err := b.clients.clientFor(step.FromChain)
	if err != nil {
		return "", err
	}
	destParams, ok := b.clients.registry.Params(step.ToChain)
	if !ok {
		return "", domain.NewError(domain.KindChain, false, "destination chain not registered", domain.ErrUnsupportedChain)
	}

	callData, err := bridgeABI.Pack("sendCrossChainRebalance",
		selectorUint64(destParams.Selector),
		common.HexToAddress(step.TargetPoolAddress),
		common.HexToAddress(step.Token),
		step.AmountSmallest.Int(),
		new(big.Int).SetUint64(gasLimit),
	)
	if err != nil {
		return "", domain.NewError(domain.KindChain, false, "pack sendCrossChainRebalance calldata", err)
	}

	nonce, err := client.PendingNonceAt(ctx, b.signer.Address())
	if err != nil {
		return "", domain.NewError(domain.KindChain, true, "fetch nonce", err)
	}
	gasPrice, err := b.clients.gasPriceFor(ctx, step.FromChain)
	if err != nil {
		return "", domain.NewError(domain.KindChain, true, "fetch gas price", err)
	}

	router := common.HexToAddress(params.RouterAddress)
	value := feeNative.Int()
	tx := types.NewTransaction(nonce, router, value, gasLimit, gasPrice, callData)

	chainID := new(big.Int).SetUint64(uint64(step.FromChain))
	signed, err := b.signer.SignTx(tx, chainID)
	if err != nil {
		return "", domain.NewError(domain.KindChain, false, "sign transaction", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", domain.NewError(domain.KindChain, true, "send transaction", err)
	}

	return signed.Hash().Hex(), nil
}

// selectorUint64 parses a domain.ChainSelector (a decimal string) back into
// the uint64 the router ABI expects.
func selectorUint64(sel domain.ChainSelector) uint64 {
	var v uint64
	for _, r := range string(sel) {
		if r < '0' || r > '9' {
			return v
		}
		v = v*10 + uint64(r-'0')
	}
	return v
}
