package chainclients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// ExecutorClient reads the destination-chain rebalance executor contract
// (spec.md §6): the contract ccipReceive calls atomically once a bridged
// transfer lands, to deposit the funds into the target protocol. This
// client exposes its two read-only helpers — EstimateRebalanceCost
// (consumed by BridgeClient to size the gas limit passed to estimateFee,
// rather than a flat constant) and SupportedProtocols (a pre-flight guard
// the strategy agent can use to drop candidate steps targeting a protocol
// the destination chain's executor doesn't yet support).
type ExecutorClient struct {
	clients         *ClientSet
	executorAddress map[domain.ChainId]common.Address
}

// NewExecutorClient builds an ExecutorClient.
func NewExecutorClient(clients *ClientSet, executorAddresses map[domain.ChainId]string) *ExecutorClient {
	addrs := make(map[domain.ChainId]common.Address, len(executorAddresses))
	for id, a := range executorAddresses {
		addrs[id] = common.HexToAddress(a)
	}
	return &ExecutorClient{clients: clients, executorAddress: addrs}
}

// EstimateRebalanceCost returns the destination chain's gas estimate for
// depositing amount into targetPool once bridged funds arrive.
func (x *ExecutorClient) EstimateRebalanceCost(ctx context.Context, chainID domain.ChainId, sourcePool, targetPool string, amount *domain.BigInt) (uint64, error) {
	result, err := x.call(ctx, chainID, "estimateRebalanceCost", common.HexToAddress(sourcePool), common.HexToAddress(targetPool), amount.Int())
	if err != nil {
		return 0, err
	}
	vals, err := executorABI.Unpack("estimateRebalanceCost", result)
	if err != nil || len(vals) == 0 {
		return 0, domain.NewError(domain.KindChain, false, "unpack estimateRebalanceCost result", err)
	}
	gas, ok := vals[0].(*big.Int)
	if !ok {
		return 0, domain.NewError(domain.KindChain, false, "unexpected estimateRebalanceCost return type", nil)
	}
	return gas.Uint64(), nil
}

// SupportedProtocols lists the protocol names the destination chain's
// executor can deposit into.
func (x *ExecutorClient) SupportedProtocols(ctx context.Context, chainID domain.ChainId) ([]string, error) {
	result, err := x.call(ctx, chainID, "supportedProtocols")
	if err != nil {
		return nil, err
	}
	vals, err := executorABI.Unpack("supportedProtocols", result)
	if err != nil || len(vals) == 0 {
		return nil, domain.NewError(domain.KindChain, false, "unpack supportedProtocols result", err)
	}
	names, ok := vals[0].([]string)
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "unexpected supportedProtocols return type", nil)
	}
	return names, nil
}

func (x *ExecutorClient) call(ctx context.Context, chainID domain.ChainId, method string, args ...interface{}) ([]byte, error) {
	client, _, err := x.clients.clientFor(chainID)
	if err != nil {
		return nil, err
	}
	addr, ok := x.executorAddress[chainID]
	if !ok {
		return nil, domain.NewError(domain.KindChain, false, "no rebalance executor address configured for chain", domain.ErrUnsupportedChain)
	}
	callData, err := executorABI.Pack(method, args...)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, false, "pack "+method+" calldata", err)
	}
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: callData}, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindChain, true, "call "+method, err)
	}
	return result, nil
}
