// Package chainclients is the on-chain adapter layer: it implements the
// orchestrator's FeeEstimator/BridgeSubmitter/SourceWatcher/DestinationWatcher
// ports, plus a gas tracker satisfying upkeep.GasSource, against the router,
// vault, health-checker, and rebalance-executor contracts spec.md §6 names.
// Adapted from the teacher pack's onchain merge client
// (other_examples .../polybot__internal-adapters-onchain-merge.go.go): one
// ethclient.Client per chain, gas-price caching, and ABI-pack-then-sign-then-
// send transactions rather than generated contract bindings.
package chainclients

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/crossfluxx/rebalancer/internal/crypto"
	"github.com/crossfluxx/rebalancer/internal/domain"
)

// ClientSet lazily dials and caches one ethclient.Client per chain, keyed by
// domain.ChainId, and signs outgoing transactions with a single shared
// Signer — this control plane manages one vault across every chain.
type ClientSet struct {
	registry *domain.ChainRegistry
	signer   *crypto.Signer

	mu      sync.Mutex
	clients map[domain.ChainId]*ethclient.Client

	gasMu        sync.RWMutex
	cachedGasWei map[domain.ChainId]*big.Int
	gasUpdatedAt map[domain.ChainId]time.Time
}

// NewClientSet builds a ClientSet. Chains are dialed on first use, not
// eagerly, so a misconfigured or unreachable chain doesn't block startup
// for chains that are actually in use.
func NewClientSet(registry *domain.ChainRegistry, signer *crypto.Signer) *ClientSet {
	return &ClientSet{
		registry:     registry,
		signer:       signer,
		clients:      make(map[domain.ChainId]*ethclient.Client),
		cachedGasWei: make(map[domain.ChainId]*big.Int),
		gasUpdatedAt: make(map[domain.ChainId]time.Time),
	}
}

// clientFor returns the dialed ethclient.Client for chainID, dialing and
// caching it on first use.
func (cs *ClientSet) clientFor(chainID domain.ChainId) (*ethclient.Client, domain.ChainParams, error) {
	params, ok := cs.registry.Params(chainID)
	if !ok {
		return nil, domain.ChainParams{}, domain.NewError(domain.KindChain, false,
			fmt.Sprintf("unregistered chain id %d", chainID), domain.ErrUnsupportedChain)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if c, ok := cs.clients[chainID]; ok {
		return c, params, nil
	}

	c, err := ethclient.Dial(params.RPCURL)
	if err != nil {
		return nil, params, domain.NewError(domain.KindChain, true,
			fmt.Sprintf("dial rpc for chain %d: %v", chainID, err), err)
	}
	cs.clients[chainID] = c
	return c, params, nil
}

// gasPriceFor returns the current gas price for chainID, refreshing from
// the node every 5 minutes and falling back to the last known value on a
// transient RPC failure, mirroring the teacher pack's getGasPrice caching.
func (cs *ClientSet) gasPriceFor(ctx context.Context, chainID domain.ChainId) (*big.Int, error) {
	cs.gasMu.RLock()
	cached := cs.cachedGasWei[chainID]
	updatedAt := cs.gasUpdatedAt[chainID]
	cs.gasMu.RUnlock()

	if cached != nil && time.Since(updatedAt) < 5*time.Minute {
		return cached, nil
	}

	client, _, err := cs.clientFor(chainID)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("chainclients: suggest gas price on chain %d: %w", chainID, err)
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	cs.gasMu.Lock()
	cs.cachedGasWei[chainID] = buffered
	cs.gasUpdatedAt[chainID] = time.Now()
	cs.gasMu.Unlock()

	return buffered, nil
}
