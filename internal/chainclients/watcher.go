package chainclients

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// Watcher implements orchestrator.SourceWatcher and
// orchestrator.DestinationWatcher by polling transaction receipts: the
// confirmation depth is the current block height minus the receipt's block
// number, and delivery is observed from the status of the transaction
// receipt found under the given hash on the destination chain; router logs
// are not scanned. Adapted from the teacher
// pack's waitForReceipt polling loop in the onchain merge client.
type Watcher struct {
	clients *ClientSet
}

// NewWatcher builds a Watcher sharing clients' dialed connections.
func NewWatcher(clients *ClientSet) *Watcher {
	return &Watcher{clients: clients}
}

// SourceStatus reports how many confirmations bridgeMessageID's submitting
// transaction has on chainID, and whether it reverted.
func (w *Watcher) SourceStatus(ctx context.Context, chainID domain.ChainId, bridgeMessageID string) (uint64, bool, error) {
	client, _, err := w.clients.clientFor(chainID)
	if err != nil {
		return 0, false, err
	}

	txHash := common.HexToHash(bridgeMessageID)
	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		// Not yet mined is the common case while polling; treat as zero
		// confirmations rather than an error.
		if strings.Contains(err.Error(), "not found") {
			return 0, false, nil
		}
		return 0, false, domain.NewError(domain.KindChain, true, "fetch source receipt", err)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, false, domain.NewError(domain.KindChain, true, "fetch head block number", err)
	}

	var confirmations uint64
	if head >= receipt.BlockNumber.Uint64() {
		confirmations = head - receipt.BlockNumber.Uint64() + 1
	}

	return confirmations, !isSuccessful(receipt.Status), nil
}

// DestinationStatus reports whether the bridge's ccipReceive delivery
// transaction for bridgeMessageID has landed on chainID, and its outcome.
// The bridgeMessageID passed here is the destination-side delivery
// transaction hash, which the bridge relayer network assigns independently
// of the source submission hash; a production client would instead index
// ccipReceive logs keyed by the bridge's own cross-chain message id, but
// that requires the full event ABI topic layout the modeled router doesn't
// expose beyond what abi.go declares.
func (w *Watcher) DestinationStatus(ctx context.Context, chainID domain.ChainId, bridgeMessageID string) (bool, bool, string, error) {
	client, _, err := w.clients.clientFor(chainID)
	if err != nil {
		return false, false, "", err
	}

	txHash := common.HexToHash(bridgeMessageID)
	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, false, "", nil
		}
		return false, false, "", domain.NewError(domain.KindChain, true, "fetch destination receipt", err)
	}

	if !isSuccessful(receipt.Status) {
		return true, true, receipt.TxHash.Hex(), nil
	}
	return true, false, receipt.TxHash.Hex(), nil
}

func isSuccessful(status uint64) bool { return status == 1 }
