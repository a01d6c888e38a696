// Package store collects the persisted-state port implementations spec.md
// §6 names: an append-only history of Signals/Decisions/RebalanceOperations,
// in-flight CrossChainMessage/RebalanceOperation checkpoints for
// restart-resume, and each upkeep's last_rebalance_ts. The ports themselves
// are domain.HistoryStore and domain.CheckpointStore; memstore, pgstore, and
// the s3blob archiver are the concrete backends.
package store

import "github.com/crossfluxx/rebalancer/internal/domain"

// HistoryStore is domain.HistoryStore, re-exported so callers that only
// need the store subpackages don't also need to import internal/domain
// solely for this type name.
type HistoryStore = domain.HistoryStore

// CheckpointStore is domain.CheckpointStore, re-exported for the same
// reason.
type CheckpointStore = domain.CheckpointStore
