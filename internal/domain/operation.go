package domain

import "time"

// OperationStatus tracks a RebalanceOperation — the execution of one
// Decision's steps as a group — across its constituent messages.
type OperationStatus string

const (
	OperationPending  OperationStatus = "pending"
	OperationRunning  OperationStatus = "running"
	OperationComplete OperationStatus = "complete"
	OperationFailed   OperationStatus = "failed"
	OperationPartial  OperationStatus = "partial"
)

// RebalanceOperation is an ordered list of CrossChainMessage ids plus the
// Decision snapshot that produced them and the aggregated status across
// those messages (spec.md §3). User and Steps are carried redundantly with
// the Decision snapshot so the orchestrator can serialize overlapping
// operations by (user, source_pool) without re-deriving them (spec.md §9).
type RebalanceOperation struct {
	Id         string
	Decision   Decision
	User       string
	Steps      []ReallocationStep
	MessageIds []string
	Status     OperationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SourcePools returns the distinct source pools the operation's steps draw
// from — the serialization key (user, source_pool) is derived from these.
func (o RebalanceOperation) SourcePools() []PoolKey {
	seen := make(map[PoolKey]bool, len(o.Steps))
	out := make([]PoolKey, 0, len(o.Steps))
	for _, s := range o.Steps {
		key := s.SourcePool()
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// HistoryRecord is an append-only audit entry: one emitted Signal, accepted
// Decision, or completed RebalanceOperation, persisted for later review and
// the `explain` CLI subcommand.
type HistoryRecord struct {
	Id        string
	Kind      string
	PayloadJSON []byte
	RecordedAt time.Time
}
