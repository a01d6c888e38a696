package domain

import (
	"context"
	"time"
)

// HistoryStore persists the append-only audit trail of signals, decisions,
// and operations. Implementations: internal/store/memstore (bounded ring,
// default) and internal/store/pgstore (durable, pgx/v5-backed).
type HistoryStore interface {
	AppendRecord(ctx context.Context, rec HistoryRecord) error
	RecentRecords(ctx context.Context, kind string, limit int) ([]HistoryRecord, error)
	RecordByID(ctx context.Context, id string) (HistoryRecord, error)
}

// CheckpointStore persists the orchestrator's CrossChainMessage and
// RebalanceOperation state so a restart can resume in-flight work rather
// than re-deciding or double-submitting it, plus the Automation Engine's
// per-upkeep last_rebalance_ts so a time_interval condition doesn't
// immediately re-fire on startup.
type CheckpointStore interface {
	SaveMessage(ctx context.Context, msg CrossChainMessage) error
	LoadMessage(ctx context.Context, id string) (CrossChainMessage, error)
	OpenMessages(ctx context.Context) ([]CrossChainMessage, error)

	SaveOperation(ctx context.Context, op RebalanceOperation) error
	LoadOperation(ctx context.Context, id string) (RebalanceOperation, error)
	OpenOperations(ctx context.Context) ([]RebalanceOperation, error)

	SetLastRebalanceTs(ctx context.Context, upkeepID string, ts time.Time) error
	LastRebalanceTs(ctx context.Context, upkeepID string) (time.Time, bool, error)
}

// MetricsSink receives lightweight counters/gauges the ambient stack emits
// throughout the pipeline (feed lag, signal counts, consensus outcomes,
// upkeep triggers). The default sink is metrics.Memory, whose JSON snapshot
// internal/server serves at /metrics.
type MetricsSink interface {
	IncCounter(name string, delta int64, tags map[string]string)
	SetGauge(name string, value float64, tags map[string]string)
	ObserveLatency(name string, d time.Duration, tags map[string]string)
}
