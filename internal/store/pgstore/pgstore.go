// Package pgstore is the Postgres-backed domain.HistoryStore and
// domain.CheckpointStore, used when a Postgres DSN is configured in place of
// the in-memory default. Adapted from the teacher's
// internal/store/postgres/audit_store.go: a pgxpool.Pool, a JSONB payload
// column, and fmt.Errorf-wrapped query errors.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// Schema is the DDL the operator runs once before pointing the service at a
// Postgres DSN. Embedded here rather than via a migration tool, matching
// the teacher's lack of a migration framework in go.mod.
const Schema = `
CREATE TABLE IF NOT EXISTS history_record (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS history_record_recorded_at_idx ON history_record (recorded_at DESC);
CREATE INDEX IF NOT EXISTS history_record_kind_idx ON history_record (kind);

CREATE TABLE IF NOT EXISTS cross_chain_message (
	message_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	payload    JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS rebalance_operation (
	operation_id TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	payload      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS upkeep_checkpoint (
	upkeep_id         TEXT PRIMARY KEY,
	last_rebalance_ts TIMESTAMPTZ NOT NULL
);
`

// ClientConfig holds the connection parameters for Connect, grounded on the
// teacher's internal/store/postgres.ClientConfig shape (a raw DSN takes
// precedence over the discrete host/port/database fields when both are set).
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

func dsn(cfg ClientConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode)
}

// Connect opens a pgxpool.Pool against cfg and verifies it with a ping.
// Callers are responsible for calling pool.Close() on shutdown.
func Connect(ctx context.Context, cfg ClientConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return pool, nil
}

// Store implements domain.HistoryStore and domain.CheckpointStore over a
// pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. Call EnsureSchema before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema runs the embedded DDL, creating every table this store needs
// if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// AppendRecord inserts rec, or updates its payload if the id already
// exists — the history log is normally append-only, but a resubmitted
// decision id replaying the same operation must not produce duplicate
// rows.
func (s *Store) AppendRecord(ctx context.Context, rec domain.HistoryRecord) error {
	const query = `
		INSERT INTO history_record (id, kind, payload, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, recorded_at = EXCLUDED.recorded_at`

	_, err := s.pool.Exec(ctx, query, rec.Id, rec.Kind, rec.PayloadJSON, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("pgstore: append history record %s: %w", rec.Id, err)
	}
	return nil
}

// RecentRecords returns up to limit records, most recent first, optionally
// filtered to a single Kind. kind == "" returns every kind; limit <= 0
// returns every matching record.
func (s *Store) RecentRecords(ctx context.Context, kind string, limit int) ([]domain.HistoryRecord, error) {
	query := `SELECT id, kind, payload, recorded_at FROM history_record`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY recorded_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list recent history records: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		if err := rows.Scan(&rec.Id, &rec.Kind, &rec.PayloadJSON, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordByID returns the record with id, or domain.ErrNotFound.
func (s *Store) RecordByID(ctx context.Context, id string) (domain.HistoryRecord, error) {
	const query = `SELECT id, kind, payload, recorded_at FROM history_record WHERE id = $1`

	var rec domain.HistoryRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(&rec.Id, &rec.Kind, &rec.PayloadJSON, &rec.RecordedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.HistoryRecord{}, domain.ErrNotFound
		}
		return domain.HistoryRecord{}, fmt.Errorf("pgstore: get history record %s: %w", id, err)
	}
	return rec, nil
}

// ListBefore returns every record with recorded_at strictly before cutoff,
// oldest first. Used by the S3 cold-archive sweep (s3blob.HistoryArchiveStore).
func (s *Store) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.HistoryRecord, error) {
	const query = `SELECT id, kind, payload, recorded_at FROM history_record WHERE recorded_at < $1 ORDER BY recorded_at ASC`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list history records before %s: %w", cutoff, err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		if err := rows.Scan(&rec.Id, &rec.Kind, &rec.PayloadJSON, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveMessage upserts the checkpoint for an in-flight CrossChainMessage,
// storing the full struct as JSON alongside its state for indexable
// queries.
func (s *Store) SaveMessage(ctx context.Context, msg domain.CrossChainMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pgstore: marshal message %s: %w", msg.MessageId, err)
	}

	const query = `
		INSERT INTO cross_chain_message (message_id, state, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO UPDATE SET state = EXCLUDED.state, payload = EXCLUDED.payload`

	if _, err := s.pool.Exec(ctx, query, msg.MessageId, string(msg.State), payload); err != nil {
		return fmt.Errorf("pgstore: save message %s: %w", msg.MessageId, err)
	}
	return nil
}

// LoadMessage returns the checkpointed message with id, or domain.ErrNotFound.
func (s *Store) LoadMessage(ctx context.Context, id string) (domain.CrossChainMessage, error) {
	const query = `SELECT payload FROM cross_chain_message WHERE message_id = $1`

	var payload []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		if isNoRows(err) {
			return domain.CrossChainMessage{}, domain.ErrNotFound
		}
		return domain.CrossChainMessage{}, fmt.Errorf("pgstore: get message %s: %w", id, err)
	}

	var msg domain.CrossChainMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.CrossChainMessage{}, fmt.Errorf("pgstore: unmarshal message %s: %w", id, err)
	}
	return msg, nil
}

// OpenMessages returns every checkpointed message not in a terminal state,
// for resume-on-restart.
func (s *Store) OpenMessages(ctx context.Context) ([]domain.CrossChainMessage, error) {
	const query = `SELECT payload FROM cross_chain_message`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.CrossChainMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("pgstore: scan message: %w", err)
		}
		var msg domain.CrossChainMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal message: %w", err)
		}
		if !msg.Terminal() {
			out = append(out, msg)
		}
	}
	return out, rows.Err()
}

// SaveOperation upserts the checkpoint for a RebalanceOperation.
func (s *Store) SaveOperation(ctx context.Context, op domain.RebalanceOperation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("pgstore: marshal operation %s: %w", op.Id, err)
	}

	const query = `
		INSERT INTO rebalance_operation (operation_id, status, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (operation_id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload`

	if _, err := s.pool.Exec(ctx, query, op.Id, string(op.Status), payload); err != nil {
		return fmt.Errorf("pgstore: save operation %s: %w", op.Id, err)
	}
	return nil
}

// LoadOperation returns the checkpointed operation with id, or
// domain.ErrNotFound.
func (s *Store) LoadOperation(ctx context.Context, id string) (domain.RebalanceOperation, error) {
	const query = `SELECT payload FROM rebalance_operation WHERE operation_id = $1`

	var payload []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		if isNoRows(err) {
			return domain.RebalanceOperation{}, domain.ErrNotFound
		}
		return domain.RebalanceOperation{}, fmt.Errorf("pgstore: get operation %s: %w", id, err)
	}

	var op domain.RebalanceOperation
	if err := json.Unmarshal(payload, &op); err != nil {
		return domain.RebalanceOperation{}, fmt.Errorf("pgstore: unmarshal operation %s: %w", id, err)
	}
	return op, nil
}

// OpenOperations returns every checkpointed operation not yet Complete or
// Failed, for resume-on-restart.
func (s *Store) OpenOperations(ctx context.Context) ([]domain.RebalanceOperation, error) {
	const query = `SELECT payload FROM rebalance_operation WHERE status NOT IN ($1, $2)`

	rows, err := s.pool.Query(ctx, query, string(domain.OperationComplete), string(domain.OperationFailed))
	if err != nil {
		return nil, fmt.Errorf("pgstore: list operations: %w", err)
	}
	defer rows.Close()

	var out []domain.RebalanceOperation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("pgstore: scan operation: %w", err)
		}
		var op domain.RebalanceOperation
		if err := json.Unmarshal(payload, &op); err != nil {
			return nil, fmt.Errorf("pgstore: unmarshal operation: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// SetLastRebalanceTs upserts the checkpoint for upkeepID.
func (s *Store) SetLastRebalanceTs(ctx context.Context, upkeepID string, ts time.Time) error {
	const query = `
		INSERT INTO upkeep_checkpoint (upkeep_id, last_rebalance_ts)
		VALUES ($1, $2)
		ON CONFLICT (upkeep_id) DO UPDATE SET last_rebalance_ts = EXCLUDED.last_rebalance_ts`

	_, err := s.pool.Exec(ctx, query, upkeepID, ts)
	if err != nil {
		return fmt.Errorf("pgstore: set checkpoint for upkeep %s: %w", upkeepID, err)
	}
	return nil
}

// LastRebalanceTs returns the checkpoint for upkeepID, or false if none
// has been recorded yet.
func (s *Store) LastRebalanceTs(ctx context.Context, upkeepID string) (time.Time, bool, error) {
	const query = `SELECT last_rebalance_ts FROM upkeep_checkpoint WHERE upkeep_id = $1`

	var ts time.Time
	err := s.pool.QueryRow(ctx, query, upkeepID).Scan(&ts)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("pgstore: get checkpoint for upkeep %s: %w", upkeepID, err)
	}
	return ts, true, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
