// Package memstore is the in-process domain.HistoryStore/domain.CheckpointStore
// used when no Postgres DSN is configured: a fixed-capacity ring buffer over
// domain.HistoryRecord, oldest-evicts-first, plus plain maps for in-flight
// message/operation checkpoints and upkeep last-fire times. Adapted from the
// eventbus package's bounded, mutex-guarded ring idiom, narrowed from a
// pub/sub channel to an append-and-read buffer.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// DefaultCapacity is spec.md §3's default HistoryRecord retention before
// older records are evicted (and, when the s3blob archiver is wired in, archived).
const DefaultCapacity = 500

// Store implements domain.HistoryStore and domain.CheckpointStore entirely
// in memory. The zero value is not usable; construct with New.
type Store struct {
	capacity int

	mu      sync.RWMutex
	records []domain.HistoryRecord
	byID    map[string]int // id -> index into records
	evicted int64

	messages    map[string]domain.CrossChainMessage
	operations  map[string]domain.RebalanceOperation
	checkpoints map[string]time.Time
}

// New builds a Store. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity:    capacity,
		byID:        make(map[string]int),
		messages:    make(map[string]domain.CrossChainMessage),
		operations:  make(map[string]domain.RebalanceOperation),
		checkpoints: make(map[string]time.Time),
	}
}

// AppendRecord adds rec, evicting the oldest record once capacity is
// exceeded.
func (s *Store) AppendRecord(ctx context.Context, rec domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if len(s.records) > s.capacity {
		evictedID := s.records[0].Id
		s.records = s.records[1:]
		delete(s.byID, evictedID)
		s.evicted++
		for id, idx := range s.byID {
			s.byID[id] = idx - 1
		}
	}
	s.byID[rec.Id] = len(s.records) - 1
	return nil
}

// RecentRecords returns up to limit records, most recent first, optionally
// filtered to a single Kind. kind == "" returns every kind; limit <= 0
// returns every matching record.
func (s *Store) RecentRecords(ctx context.Context, kind string, limit int) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.HistoryRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if kind != "" && rec.Kind != kind {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RecordByID returns the record with id, or domain.ErrNotFound if it was
// never recorded or has since been evicted.
func (s *Store) RecordByID(ctx context.Context, id string) (domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	return s.records[idx], nil
}

// ListBefore returns every retained record with RecordedAt strictly before
// cutoff, oldest first. Used by the S3 cold-archive sweep to pick up
// records before they age out of the ring (s3blob.HistoryArchiveStore).
func (s *Store) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.HistoryRecord
	for _, rec := range s.records {
		if rec.RecordedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Evicted returns the number of records evicted past capacity since
// startup, for the health report (spec.md §4.9 bounded-memory property).
func (s *Store) Evicted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}

// SaveMessage upserts the checkpoint for an in-flight CrossChainMessage.
func (s *Store) SaveMessage(ctx context.Context, msg domain.CrossChainMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.MessageId] = msg
	return nil
}

// LoadMessage returns the checkpointed message with id, or domain.ErrNotFound.
func (s *Store) LoadMessage(ctx context.Context, id string) (domain.CrossChainMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.CrossChainMessage{}, domain.ErrNotFound
	}
	return msg, nil
}

// OpenMessages returns every checkpointed message that has not reached a
// terminal state, for resume-on-restart.
func (s *Store) OpenMessages(ctx context.Context) ([]domain.CrossChainMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CrossChainMessage
	for _, msg := range s.messages {
		if !msg.Terminal() {
			out = append(out, msg)
		}
	}
	return out, nil
}

// SaveOperation upserts the checkpoint for a RebalanceOperation.
func (s *Store) SaveOperation(ctx context.Context, op domain.RebalanceOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[op.Id] = op
	return nil
}

// LoadOperation returns the checkpointed operation with id, or
// domain.ErrNotFound.
func (s *Store) LoadOperation(ctx context.Context, id string) (domain.RebalanceOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operations[id]
	if !ok {
		return domain.RebalanceOperation{}, domain.ErrNotFound
	}
	return op, nil
}

// OpenOperations returns every checkpointed operation that has not reached
// Complete or Failed, for resume-on-restart.
func (s *Store) OpenOperations(ctx context.Context) ([]domain.RebalanceOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RebalanceOperation
	for _, op := range s.operations {
		if op.Status != domain.OperationComplete && op.Status != domain.OperationFailed {
			out = append(out, op)
		}
	}
	return out, nil
}

// SetLastRebalanceTs records the last time upkeepID fired.
func (s *Store) SetLastRebalanceTs(ctx context.Context, upkeepID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[upkeepID] = ts
	return nil
}

// LastRebalanceTs returns the last recorded fire time for upkeepID.
func (s *Store) LastRebalanceTs(ctx context.Context, upkeepID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.checkpoints[upkeepID]
	return ts, ok, nil
}
