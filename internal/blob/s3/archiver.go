package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// HistoryArchiveStore is the narrow read access Archiver needs: the
// history records a cold-storage sweep should move out of the primary
// store once they age past its retention window. memstore.Store and
// pgstore.Store both implement ListBefore directly, following the Interface
// Segregation split the teacher's archiver.go used for its per-entity
// stores.
type HistoryArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.HistoryRecord, error)
}

// BlobWriter is the subset of Writer that Archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver implements the cold-storage archival step hinted at by
// spec.md's history-retention invariant: records the in-memory or Postgres
// store evicts past its capacity are uploaded as JSONL to S3 before they're
// gone for good, partitioned by year-month. Adapted from the teacher's
// ArchiveImpl, narrowed from three per-entity stores to the rebalancer's
// single HistoryRecord stream.
//
// Deletion from the primary store is the caller's responsibility, done only
// after ArchiveHistory returns successfully — this type never deletes.
type Archiver struct {
	writer BlobWriter
	store  HistoryArchiveStore
}

// NewArchiver builds an Archiver. writer is typically a *Writer, accepted
// here as the narrower BlobWriter interface so tests can substitute a fake.
func NewArchiver(writer BlobWriter, store HistoryArchiveStore) *Archiver {
	return &Archiver{writer: writer, store: store}
}

// ArchiveHistory queries every history record recorded before the cutoff,
// serializes them to JSONL, and uploads the file to
// archive/history/YYYY-MM.jsonl. Returns the number of archived records.
func (a *Archiver) ArchiveHistory(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history marshal: %w", err)
	}

	path := archivePath("history", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive history upload: %w", err)
	}

	return int64(len(records)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time: archive/history/2026-07.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
