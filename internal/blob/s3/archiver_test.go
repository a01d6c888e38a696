package s3blob

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

type fakeArchiveStore struct {
	records []domain.HistoryRecord
	err     error
}

func (f *fakeArchiveStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.HistoryRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.HistoryRecord
	for _, r := range f.records {
		if r.RecordedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeWriter struct {
	path        string
	contentType string
	body        []byte
	putCalled   bool
}

func (f *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	f.putCalled = true
	f.path = path
	f.contentType = contentType
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.body = body
	return nil
}

func TestArchiveHistorySkipsUploadWhenNoRecords(t *testing.T) {
	store := &fakeArchiveStore{}
	writer := &fakeWriter{}
	a := NewArchiver(writer, store)

	n, err := a.ArchiveHistory(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.False(t, writer.putCalled)
}

func TestArchiveHistoryUploadsJSONL(t *testing.T) {
	cutoff := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(48 * time.Hour)

	store := &fakeArchiveStore{records: []domain.HistoryRecord{
		{Id: "a", Kind: "decision", RecordedAt: old},
		{Id: "b", Kind: "decision", RecordedAt: recent},
	}}
	writer := &fakeWriter{}
	a := NewArchiver(writer, store)

	n, err := a.ArchiveHistory(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.True(t, writer.putCalled)
	assert.Equal(t, "archive/history/2026-07.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.Equal(t, 1, bytes.Count(writer.body, []byte("\n")))
	assert.Contains(t, string(writer.body), `"Id":"a"`)
	assert.NotContains(t, string(writer.body), `"Id":"b"`)
}

func TestArchiveHistoryPropagatesStoreError(t *testing.T) {
	store := &fakeArchiveStore{err: assert.AnError}
	writer := &fakeWriter{}
	a := NewArchiver(writer, store)

	_, err := a.ArchiveHistory(context.Background(), time.Now())
	assert.Error(t, err)
	assert.False(t, writer.putCalled)
}
