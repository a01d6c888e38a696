package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

func rec(id string, t time.Time) domain.HistoryRecord {
	return domain.HistoryRecord{Id: id, Kind: "decision", RecordedAt: t}
}

func TestAppendAndGet(t *testing.T) {
	s := New(10)
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, rec("a", time.Now())))

	got, err := s.RecordByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Id)
}

func TestRecordByIDUnknownReturnsNotFound(t *testing.T) {
	s := New(10)
	_, err := s.RecordByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRecentOrdersMostRecentFirst(t *testing.T) {
	s := New(10)
	ctx := context.Background()
	base := time.Now()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.AppendRecord(ctx, rec(id, base)))
	}

	recent, err := s.RecentRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{recent[0].Id, recent[1].Id, recent[2].Id})
}

func TestRecentRespectsLimit(t *testing.T) {
	s := New(10)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.AppendRecord(ctx, rec(id, time.Now())))
	}

	recent, err := s.RecentRecords(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRecentFiltersByKind(t *testing.T) {
	s := New(10)
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, domain.HistoryRecord{Id: "a", Kind: "signal", RecordedAt: time.Now()}))
	require.NoError(t, s.AppendRecord(ctx, domain.HistoryRecord{Id: "b", Kind: "decision", RecordedAt: time.Now()}))

	recent, err := s.RecentRecords(ctx, "decision", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].Id)
}

func TestCapacityEvictsOldest(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, rec("a", time.Now())))
	require.NoError(t, s.AppendRecord(ctx, rec("b", time.Now())))
	require.NoError(t, s.AppendRecord(ctx, rec("c", time.Now())))

	_, err := s.RecordByID(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound, "oldest record should have been evicted")

	_, err = s.RecordByID(ctx, "c")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), s.Evicted())

	recent, err := s.RecentRecords(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := New(10)
	ctx := context.Background()

	_, ok, err := s.LastRebalanceTs(ctx, "upkeep-1")
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Now()
	require.NoError(t, s.SetLastRebalanceTs(ctx, "upkeep-1", now))

	got, ok, err := s.LastRebalanceTs(ctx, "upkeep-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, now, got, time.Millisecond)
}

func TestDefaultCapacityUsedWhenZero(t *testing.T) {
	s := New(0)
	assert.Equal(t, DefaultCapacity, s.capacity)
}

func TestMessageCheckpointRoundTrip(t *testing.T) {
	s := New(10)
	ctx := context.Background()

	_, err := s.LoadMessage(ctx, "msg-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	msg := domain.CrossChainMessage{MessageId: "msg-1", State: domain.MessageCreated}
	require.NoError(t, s.SaveMessage(ctx, msg))

	got, err := s.LoadMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MessageCreated, got.State)
}

func TestOpenMessagesExcludesTerminal(t *testing.T) {
	s := New(10)
	ctx := context.Background()
	require.NoError(t, s.SaveMessage(ctx, domain.CrossChainMessage{MessageId: "open", State: domain.MessageSubmitted}))
	require.NoError(t, s.SaveMessage(ctx, domain.CrossChainMessage{MessageId: "done", State: domain.MessageFinalized}))

	open, err := s.OpenMessages(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "open", open[0].MessageId)
}

func TestOperationCheckpointRoundTrip(t *testing.T) {
	s := New(10)
	ctx := context.Background()

	_, err := s.LoadOperation(ctx, "op-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	op := domain.RebalanceOperation{Id: "op-1", Status: domain.OperationRunning}
	require.NoError(t, s.SaveOperation(ctx, op))

	got, err := s.LoadOperation(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OperationRunning, got.Status)
}

func TestOpenOperationsExcludesCompleteAndFailed(t *testing.T) {
	s := New(10)
	ctx := context.Background()
	require.NoError(t, s.SaveOperation(ctx, domain.RebalanceOperation{Id: "running", Status: domain.OperationRunning}))
	require.NoError(t, s.SaveOperation(ctx, domain.RebalanceOperation{Id: "done", Status: domain.OperationComplete}))
	require.NoError(t, s.SaveOperation(ctx, domain.RebalanceOperation{Id: "failed", Status: domain.OperationFailed}))

	open, err := s.OpenOperations(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "running", open[0].Id)
}
