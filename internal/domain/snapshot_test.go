package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketSnapshotCanonicalEncodeIsOrderIndependent(t *testing.T) {
	takenAt := time.Unix(1_700_000_000, 0).UTC()

	poolA := PoolKey{ChainId: 1, Protocol: ProtocolAave, PoolAddress: "0xAAA"}
	poolB := PoolKey{ChainId: 42161, Protocol: ProtocolCompound, PoolAddress: "0xBBB"}

	pools1 := map[PoolKey]PoolSnapshot{
		poolA: {Key: poolA, AprBps: 350, TvlSmallest: NewBigInt(1_000_000), UtilizationBps: 8000, ObservedAt: takenAt},
		poolB: {Key: poolB, AprBps: 420, TvlSmallest: NewBigInt(2_000_000), UtilizationBps: 6000, ObservedAt: takenAt},
	}
	prices1 := map[string]PriceTick{
		"ETH/USD": {Pair: "ETH/USD", PriceE18: NewBigInt(3_000), ConfidencePpm: 990_000, Source: "chainlink", ObservedAt: takenAt},
	}

	s1 := NewMarketSnapshot(pools1, prices1, takenAt)
	h1, err := s1.CanonicalHash()
	require.NoError(t, err)

	// Build the same logical content via a different map insertion order.
	pools2 := map[PoolKey]PoolSnapshot{
		poolB: pools1[poolB],
		poolA: pools1[poolA],
	}
	s2 := NewMarketSnapshot(pools2, prices1, takenAt)
	h2, err := s2.CanonicalHash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "canonical hash must not depend on map iteration order")
}

func TestMarketSnapshotCanonicalEncodeDiffersOnContentChange(t *testing.T) {
	takenAt := time.Unix(1_700_000_000, 0).UTC()
	pool := PoolKey{ChainId: 1, Protocol: ProtocolAave, PoolAddress: "0xAAA"}

	s1 := NewMarketSnapshot(map[PoolKey]PoolSnapshot{
		pool: {Key: pool, AprBps: 350, TvlSmallest: NewBigInt(1_000_000), UtilizationBps: 8000, ObservedAt: takenAt},
	}, nil, takenAt)
	s2 := NewMarketSnapshot(map[PoolKey]PoolSnapshot{
		pool: {Key: pool, AprBps: 351, TvlSmallest: NewBigInt(1_000_000), UtilizationBps: 8000, ObservedAt: takenAt},
	}, nil, takenAt)

	h1, err := s1.CanonicalHash()
	require.NoError(t, err)
	h2, err := s2.CanonicalHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestMarketSnapshotCopyOnPublish(t *testing.T) {
	pool := PoolKey{ChainId: 1, Protocol: ProtocolAave, PoolAddress: "0xAAA"}
	pools := map[PoolKey]PoolSnapshot{pool: {Key: pool, UtilizationBps: 100}}

	snap := NewMarketSnapshot(pools, nil, time.Now())
	pools[pool] = PoolSnapshot{Key: pool, UtilizationBps: 9999}

	got, ok := snap.Pool(pool)
	require.True(t, ok)
	assert.Equal(t, int32(100), got.UtilizationBps, "mutating the caller's map must not affect the published snapshot")
}
