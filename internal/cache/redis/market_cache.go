package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/redis/go-redis/v9"
)

const poolSnapshotTTL = 5 * time.Minute

// PoolCache is the optional distributed counterpart to the aggregator's
// in-process MarketSnapshot: it lets a read-only consumer (a dashboard, a
// second rebalancer instance in standby) look up a single pool's latest
// observation without holding the whole snapshot in memory, adapted from
// the teacher's Market+token-index read-through idiom (pool key plus a
// bare-address shorthand index, mirroring the teacher's market+token-ID
// index pair).
//
// Key schema:
//
//	pool:{chainId}:{protocol}:{address} - hash with field "data" (JSON)
//	pool:addr:{address}                 - string value of the pool key
type PoolCache struct {
	rdb *redis.Client
}

// NewPoolCache creates a PoolCache backed by the given Client.
func NewPoolCache(c *Client) *PoolCache {
	return &PoolCache{rdb: c.Underlying()}
}

func poolKeyString(k domain.PoolKey) string {
	return fmt.Sprintf("pool:%s:%s:%s", strconv.FormatInt(int64(k.ChainId), 10), k.Protocol, k.PoolAddress)
}

func poolAddressIndexKey(address string) string { return "pool:addr:" + address }

// Set stores a PoolSnapshot with a 5-minute TTL and indexes it by bare
// pool address for address-only lookups.
func (pc *PoolCache) Set(ctx context.Context, snap domain.PoolSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal pool snapshot %s: %w", snap.Key.PoolAddress, err)
	}

	key := poolKeyString(snap.Key)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, poolSnapshotTTL)
	if snap.Key.PoolAddress != "" {
		pipe.Set(ctx, poolAddressIndexKey(snap.Key.PoolAddress), key, poolSnapshotTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set pool snapshot %s: %w", snap.Key.PoolAddress, err)
	}
	return nil
}

// Get retrieves a PoolSnapshot by its full key. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PoolCache) Get(ctx context.Context, k domain.PoolKey) (domain.PoolSnapshot, error) {
	data, err := pc.rdb.HGet(ctx, poolKeyString(k), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolSnapshot{}, domain.ErrNotFound
		}
		return domain.PoolSnapshot{}, fmt.Errorf("redis: get pool snapshot %s: %w", k.PoolAddress, err)
	}

	var snap domain.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("redis: unmarshal pool snapshot %s: %w", k.PoolAddress, err)
	}
	return snap, nil
}

// GetByAddress looks up a PoolSnapshot by its bare on-chain address, without
// needing the chain/protocol that round out the full PoolKey.
func (pc *PoolCache) GetByAddress(ctx context.Context, address string) (domain.PoolSnapshot, error) {
	key, err := pc.rdb.Get(ctx, poolAddressIndexKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolSnapshot{}, domain.ErrNotFound
		}
		return domain.PoolSnapshot{}, fmt.Errorf("redis: get pool by address %s: %w", address, err)
	}

	data, err := pc.rdb.HGet(ctx, key, "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PoolSnapshot{}, domain.ErrNotFound
		}
		return domain.PoolSnapshot{}, fmt.Errorf("redis: get pool by address %s: %w", address, err)
	}

	var snap domain.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("redis: unmarshal pool by address %s: %w", address, err)
	}
	return snap, nil
}

// Invalidate removes a PoolSnapshot and its address index entry from the
// cache, used when a pool is delisted or a reallocation moves funds away
// from it permanently.
func (pc *PoolCache) Invalidate(ctx context.Context, k domain.PoolKey) error {
	pipe := pc.rdb.TxPipeline()
	pipe.Del(ctx, poolKeyString(k))
	if k.PoolAddress != "" {
		pipe.Del(ctx, poolAddressIndexKey(k.PoolAddress))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate pool snapshot %s: %w", k.PoolAddress, err)
	}
	return nil
}
