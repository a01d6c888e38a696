package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/redis/go-redis/v9"
)

const priceTickTTL = 2 * time.Minute

// PriceCache is the optional distributed counterpart to the feed's
// in-process last-tick map: it lets a second rebalancer instance, or a
// read-only dashboard, observe the latest PriceTick per pair without
// running its own oracle polling loop.
//
// Key schema:
//
//	price:{pair} - hash with field "data" containing JSON-encoded PriceTick
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(pair string) string { return "price:" + pair }

// Set stores the latest PriceTick for pair with a short TTL — stale entries
// should expire rather than be served as current, matching PriceTick.Stale's
// own staleness window.
func (pc *PriceCache) Set(ctx context.Context, tick domain.PriceTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("redis: marshal price tick %s: %w", tick.Pair, err)
	}

	key := priceKey(tick.Pair)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, priceTickTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price tick %s: %w", tick.Pair, err)
	}
	return nil
}

// Get retrieves the latest PriceTick for pair. It returns domain.ErrNotFound
// when no tick has been cached for pair, or the cached entry has expired.
func (pc *PriceCache) Get(ctx context.Context, pair string) (domain.PriceTick, error) {
	data, err := pc.rdb.HGet(ctx, priceKey(pair), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PriceTick{}, domain.ErrNotFound
		}
		return domain.PriceTick{}, fmt.Errorf("redis: get price tick %s: %w", pair, err)
	}

	var tick domain.PriceTick
	if err := json.Unmarshal(data, &tick); err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: unmarshal price tick %s: %w", pair, err)
	}
	return tick, nil
}

// GetMany retrieves the latest PriceTick for each of pairs in one round
// trip. Pairs with no cached tick (missing or expired) are silently omitted
// from the result map, matching the teacher's partial-hit batch lookup.
func (pc *PriceCache) GetMany(ctx context.Context, pairs []string) (map[string]domain.PriceTick, error) {
	if len(pairs) == 0 {
		return map[string]domain.PriceTick{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(pairs))
	for _, pair := range pairs {
		cmds[pair] = pipe.HGet(ctx, priceKey(pair), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get price ticks pipeline: %w", err)
	}

	result := make(map[string]domain.PriceTick, len(pairs))
	for pair, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var tick domain.PriceTick
		if err := json.Unmarshal(data, &tick); err != nil {
			continue
		}
		result[pair] = tick
	}
	return result, nil
}
