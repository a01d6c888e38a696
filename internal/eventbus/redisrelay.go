package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRelay mirrors a local Bus topic onto a Redis Pub/Sub channel so a
// second process (e.g. a read-only dashboard, or a second rebalancer
// instance in standby) can observe the same event stream. It is optional;
// the Bus is fully functional without it.
type RedisRelay struct {
	rdb   *redis.Client
	local *Bus
}

// NewRedisRelay builds a relay over an already-connected redis.Client.
func NewRedisRelay(rdb *redis.Client, local *Bus) *RedisRelay {
	return &RedisRelay{rdb: rdb, local: local}
}

// Forward subscribes to topic on the local Bus and publishes every event,
// JSON-encoded, to the same-named Redis channel until ctx is cancelled.
func (r *RedisRelay) Forward(ctx context.Context, topic string) error {
	ch := r.local.Subscribe(ctx, topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := r.rdb.Publish(ctx, topic, payload).Err(); err != nil {
				return fmt.Errorf("eventbus: redis relay publish %s: %w", topic, err)
			}
		}
	}
}
