package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// StreamMessage is one entry read back from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// StreamBus is the durable, replay-capable counterpart to
// eventbus.RedisRelay's ephemeral Pub/Sub mirror: a subscriber that was
// offline when an event was published (a restarted dashboard, a standby
// rebalancer instance catching up after an outage) can still read it back
// by cursoring from its last-seen stream ID, which Pub/Sub cannot offer.
type StreamBus struct {
	rdb *redis.Client
}

// NewStreamBus creates a StreamBus backed by the given Client.
func NewStreamBus(c *Client) *StreamBus {
	return &StreamBus{rdb: c.Underlying()}
}

// Append appends payload to stream using XADD with an approximate MAXLEN of
// 10,000 entries for automatic trimming, so a quiet stream doesn't grow
// unbounded.
func (sb *StreamBus) Append(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// Read reads up to count messages from stream starting after lastID. Use
// "0" or "0-0" as lastID to read from the beginning, or "$" to read only new
// messages. It returns a nil slice (not an error) when no messages are
// available yet.
func (sb *StreamBus) Read(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1, // a zero Block would wait indefinitely for new entries
	}

	results, err := sb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, StreamMessage{ID: msg.ID, Payload: data})
		}
	}

	return messages, nil
}
