package events

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisStream appends events to a capped Redis stream. The client is shared
// with the rest of the server and is not closed here.
type RedisStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisStream(rdb *redis.Client, stream string) *RedisStream {
	if stream == "" {
		stream = "battlebots:games"
	}
	return &RedisStream{rdb: rdb, stream: stream, maxLen: 100000}
}

func (r *RedisStream) Publish(ctx context.Context, e Event) error {
	b, err := e.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{"type": e.Type, "data": string(b)},
	}).Err()
}

func (r *RedisStream) Close() error { return nil }
