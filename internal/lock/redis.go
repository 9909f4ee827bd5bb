package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const retryInterval = 50 * time.Millisecond

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares game locks across server instances with SET NX PX.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, prefix: "battlebots:lock:", ttl: ttl, wait: wait, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	key = l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() { once.Do(func() { l.unlock(key, token) }) }, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
		}
	}
}

func (l *RedisLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlockScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		l.logger.Error("Failed to release redis lock", zap.String("key", key), zap.Error(err))
	}
}
