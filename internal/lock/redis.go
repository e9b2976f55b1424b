package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/postflow/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "postflow:lock:"

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// NewRedisClient parses a redis:// URI and wires the logging hook.
func NewRedisClient(ctx context.Context, uri string) (*redis.Client, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	rdb.AddHook(logger.NewRedisHook())

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	slog.Info("Redis initialized", "addr", opts.Addr)
	return rdb, nil
}

type redisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker returns a Locker shared by every process pointing at rdb.
// Leases expire after ttl so a crashed holder cannot block a post forever.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{rdb: rdb, ttl: ttl}
}

func (l *redisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, l.rdb, []string{keyPrefix + key}, token).Err(); err != nil {
				slog.Warn("release lock", "key", key, "err", err)
			}
		})
	}, true, nil
}
