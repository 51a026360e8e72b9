package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for releasing a lock only if this holder still owns it.
// Guards against deleting a lock that expired and was re-acquired by
// another sweeper between our work finishing and the release call.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker provides distributed single-flight locks so that periodic jobs
// (DLQ sweep, retention sweep) never run concurrently across scheduler
// ticks or instances.
type Locker struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewLocker(redisClient *redis.Client, logger *slog.Logger) *Locker {
	return &Locker{
		redisClient: redisClient,
		logger:      logger,
	}
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// Acquire attempts to take the named lock for at most ttl. On success it
// returns true and a release function; on contention it returns false.
// Redis being unreachable counts as contention — skipping a tick is safe,
// double-running a sweep is not.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, func()) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		l.logger.Error("failed to generate lock token", "error", err)
		return false, nil
	}
	value := hex.EncodeToString(token)
	key := lockKey(name)

	ok, err := l.redisClient.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		l.logger.Error("failed to acquire lock", "lock", name, "error", err)
		return false, nil
	}
	if !ok {
		return false, nil
	}

	release := func() {
		if err := releaseScript.Run(ctx, l.redisClient, []string{key}, value).Err(); err != nil && err != redis.Nil {
			l.logger.Error("failed to release lock", "lock", name, "error", err)
		}
	}
	return true, release
}
