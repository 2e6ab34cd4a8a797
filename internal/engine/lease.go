package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AttemptLock serializes delivery attempts per record using Redis. Only the
// holder of the lease may run an attempt, which keeps an event-triggered send
// and a scheduler sweep from racing on the same record — including across
// multiple processes sharing one Redis.
type AttemptLock struct {
	redisClient *redis.Client
	logger      *slog.Logger
	ttl         time.Duration
}

// Lua script for safe release: delete the lease only if this holder's token
// still owns it, so an expired-and-reacquired lease is never stomped.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// NewAttemptLock creates a lock whose leases expire after ttl. The ttl must
// comfortably exceed the per-attempt HTTP timeout so a live attempt never
// loses its lease mid-flight.
func NewAttemptLock(redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *AttemptLock {
	return &AttemptLock{
		redisClient: redisClient,
		logger:      logger,
		ttl:         ttl,
	}
}

func leaseKey(deliveryID string) string {
	return fmt.Sprintf("lease:%s", deliveryID)
}

// Acquire tries to take the lease for a delivery record. It returns a release
// function and true on success, or false when another attempt is in flight.
// Redis errors fail closed: skipping an attempt is safe (the sweep retries),
// a double attempt is not.
func (al *AttemptLock) Acquire(ctx context.Context, deliveryID string) (func(), bool) {
	key := leaseKey(deliveryID)
	token := uuid.NewString()

	ok, err := al.redisClient.SetNX(ctx, key, token, al.ttl).Result()
	if err != nil {
		al.logger.Error("attempt lease acquire failed", "error", err, "delivery_id", deliveryID)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	release := func() {
		if _, err := releaseScript.Run(ctx, al.redisClient, []string{key}, token).Result(); err != nil {
			al.logger.Error("attempt lease release failed", "error", err, "delivery_id", deliveryID)
		}
	}

	return release, true
}
