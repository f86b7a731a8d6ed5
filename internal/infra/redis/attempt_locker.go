package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AttemptLocker is a Redis-backed app.AttemptLocker shared by every service instance.
// Notes:
//   - Locks are plain SET NX PX keys; the TTL bounds how long a crashed holder blocks others.
//   - Release is token-checked so an expired holder cannot free a lock taken over by someone else.
type AttemptLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewAttemptLocker(client *redis.Client, ttl time.Duration) *AttemptLocker {
	return &AttemptLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

// Lock polls until the key is acquired or ctx is done.
func (l *AttemptLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := l.key(key)

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// best-effort; the TTL cleans up if this fails
		_ = releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Err()
	}, nil
}

func (l *AttemptLocker) key(key string) string {
	return "quiz:lock:" + key
}
