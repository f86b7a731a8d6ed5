package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/domain"
)

// TestLoader fetches test snapshots from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.Test, error)
	ListTestsByCreator(ctx context.Context, creatorID string) ([]domain.Test, error)
}

// TestRepository caches test snapshots in Redis and falls back to a loader on cache miss.
// Snapshots are stored as JSON: SET test:{testID}:snapshot {json} EX ttl
type TestRepository struct {
	client *redis.Client
	loader TestLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewTestRepository(client *redis.Client, loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	if test, ok := r.fromCache(ctx, testID); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if test, ok := r.fromCache(ctx, testID); ok {
			return test, nil
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		// Cache writes are best-effort; the loader result is authoritative.
		if data, err := json.Marshal(test); err == nil {
			_ = r.client.Set(ctx, r.key(testID), data, r.ttlWithJitter()).Err()
		}
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

func (r *TestRepository) ListTestsByCreator(ctx context.Context, creatorID string) ([]domain.Test, error) {
	return r.loader.ListTestsByCreator(ctx, creatorID)
}

// Invalidate removes a cached snapshot.
func (r *TestRepository) Invalidate(ctx context.Context, testID string) error {
	return r.client.Del(ctx, r.key(testID)).Err()
}

func (r *TestRepository) fromCache(ctx context.Context, testID string) (domain.Test, bool) {
	data, err := r.client.Get(ctx, r.key(testID)).Bytes()
	if err != nil {
		// redis.Nil is a plain miss; other errors degrade to the loader.
		return domain.Test{}, false
	}
	var test domain.Test
	if err := json.Unmarshal(data, &test); err != nil {
		return domain.Test{}, false
	}
	return test, true
}

func (r *TestRepository) key(testID string) string {
	return "test:" + testID + ":snapshot"
}

func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
