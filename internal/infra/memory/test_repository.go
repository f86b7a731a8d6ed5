package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/domain"
)

// TestLoader fetches test snapshots from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.Test, error)
	ListTestsByCreator(ctx context.Context, creatorID string) ([]domain.Test, error)
}

// TestRepository caches test snapshots with TTL to avoid repeated DB hits.
// Creator listings are not cached; they are only used by the statistics read path.
type TestRepository struct {
	loader TestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedTest
}

type cachedTest struct {
	test      domain.Test
	expiresAt time.Time
}

func NewTestRepository(loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTest),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	if test, ok := r.cached(testID); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		if test, ok := r.cached(testID); ok {
			return test, nil
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		r.mu.Lock()
		r.cache[testID] = cachedTest{
			test:      test,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
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

// Invalidate drops a cached snapshot, e.g. after the test was republished.
func (r *TestRepository) Invalidate(testID string) {
	r.mu.Lock()
	delete(r.cache, testID)
	r.mu.Unlock()
}

func (r *TestRepository) cached(testID string) (domain.Test, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[testID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Test{}, false
	}
	return entry.test, true
}

func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticTestLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticTestLoader struct {
	tests map[string]domain.Test
}

func NewStaticTestLoader(tests map[string]domain.Test) *StaticTestLoader {
	return &StaticTestLoader{tests: tests}
}

func (l *StaticTestLoader) LoadTest(_ context.Context, testID string) (domain.Test, error) {
	if test, ok := l.tests[testID]; ok {
		return test, nil
	}
	return domain.Test{}, domain.ErrTestNotFound
}

func (l *StaticTestLoader) ListTestsByCreator(_ context.Context, creatorID string) ([]domain.Test, error) {
	var out []domain.Test
	for _, test := range l.tests {
		if test.CreatorID == creatorID {
			out = append(out, test)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
