package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

// QuestionBank caches question pools in Redis (one JSON list per filter) and
// falls back to a loader on cache miss.
// Pools are stored as: SET trivia:questions:{category}:{difficulty} [...]
type QuestionBank struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Sample draws count distinct questions matching filter at random.
func (b *QuestionBank) Sample(ctx context.Context, filter domain.QuestionFilter, count int) ([]domain.Question, error) {
	pool, err := b.pool(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(pool) < count {
		return nil, domain.ErrNotEnoughQuestions
	}
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return memory.SampleQuestions(b.rnd, pool, count), nil
}

// LoadQuestions returns the pool for filter from the Redis cache or the loader.
func (b *QuestionBank) LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	pool, err := b.pool(ctx, filter)
	if err != nil {
		return nil, err
	}
	return memory.CopyQuestions(pool), nil
}

func (b *QuestionBank) pool(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	key := b.poolKey(filter)
	if pool, ok := b.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := b.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := b.loader.LoadQuestions(ctx, filter)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(pool); err == nil {
			// best effort, a failed write only costs another load
			_ = b.client.Set(ctx, key, data, b.ttlWithJitter()).Err()
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(raw, &pool); err != nil || len(pool) == 0 {
		return nil, false
	}
	return pool, true
}

func (b *QuestionBank) poolKey(filter domain.QuestionFilter) string {
	return "trivia:questions:" + memory.PoolKey(filter)
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
