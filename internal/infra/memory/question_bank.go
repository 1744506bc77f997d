package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
)

// QuestionLoader fetches the question pool for a filter from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
}

// QuestionBank caches question pools with TTL to avoid repeated DB hits and
// samples sessions from them.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
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
	return SampleQuestions(b.rnd, pool, count), nil
}

// LoadQuestions returns a copy of the cached pool for filter, so the bank
// doubles as a cached QuestionLoader.
func (b *QuestionBank) LoadQuestions(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	pool, err := b.pool(ctx, filter)
	if err != nil {
		return nil, err
	}
	return CopyQuestions(pool), nil
}

func (b *QuestionBank) pool(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	key := PoolKey(filter)
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[key]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.questions, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[key]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.questions, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestions(ctx, filter)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[key] = cachedPool{
			questions: questions,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// PoolKey identifies the cached pool of a filter.
func PoolKey(filter domain.QuestionFilter) string {
	category := filter.Category
	if category == "" {
		category = domain.GeneralPack
	}
	difficulty := string(filter.Difficulty)
	if difficulty == "" {
		difficulty = "any"
	}
	return category + ":" + difficulty
}

// SampleQuestions returns count questions of pool in random order without
// touching pool.
func SampleQuestions(rnd *rand.Rand, pool []domain.Question, count int) []domain.Question {
	idx := rnd.Perm(len(pool))[:count]
	out := make([]domain.Question, count)
	for i, j := range idx {
		q := pool[j]
		q.Tags = append([]string(nil), q.Tags...)
		out[i] = q
	}
	return out
}

// CopyQuestions clones pool, tags included, keeping its order.
func CopyQuestions(pool []domain.Question) []domain.Question {
	out := make([]domain.Question, len(pool))
	for i, q := range pool {
		q.Tags = append([]string(nil), q.Tags...)
		out[i] = q
	}
	return out
}

// Matches reports whether q passes filter.
func Matches(q domain.Question, filter domain.QuestionFilter) bool {
	if filter.Category != "" && q.Category != filter.Category {
		return false
	}
	if filter.Difficulty != "" && q.Difficulty != filter.Difficulty {
		return false
	}
	return true
}

// StaticQuestionLoader is a loader backed by a fixed slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(l.questions))
	for _, q := range l.questions {
		if Matches(q, filter) {
			out = append(out, q)
		}
	}
	return out, nil
}
