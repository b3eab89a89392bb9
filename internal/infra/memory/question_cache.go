package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/domain"
)

// QuestionCache caches question lists with TTL to avoid repeated DB hits.
type QuestionCache struct {
	loader app.QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestions
	gens  map[string]uint64
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader app.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
		gens:   make(map[string]uint64),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, setID string) ([]domain.Question, error) {
	if qs, ok := c.lookup(setID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		if qs, ok := c.lookup(setID); ok {
			return qs, nil
		}

		c.mu.RLock()
		gen := c.gens[setID]
		c.mu.RUnlock()

		qs, err := c.loader.LoadQuestions(ctx, setID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// a fill that raced an invalidation may hold the old list
		if c.ttl > 0 && c.gens[setID] == gen {
			c.cache[setID] = cachedQuestions{
				questions: qs,
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]domain.Question)), nil
}

// Invalidate drops the cached list of setID. Loads already in flight are
// not stored, and later callers do not join them.
func (c *QuestionCache) Invalidate(_ context.Context, setID string) error {
	c.mu.Lock()
	delete(c.cache, setID)
	c.gens[setID]++
	c.mu.Unlock()
	c.sf.Forget(setID)
	return nil
}

func (c *QuestionCache) lookup(setID string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[setID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return clone(entry.questions), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func clone(qs []domain.Question) []domain.Question {
	return append([]domain.Question(nil), qs...)
}
