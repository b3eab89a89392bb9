package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/domain"
)

// QuestionCache caches the ordered question list of each set in Redis and
// falls back to a loader on cache miss. Lists are stored as JSON under
// survey:questions:{setID}.
type QuestionCache struct {
	client *redis.Client
	loader app.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader app.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, setID string) ([]domain.Question, error) {
	if qs, ok := c.cached(ctx, setID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(setID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.cached(ctx, setID); ok {
			return qs, nil
		}

		gen, err := c.generation(ctx, c.client, setID)
		if err != nil {
			return nil, err
		}
		qs, err := c.loader.LoadQuestions(ctx, setID)
		if err != nil {
			return nil, err
		}
		// best effort; a failed write only costs a reload
		_ = c.store(ctx, setID, gen, qs)
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached list and bumps the generation of setID so a
// load that started earlier does not write its result back.
func (c *QuestionCache) Invalidate(ctx context.Context, setID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(setID))
		pipe.Incr(ctx, c.genKey(setID))
		return nil
	})
	c.sf.Forget(setID)
	return err
}

// store writes qs unless setID was invalidated after gen was read.
func (c *QuestionCache) store(ctx context.Context, setID string, gen int64, qs []domain.Question) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.generation(ctx, tx, setID)
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(setID), raw, c.ttlWithJitter())
			return nil
		})
		return err
	}, c.genKey(setID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *QuestionCache) generation(ctx context.Context, r getter, setID string) (int64, error) {
	gen, err := r.Get(ctx, c.genKey(setID)).Int64()
	if isNil(err) {
		return 0, nil
	}
	return gen, err
}

func (c *QuestionCache) cached(ctx context.Context, setID string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, c.key(setID)).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCache) key(setID string) string {
	return "survey:questions:" + setID
}

func (c *QuestionCache) genKey(setID string) string {
	return "survey:questions:gen:" + setID
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
