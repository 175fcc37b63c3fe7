package repo

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiztrack-service/internal/trivia"
)

// CachedQuestionSource caches fetched batches with a TTL so rapid quiz
// creation does not hammer the trivia endpoint. Concurrent misses for the
// same batch size collapse into one upstream request.
type CachedQuestionSource struct {
	source QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int]cachedBatch
}

type cachedBatch struct {
	questions []trivia.Question
	expiresAt time.Time
}

func NewCachedQuestionSource(source QuestionSource, ttl time.Duration) *CachedQuestionSource {
	return &CachedQuestionSource{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int]cachedBatch),
	}
}

func (c *CachedQuestionSource) FetchQuestions(ctx context.Context, amount int) ([]trivia.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[amount]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(strconv.Itoa(amount), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[amount]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.source.FetchQuestions(ctx, amount)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[amount] = cachedBatch{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]trivia.Question), nil
}

func (c *CachedQuestionSource) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
