package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/NDI05/ums-dental-platform-sub001/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionBank caches the question pool in Redis (one hash, field per question)
// and falls back to a loader on cache miss. Several service replicas share the cache.
//
//	HSET quiz:questions {questionID} {question JSON}
type QuestionBank struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

const questionsKey = "quiz:questions"

func NewQuestionBank(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) CountActiveQuestions(ctx context.Context, categoryID string) (int, error) {
	pool, err := b.ActiveQuestions(ctx, categoryID)
	if err != nil {
		return 0, err
	}
	return len(pool), nil
}

func (b *QuestionBank) ActiveQuestions(ctx context.Context, categoryID string) ([]domain.Question, error) {
	questions, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return domain.ActivePool(questions, categoryID), nil
}

// Invalidate drops the cached pool so the next read goes to the loader.
func (b *QuestionBank) Invalidate(ctx context.Context) error {
	return b.client.Del(ctx, questionsKey).Err()
}

func (b *QuestionBank) load(ctx context.Context) ([]domain.Question, error) {
	if cached, ok := b.cached(ctx); ok {
		return cached, nil
	}

	result, err, _ := b.sf.Do(questionsKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, ok := b.cached(ctx); ok {
			return cached, nil
		}

		questions, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		if len(questions) == 0 {
			return []domain.Question{}, nil
		}

		values := make([]interface{}, 0, len(questions)*2)
		for _, q := range questions {
			payload, err := json.Marshal(q)
			if err != nil {
				return nil, fmt.Errorf("marshal question %s: %w", q.ID, err)
			}
			values = append(values, q.ID, string(payload))
		}

		ttl := b.ttlWithJitter()
		pipe := b.client.TxPipeline()
		pipe.Del(ctx, questionsKey)
		pipe.HSet(ctx, questionsKey, values...)
		if ttl > 0 {
			pipe.Expire(ctx, questionsKey, ttl)
		}
		// a failed cache write still serves the freshly loaded pool
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) cached(ctx context.Context) ([]domain.Question, bool) {
	entries, err := b.client.HGetAll(ctx, questionsKey).Result()
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	questions := make([]domain.Question, 0, len(entries))
	for _, raw := range entries {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		questions = append(questions, q)
	}
	return questions, true
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
