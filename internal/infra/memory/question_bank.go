package memory

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// QuestionLoader fetches the question bank from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionBank caches the question pool with TTL to avoid repeated DB hits.
type QuestionBank struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

const poolKey = "pool"

func NewQuestionBank(loader QuestionLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
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

func (b *QuestionBank) load(ctx context.Context) ([]domain.Question, error) {
	now := b.clock()

	b.mu.RLock()
	if b.cache.questions != nil && b.cache.expiresAt.After(now) {
		questions := b.cache.questions
		b.mu.RUnlock()
		return questions, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(poolKey, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if b.cache.questions != nil && b.cache.expiresAt.After(now) {
			questions := b.cache.questions
			b.mu.RUnlock()
			return questions, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		if questions == nil {
			questions = []domain.Question{}
		}

		b.mu.Lock()
		b.cache = cachedPool{
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
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by a slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	out := make([]domain.Question, len(l.questions))
	copy(out, l.questions)
	return out, nil
}

type seedFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// LoadSeedFile reads a YAML question bank for running without Postgres.
func LoadSeedFile(path string) (*StaticQuestionLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return NewStaticQuestionLoader(seed.Questions), nil
}
