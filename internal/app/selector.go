package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

// QuestionSelector samples distinct questions from a pool.
type QuestionSelector struct {
	intN func(n int) int
}

func NewQuestionSelector() *QuestionSelector {
	return &QuestionSelector{intN: rand.IntN}
}

// NewQuestionSelectorWithRand is test-only for deterministic draws.
func NewQuestionSelectorWithRand(r *rand.Rand) *QuestionSelector {
	return &QuestionSelector{intN: r.IntN}
}

// Select draws count distinct questions with a partial Fisher-Yates shuffle, so every
// question has the same chance of being picked. With shuffle off the picks keep pool order.
func (s *QuestionSelector) Select(pool []domain.Question, count int, shuffle bool) ([]domain.Question, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: question count must be positive", domain.ErrValidation)
	}
	if len(pool) < count {
		return nil, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientQuestions, count, len(pool))
	}

	idx := make([]int, len(pool))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < count; i++ {
		j := i + s.intN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	picked := idx[:count]
	if !shuffle {
		sort.Ints(picked)
	}

	out := make([]domain.Question, count)
	for i, p := range picked {
		out[i] = pool[p]
	}
	return out, nil
}

// SelectQuestions validates the category pool size and samples count questions from it.
func (s *SessionService) SelectQuestions(ctx context.Context, categoryID string, count int, shuffle bool) ([]domain.Question, error) {
	available, err := s.questions.CountActiveQuestions(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if available < count {
		return nil, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientQuestions, count, available)
	}

	pool, err := s.questions.ActiveQuestions(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return s.selector.Select(pool, count, shuffle)
}
