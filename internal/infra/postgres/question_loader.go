package postgres

import (
	"context"
	"fmt"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads the active question bank from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, text, correct_answer, explanation, category_id, is_active
		FROM questions
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.CorrectAnswer, &q.Explanation, &q.CategoryID, &q.Active); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

// SeedQuestions upserts questions in one batch. Used by `migrate --seed`.
func (l *QuestionLoader) SeedQuestions(ctx context.Context, questions []domain.Question) error {
	if len(questions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, q := range questions {
		batch.Queue(`
			INSERT INTO questions (id, text, correct_answer, explanation, category_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				correct_answer = EXCLUDED.correct_answer,
				explanation = EXCLUDED.explanation,
				category_id = EXCLUDED.category_id,
				is_active = EXCLUDED.is_active,
				updated_at = now()`,
			q.ID, q.Text, q.CorrectAnswer, q.Explanation, q.CategoryID, q.Active)
	}

	results := l.pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, q := range questions {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed question %s: %w", q.ID, err)
		}
	}
	return nil
}
