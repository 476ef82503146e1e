package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// SessionStore is the durable app.SessionRepository on Postgres via bun.
// Unique constraints carry the code and answer-claim guarantees; status changes
// and answer recording serialize on the session row.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

const codeConstraint = "quiz_sessions_code_key"

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID               string    `bun:"id,pk"`
	Code             string    `bun:"code"`
	Title            string    `bun:"title"`
	HostID           string    `bun:"host_id"`
	CategoryID       string    `bun:"category_id"`
	Status           string    `bun:"status"`
	TimerPerQuestion int       `bun:"timer_per_question"`
	Shuffle          bool      `bun:"shuffle"`
	TotalQuestions   int       `bun:"total_questions"`
	CreatedAt        time.Time `bun:"created_at"`
}

type sessionQuestionRow struct {
	bun.BaseModel `bun:"table:session_questions"`

	SessionID     string `bun:"session_id,pk"`
	QuestionID    string `bun:"question_id,pk"`
	Position      int    `bun:"position"`
	Text          string `bun:"text"`
	CorrectAnswer bool   `bun:"correct_answer"`
	Explanation   string `bun:"explanation"`
	CategoryID    string `bun:"category_id"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:session_participants"`

	ID          string    `bun:"id,pk"`
	SessionID   string    `bun:"session_id"`
	UserID      string    `bun:"user_id"`
	DisplayName string    `bun:"display_name"`
	Avatar      string    `bun:"avatar"`
	Score       int       `bun:"score"`
	Status      string    `bun:"status"`
	JoinedAt    time.Time `bun:"joined_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:session_answers"`

	SessionID     string    `bun:"session_id,pk"`
	ParticipantID string    `bun:"participant_id,pk"`
	QuestionID    string    `bun:"question_id,pk"`
	Answer        bool      `bun:"answer"`
	Correct       bool      `bun:"correct"`
	Points        int       `bun:"points"`
	AnsweredAt    time.Time `bun:"answered_at"`
}

func (s *SessionStore) CreateSessionWithQuestions(ctx context.Context, session domain.Session, questions []domain.SessionQuestion) error {
	row := toSessionRow(session)
	rows := make([]sessionQuestionRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, toSessionQuestionRow(session.ID, q))
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if violatesConstraint(err, codeConstraint) {
		return domain.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("code = ?", code).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) ListSessionsByHost(ctx context.Context, hostID string) ([]domain.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("host_id = ?", hostID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list host sessions: %w", err)
	}
	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toDomain())
	}
	return sessions, nil
}

func (s *SessionStore) CodeExists(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("code = ?", code).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

func (s *SessionStore) UpdateSessionStatus(ctx context.Context, sessionID string, to domain.SessionStatus, from ...domain.SessionStatus) error {
	allowed := make([]string, 0, len(from))
	for _, f := range from {
		allowed = append(allowed, string(f))
	}

	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("status = ?", string(to)).
		Where("id = ?", sessionID).
		Where("status IN (?)", bun.In(allowed)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return domain.ErrSessionNotFound
	}
	return domain.ErrStatusConflict
}

func (s *SessionStore) SessionQuestions(ctx context.Context, sessionID string) ([]domain.SessionQuestion, error) {
	var rows []sessionQuestionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if len(rows) == 0 {
		exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return nil, domain.ErrSessionNotFound
		}
	}
	questions := make([]domain.SessionQuestion, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toDomain())
	}
	return questions, nil
}

func (s *SessionStore) FindSessionQuestion(ctx context.Context, sessionID, questionID string) (domain.SessionQuestion, error) {
	var row sessionQuestionRow
	err := s.db.NewSelect().
		Model(&row).
		Where("session_id = ?", sessionID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionQuestion{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.SessionQuestion{}, fmt.Errorf("find question: %w", err)
	}
	return row.toDomain(), nil
}

// UpsertParticipant holds the session row FOR SHARE, so an end either waits for the
// join to commit or the join sees COMPLETED.
func (s *SessionStore) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	row := toParticipantRow(p)
	row.Score = 0

	var stored participantRow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var status string
		err := tx.NewSelect().
			Model((*sessionRow)(nil)).
			Column("status").
			Where("id = ?", p.SessionID).
			For("SHARE").
			Scan(ctx, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if status == string(domain.StatusCompleted) {
			return domain.ErrSessionEnded
		}

		if _, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (session_id, user_id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
		return tx.NewSelect().
			Model(&stored).
			Where("session_id = ?", p.SessionID).
			Where("user_id = ?", p.UserID).
			Scan(ctx)
	})
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionEnded):
		return domain.Participant{}, err
	case err != nil:
		return domain.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	return stored.toDomain(), nil
}

func (s *SessionStore) FindParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().
		Model(&row).
		Where("session_id = ?", sessionID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("find participant: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("session_id = ?", sessionID).
		OrderExpr("join_seq DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	participants := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		participants = append(participants, row.toDomain())
	}
	return participants, nil
}

// RecordAnswer locks the session row FOR SHARE so a concurrent end waits for in-flight
// answers, then claims the answer and increments the score in the same transaction.
func (s *SessionStore) RecordAnswer(ctx context.Context, answer domain.AnswerRecord) (int, error) {
	var total int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var status string
		err := tx.NewSelect().
			Model((*sessionRow)(nil)).
			Column("status").
			Where("id = ?", answer.SessionID).
			For("SHARE").
			Scan(ctx, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if status != string(domain.StatusActive) {
			return domain.ErrSessionNotActive
		}

		row := answerRow{
			SessionID:     answer.SessionID,
			ParticipantID: answer.ParticipantID,
			QuestionID:    answer.QuestionID,
			Answer:        answer.Answer,
			Correct:       answer.Correct,
			Points:        answer.Points,
			AnsweredAt:    answer.AnsweredAt,
		}
		res, err := tx.NewInsert().Model(&row).On("CONFLICT DO NOTHING").Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAlreadyAnswered
		}

		return tx.NewUpdate().
			Model((*participantRow)(nil)).
			Set("score = score + ?", answer.Points).
			Where("id = ?", answer.ParticipantID).
			Returning("score").
			Scan(ctx, &total)
	})
	switch {
	case err == nil:
		return total, nil
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrAlreadyAnswered):
		return 0, err
	case isForeignKeyViolation(err):
		return 0, domain.ErrParticipantNotFound
	}
	return 0, fmt.Errorf("record answer: %w", err)
}

func violatesConstraint(err error, constraint string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.IntegrityViolation() && pgErr.Field('n') == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Field('C') == "23503"
}

func toSessionRow(s domain.Session) sessionRow {
	return sessionRow{
		ID:               s.ID,
		Code:             s.Code,
		Title:            s.Title,
		HostID:           s.HostID,
		CategoryID:       s.CategoryID,
		Status:           string(s.Status),
		TimerPerQuestion: s.TimerPerQuestion,
		Shuffle:          s.Shuffle,
		TotalQuestions:   s.TotalQuestions,
		CreatedAt:        s.CreatedAt,
	}
}

func (r sessionRow) toDomain() domain.Session {
	return domain.Session{
		ID:               r.ID,
		Code:             r.Code,
		Title:            r.Title,
		HostID:           r.HostID,
		CategoryID:       r.CategoryID,
		Status:           domain.SessionStatus(r.Status),
		TimerPerQuestion: r.TimerPerQuestion,
		Shuffle:          r.Shuffle,
		TotalQuestions:   r.TotalQuestions,
		CreatedAt:        r.CreatedAt,
	}
}

func toSessionQuestionRow(sessionID string, q domain.SessionQuestion) sessionQuestionRow {
	return sessionQuestionRow{
		SessionID:     sessionID,
		QuestionID:    q.QuestionID,
		Position:      q.Order,
		Text:          q.Text,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		CategoryID:    q.CategoryID,
	}
}

func (r sessionQuestionRow) toDomain() domain.SessionQuestion {
	return domain.SessionQuestion{
		SessionID:     r.SessionID,
		QuestionID:    r.QuestionID,
		Order:         r.Position,
		Text:          r.Text,
		CorrectAnswer: r.CorrectAnswer,
		Explanation:   r.Explanation,
		CategoryID:    r.CategoryID,
	}
}

func toParticipantRow(p domain.Participant) participantRow {
	return participantRow{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Score:       p.Score,
		Status:      string(p.Status),
		JoinedAt:    p.JoinedAt,
	}
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:          r.ID,
		SessionID:   r.SessionID,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Avatar:      r.Avatar,
		Score:       r.Score,
		Status:      domain.ParticipantStatus(r.Status),
		JoinedAt:    r.JoinedAt,
	}
}
