package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/google/uuid"
)

// SessionRepository abstracts how live sessions are stored (in-memory, Redis, Postgres).
// Every cross-request guarantee of the service comes from these operations being atomic.
type SessionRepository interface {
	// CreateSessionWithQuestions persists the session and its snapshot as one unit.
	// It returns domain.ErrCodeTaken when another session already holds the code.
	CreateSessionWithQuestions(ctx context.Context, session domain.Session, questions []domain.SessionQuestion) error
	FindSessionByCode(ctx context.Context, code string) (domain.Session, error)
	ListSessionsByHost(ctx context.Context, hostID string) ([]domain.Session, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// UpdateSessionStatus moves the session to status "to" only if it is currently in one of "from".
	// It returns domain.ErrStatusConflict otherwise.
	UpdateSessionStatus(ctx context.Context, sessionID string, to domain.SessionStatus, from ...domain.SessionStatus) error
	SessionQuestions(ctx context.Context, sessionID string) ([]domain.SessionQuestion, error)
	FindSessionQuestion(ctx context.Context, sessionID, questionID string) (domain.SessionQuestion, error)
	// UpsertParticipant inserts p unless (session, user) already exists, in which case the stored row is returned unchanged.
	// It fails with ErrSessionEnded once the session is COMPLETED, checked atomically with the insert.
	UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error)
	FindParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	// ListParticipants returns participants ordered by join recency, most recent first.
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
	// RecordAnswer claims (session, participant, question) and increments the participant score
	// by answer.Points in one atomic step, provided the session is still ACTIVE.
	// It returns the new total, domain.ErrAlreadyAnswered or domain.ErrSessionNotActive.
	RecordAnswer(ctx context.Context, answer domain.AnswerRecord) (int, error)
}

// QuestionBank is the read-only view of the question bank.
type QuestionBank interface {
	// CountActiveQuestions counts active questions, optionally restricted to a category.
	CountActiveQuestions(ctx context.Context, categoryID string) (int, error)
	// ActiveQuestions returns the active pool ordered by question ID.
	ActiveQuestions(ctx context.Context, categoryID string) ([]domain.Question, error)
}

// CodeSource produces candidate session codes.
type CodeSource interface {
	Generate() (string, error)
}

const (
	// MaxCodeAttempts bounds code generation retries on collision.
	MaxCodeAttempts = 5

	maxTitleLength = 200
	maxQuestions   = 100
	minTimer       = 5
	maxTimer       = 600
)

// SessionService contains the live quiz use cases.
type SessionService struct {
	sessions     SessionRepository
	questions    QuestionBank
	codes        CodeSource
	selector     *QuestionSelector
	now          func() time.Time
	newID        func() string
	codeAttempts int
}

// Option customizes a SessionService.
type Option func(*SessionService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// WithCodeSource replaces the random code generator.
func WithCodeSource(codes CodeSource) Option {
	return func(s *SessionService) { s.codes = codes }
}

// WithCodeAttempts sets the collision retry budget, capped at MaxCodeAttempts.
func WithCodeAttempts(n int) Option {
	return func(s *SessionService) {
		if n > 0 && n <= MaxCodeAttempts {
			s.codeAttempts = n
		}
	}
}

func NewSessionService(sessions SessionRepository, questions QuestionBank, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:     sessions,
		questions:    questions,
		codes:        NewCodeGenerator(),
		selector:     NewQuestionSelector(),
		now:          time.Now,
		newID:        uuid.NewString,
		codeAttempts: MaxCodeAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSessionParams is the host input for a new session.
type CreateSessionParams struct {
	Title            string
	CategoryID       string
	TotalQuestions   int
	TimerPerQuestion int
	Shuffle          bool
}

func (p CreateSessionParams) validate() error {
	title := strings.TrimSpace(p.Title)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	case len(title) > maxTitleLength:
		return fmt.Errorf("%w: title must be at most %d characters", domain.ErrValidation, maxTitleLength)
	case p.TotalQuestions < 1 || p.TotalQuestions > maxQuestions:
		return fmt.Errorf("%w: totalQuestions must be between 1 and %d", domain.ErrValidation, maxQuestions)
	case p.TimerPerQuestion < minTimer || p.TimerPerQuestion > maxTimer:
		return fmt.Errorf("%w: timerPerQuestion must be between %d and %d seconds", domain.ErrValidation, minTimer, maxTimer)
	}
	return nil
}

// CreateSession selects the question snapshot, allocates a code and stores both atomically.
func (s *SessionService) CreateSession(ctx context.Context, host domain.Identity, params CreateSessionParams) (domain.Session, error) {
	if err := requireHost(host); err != nil {
		return domain.Session{}, err
	}
	if err := params.validate(); err != nil {
		return domain.Session{}, err
	}

	picked, err := s.SelectQuestions(ctx, params.CategoryID, params.TotalQuestions, params.Shuffle)
	if err != nil {
		return domain.Session{}, err
	}

	session := domain.Session{
		ID:               s.newID(),
		Title:            strings.TrimSpace(params.Title),
		HostID:           host.UserID,
		CategoryID:       params.CategoryID,
		Status:           domain.StatusWaiting,
		TimerPerQuestion: params.TimerPerQuestion,
		Shuffle:          params.Shuffle,
		TotalQuestions:   len(picked),
		CreatedAt:        s.now().UTC(),
	}
	snapshot := snapshotQuestions(session.ID, picked)

	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return domain.Session{}, fmt.Errorf("generate code: %w", err)
		}
		// The pre-check only avoids a pointless write; the insert decides.
		taken, err := s.sessions.CodeExists(ctx, code)
		if err != nil {
			return domain.Session{}, fmt.Errorf("check code: %w", err)
		}
		if taken {
			slog.Debug("session code collision", "attempt", attempt)
			continue
		}

		session.Code = code
		err = s.sessions.CreateSessionWithQuestions(ctx, session, snapshot)
		if errors.Is(err, domain.ErrCodeTaken) {
			slog.Debug("session code claimed concurrently", "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Session{}, fmt.Errorf("create session: %w", err)
		}
		slog.Info("session created", "session_id", session.ID, "code", session.Code, "host_id", host.UserID, "questions", len(snapshot))
		return session, nil
	}

	slog.Warn("session code generation exhausted", "attempts", s.codeAttempts, "host_id", host.UserID)
	return domain.Session{}, domain.ErrCodeGenerationExhausted
}

// StartSession moves a waiting session to ACTIVE. Starting an active session is a no-op.
func (s *SessionService) StartSession(ctx context.Context, host domain.Identity, code string) (domain.SessionSummary, error) {
	session, err := s.hostedSession(ctx, host, code)
	if err != nil {
		return domain.SessionSummary{}, err
	}

	switch session.Status {
	case domain.StatusActive:
		return s.summarize(ctx, session)
	case domain.StatusCompleted:
		return domain.SessionSummary{}, domain.ErrSessionEnded
	}

	err = s.sessions.UpdateSessionStatus(ctx, session.ID, domain.StatusActive, domain.StatusWaiting)
	if errors.Is(err, domain.ErrStatusConflict) {
		// Lost a race with another start or an end; report whatever won.
		if session, err = s.findByCode(ctx, code); err != nil {
			return domain.SessionSummary{}, err
		}
		if session.Status == domain.StatusCompleted {
			return domain.SessionSummary{}, domain.ErrSessionEnded
		}
		return s.summarize(ctx, session)
	}
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("start session: %w", err)
	}

	session.Status = domain.StatusActive
	slog.Info("session started", "session_id", session.ID, "code", session.Code)
	return s.summarize(ctx, session)
}

// EndSession completes a session from any state. Ending a completed session is a no-op.
func (s *SessionService) EndSession(ctx context.Context, host domain.Identity, code string) (domain.SessionSummary, error) {
	session, err := s.hostedSession(ctx, host, code)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	if session.Status == domain.StatusCompleted {
		return s.summarize(ctx, session)
	}

	err = s.sessions.UpdateSessionStatus(ctx, session.ID, domain.StatusCompleted, domain.StatusWaiting, domain.StatusActive)
	if err != nil && !errors.Is(err, domain.ErrStatusConflict) {
		return domain.SessionSummary{}, fmt.Errorf("end session: %w", err)
	}
	// A conflict here can only mean someone else completed it first.
	session.Status = domain.StatusCompleted
	slog.Info("session ended", "session_id", session.ID, "code", session.Code)
	return s.summarize(ctx, session)
}

// GetQuestionsForParticipant returns the ordered snapshot with answers stripped.
func (s *SessionService) GetQuestionsForParticipant(ctx context.Context, caller domain.Identity, code string) ([]domain.PublicQuestion, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.StatusWaiting {
		return nil, domain.ErrSessionNotStarted
	}

	questions, err := s.sessions.SessionQuestions(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load session questions: %w", err)
	}
	public := make([]domain.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		public = append(public, domain.PublicQuestion{
			QuestionID: q.QuestionID,
			Order:      q.Order,
			Text:       q.Text,
			CategoryID: q.CategoryID,
		})
	}
	return public, nil
}

// GetSession returns the public summary of a session.
func (s *SessionService) GetSession(ctx context.Context, code string) (domain.SessionSummary, error) {
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	return s.summarize(ctx, session)
}

// ListHostSessions returns the caller's sessions, newest first.
func (s *SessionService) ListHostSessions(ctx context.Context, host domain.Identity) ([]domain.SessionSummary, error) {
	if err := requireHost(host); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListSessionsByHost(ctx, host.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summary, err := s.summarize(ctx, session)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// findByCode answers malformed codes with ErrSessionNotFound without asking the store.
func (s *SessionService) findByCode(ctx context.Context, code string) (domain.Session, error) {
	if !ValidCode(code) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions.FindSessionByCode(ctx, code)
}

func (s *SessionService) hostedSession(ctx context.Context, host domain.Identity, code string) (domain.Session, error) {
	if host.UserID == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}
	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != host.UserID {
		return domain.Session{}, domain.ErrForbidden
	}
	return session, nil
}

func (s *SessionService) summarize(ctx context.Context, session domain.Session) (domain.SessionSummary, error) {
	participants, err := s.sessions.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.SessionSummary{}, fmt.Errorf("list participants: %w", err)
	}
	return domain.SessionSummary{
		SessionID:        session.ID,
		Code:             session.Code,
		Title:            session.Title,
		Status:           session.Status,
		TimerPerQuestion: session.TimerPerQuestion,
		TotalQuestions:   session.TotalQuestions,
		ParticipantCount: len(participants),
		CreatedAt:        session.CreatedAt,
	}, nil
}

func requireHost(identity domain.Identity) error {
	if identity.UserID == "" {
		return domain.ErrUnauthorized
	}
	if !identity.Role.CanHost() {
		return domain.ErrForbidden
	}
	return nil
}

func snapshotQuestions(sessionID string, picked []domain.Question) []domain.SessionQuestion {
	snapshot := make([]domain.SessionQuestion, len(picked))
	for i, q := range picked {
		snapshot[i] = domain.SessionQuestion{
			SessionID:     sessionID,
			QuestionID:    q.ID,
			Order:         i + 1,
			Text:          q.Text,
			CorrectAnswer: q.CorrectAnswer,
			Explanation:   q.Explanation,
			CategoryID:    q.CategoryID,
		}
	}
	return snapshot
}
