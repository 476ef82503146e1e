package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// A single mutex makes every operation atomic, which gives the same guarantees the
// Redis and Postgres stores provide with scripts and transactions.
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session // by id
	codes        map[string]string         // code -> session id
	questions    map[string][]domain.SessionQuestion
	participants map[string][]*domain.Participant // join order
	answers      map[answerKey]domain.AnswerRecord
}

type answerKey struct {
	sessionID, participantID, questionID string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:     make(map[string]domain.Session),
		codes:        make(map[string]string),
		questions:    make(map[string][]domain.SessionQuestion),
		participants: make(map[string][]*domain.Participant),
		answers:      make(map[answerKey]domain.AnswerRecord),
	}
}

func (s *SessionStore) CreateSessionWithQuestions(_ context.Context, session domain.Session, questions []domain.SessionQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[session.Code]; ok {
		return domain.ErrCodeTaken
	}
	s.sessions[session.ID] = session
	s.codes[session.Code] = session.ID
	s.questions[session.ID] = slices.Clone(questions)
	return nil
}

func (s *SessionStore) FindSessionByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) ListSessionsByHost(_ context.Context, hostID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, session := range s.sessions {
		if session.HostID == hostID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *SessionStore) CodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *SessionStore) UpdateSessionStatus(_ context.Context, sessionID string, to domain.SessionStatus, from ...domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if !slices.Contains(from, session.Status) {
		return domain.ErrStatusConflict
	}
	session.Status = to
	s.sessions[sessionID] = session
	return nil
}

func (s *SessionStore) SessionQuestions(_ context.Context, sessionID string) ([]domain.SessionQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	return slices.Clone(s.questions[sessionID]), nil
}

func (s *SessionStore) FindSessionQuestion(_ context.Context, sessionID, questionID string) (domain.SessionQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions[sessionID] {
		if q.QuestionID == questionID {
			return q, nil
		}
	}
	return domain.SessionQuestion{}, domain.ErrQuestionNotFound
}

func (s *SessionStore) UpsertParticipant(_ context.Context, p domain.Participant) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[p.SessionID]
	if !ok {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	if session.Status == domain.StatusCompleted {
		return domain.Participant{}, domain.ErrSessionEnded
	}
	for _, existing := range s.participants[p.SessionID] {
		if existing.UserID == p.UserID {
			return *existing, nil
		}
	}
	stored := p
	s.participants[p.SessionID] = append(s.participants[p.SessionID], &stored)
	return stored, nil
}

func (s *SessionStore) FindParticipant(_ context.Context, sessionID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants[sessionID] {
		if p.UserID == userID {
			return *p, nil
		}
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *SessionStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	joined := s.participants[sessionID]
	out := make([]domain.Participant, 0, len(joined))
	for i := len(joined) - 1; i >= 0; i-- {
		out = append(out, *joined[i])
	}
	return out, nil
}

func (s *SessionStore) RecordAnswer(_ context.Context, answer domain.AnswerRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[answer.SessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive {
		return 0, domain.ErrSessionNotActive
	}

	var participant *domain.Participant
	for _, p := range s.participants[answer.SessionID] {
		if p.ID == answer.ParticipantID {
			participant = p
			break
		}
	}
	if participant == nil {
		return 0, domain.ErrParticipantNotFound
	}

	key := answerKey{answer.SessionID, answer.ParticipantID, answer.QuestionID}
	if _, ok := s.answers[key]; ok {
		return 0, domain.ErrAlreadyAnswered
	}
	s.answers[key] = answer
	participant.Score += answer.Points
	return participant.Score, nil
}
