package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/app"
	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/NDI05/ums-dental-platform-sub001/internal/infra/memory"
	"golang.org/x/sync/errgroup"
)

var (
	host    = domain.Identity{UserID: "host-1", Role: domain.RoleAdmin, Name: "Admin"}
	alice   = domain.Identity{UserID: "u-alice", Role: domain.RoleStudent, Name: "Alice"}
	bob     = domain.Identity{UserID: "u-bob", Role: domain.RoleStudent, Name: "Bob"}
	nobody  = domain.Identity{}
	quizTen = app.CreateSessionParams{Title: "Quiz A", TotalQuestions: 10, TimerPerQuestion: 30, Shuffle: true}
)

func TestEndToEndSession(t *testing.T) {
	ctx := context.Background()
	service, bank := newTestService(10)

	session, err := service.CreateSession(ctx, host, quizTen)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if session.Status != domain.StatusWaiting || session.TotalQuestions != 10 {
		t.Fatalf("unexpected session %+v", session)
	}

	joined, err := service.Join(ctx, alice, session.Code)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if joined.Score != 0 || joined.ParticipantID == "" {
		t.Fatalf("expected fresh participant, got %+v", joined)
	}

	if _, err := service.GetQuestionsForParticipant(ctx, alice, session.Code); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected not started, got %v", err)
	}
	_, err = service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{QuestionID: "q1", Answer: true, TimeLeftSeconds: 15})
	if !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("expected not started on submit, got %v", err)
	}

	if _, err := service.StartSession(ctx, host, session.Code); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	questions, err := service.GetQuestionsForParticipant(ctx, alice, session.Code)
	if err != nil {
		t.Fatalf("questions failed: %v", err)
	}
	if len(questions) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(questions))
	}
	seen := make(map[string]bool)
	for i, q := range questions {
		if q.Order != i+1 {
			t.Fatalf("expected order %d, got %d", i+1, q.Order)
		}
		if seen[q.QuestionID] {
			t.Fatalf("question %s repeated", q.QuestionID)
		}
		seen[q.QuestionID] = true
	}

	first := questions[0]
	result, err := service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{
		QuestionID:      first.QuestionID,
		Answer:          bank[first.QuestionID].CorrectAnswer,
		TimeLeftSeconds: 15,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Correct || result.Points != 750 || result.TotalScore != 750 {
		t.Fatalf("expected 750 points, got %+v", result)
	}
	if result.Explanation != bank[first.QuestionID].Explanation {
		t.Fatalf("expected explanation revealed after submit, got %q", result.Explanation)
	}

	if _, err := service.EndSession(ctx, host, session.Code); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	_, err = service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{QuestionID: questions[1].QuestionID, Answer: true, TimeLeftSeconds: 30})
	if !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected not active after end, got %v", err)
	}

	list, err := service.ListParticipants(ctx, session.Code)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if list.Status != domain.StatusCompleted || list.Count != 1 || list.Participants[0].Score != 750 {
		t.Fatalf("unexpected final state %+v", list)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(10)

	tests := []struct {
		name   string
		caller domain.Identity
		params app.CreateSessionParams
		want   error
	}{
		{"anonymous", nobody, quizTen, domain.ErrUnauthorized},
		{"student", alice, quizTen, domain.ErrForbidden},
		{"missing title", host, app.CreateSessionParams{TotalQuestions: 5, TimerPerQuestion: 30}, domain.ErrValidation},
		{"zero questions", host, app.CreateSessionParams{Title: "x", TotalQuestions: 0, TimerPerQuestion: 30}, domain.ErrValidation},
		{"timer too short", host, app.CreateSessionParams{Title: "x", TotalQuestions: 5, TimerPerQuestion: 1}, domain.ErrValidation},
		{"pool too small", host, app.CreateSessionParams{Title: "x", TotalQuestions: 11, TimerPerQuestion: 30}, domain.ErrInsufficientQuestions},
		{"unknown category", host, app.CreateSessionParams{Title: "x", CategoryID: "diet", TotalQuestions: 1, TimerPerQuestion: 30}, domain.ErrInsufficientQuestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.CreateSession(ctx, tt.caller, tt.params); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStartSessionRules(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(10)
	session := mustCreate(t, service)

	if _, err := service.StartSession(ctx, host, "ZZZZZZ"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	otherHost := domain.Identity{UserID: "host-2", Role: domain.RoleTeacher}
	if _, err := service.StartSession(ctx, otherHost, session.Code); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := service.StartSession(ctx, alice, session.Code); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for participant, got %v", err)
	}

	for i := 0; i < 2; i++ {
		summary, err := service.StartSession(ctx, host, session.Code)
		if err != nil {
			t.Fatalf("start #%d failed: %v", i+1, err)
		}
		if summary.Status != domain.StatusActive {
			t.Fatalf("expected active, got %s", summary.Status)
		}
	}

	if _, err := service.EndSession(ctx, host, session.Code); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := service.StartSession(ctx, host, session.Code); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ended, got %v", err)
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(10)
	session := mustCreate(t, service)

	// Ending straight from WAITING is allowed.
	for i := 0; i < 3; i++ {
		summary, err := service.EndSession(ctx, host, session.Code)
		if err != nil {
			t.Fatalf("end #%d failed: %v", i+1, err)
		}
		if summary.Status != domain.StatusCompleted {
			t.Fatalf("expected completed, got %s", summary.Status)
		}
	}
	if _, err := service.EndSession(ctx, alice, session.Code); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, bank := newTestService(10)
	session := mustCreate(t, service)

	first, err := service.Join(ctx, alice, session.Code)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	_, _ = service.StartSession(ctx, host, session.Code)
	questions, _ := service.GetQuestionsForParticipant(ctx, alice, session.Code)
	q := questions[0]
	_, err = service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{QuestionID: q.QuestionID, Answer: bank[q.QuestionID].CorrectAnswer})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	again, err := service.Join(ctx, alice, session.Code)
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if again.ParticipantID != first.ParticipantID {
		t.Fatalf("expected same participant id, got %s and %s", first.ParticipantID, again.ParticipantID)
	}
	if again.Score != 500 {
		t.Fatalf("expected score kept at 500, got %d", again.Score)
	}
	if again.Session.ParticipantCount != 1 {
		t.Fatalf("expected one participant row, got %d", again.Session.ParticipantCount)
	}
}

func TestJoinRules(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(10)
	session := mustCreate(t, service)

	if _, err := service.Join(ctx, nobody, session.Code); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := service.Join(ctx, alice, "ZZZZZZ"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, _ = service.StartSession(ctx, host, session.Code)
	if _, err := service.Join(ctx, bob, session.Code); err != nil {
		t.Fatalf("late join should succeed, got %v", err)
	}

	_, _ = service.EndSession(ctx, host, session.Code)
	if _, err := service.Join(ctx, alice, session.Code); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ended, got %v", err)
	}
}

// endingStore completes the session right before the participant insert,
// as if the host's end landed between Join's status read and its write.
type endingStore struct {
	*memory.SessionStore
	end func()
}

func (s *endingStore) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	if s.end != nil {
		s.end()
		s.end = nil
	}
	return s.SessionStore.UpsertParticipant(ctx, p)
}

func TestJoinRacingEndIsRefused(t *testing.T) {
	ctx := context.Background()
	store := &endingStore{SessionStore: memory.NewSessionStore()}
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(dentalQuestions(5)), time.Minute)
	service := app.NewSessionService(store, bank)
	session := mustCreate(t, service)

	store.end = func() {
		if _, err := service.EndSession(ctx, host, session.Code); err != nil {
			t.Errorf("end: %v", err)
		}
	}
	if _, err := service.Join(ctx, alice, session.Code); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ended, got %v", err)
	}

	list, err := service.ListParticipants(ctx, session.Code)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if list.Status != domain.StatusCompleted || list.Count != 0 {
		t.Fatalf("completed session gained a participant: %+v", list)
	}
}

func TestJoinReportsCurrentStatus(t *testing.T) {
	ctx := context.Background()
	store := &endingStore{SessionStore: memory.NewSessionStore()}
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(dentalQuestions(5)), time.Minute)
	service := app.NewSessionService(store, bank)
	session := mustCreate(t, service)

	store.end = func() {
		if _, err := service.StartSession(ctx, host, session.Code); err != nil {
			t.Errorf("start: %v", err)
		}
	}
	joined, err := service.Join(ctx, alice, session.Code)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Session.Status != domain.StatusActive || joined.Session.ParticipantCount != 1 {
		t.Fatalf("expected the post-join state, got %+v", joined.Session)
	}
}

type lookupCountingStore struct {
	*memory.SessionStore
	lookups int
}

func (s *lookupCountingStore) FindSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	s.lookups++
	return s.SessionStore.FindSessionByCode(ctx, code)
}

func TestMalformedCodeIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := &lookupCountingStore{SessionStore: memory.NewSessionStore()}
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(dentalQuestions(5)), time.Minute)
	service := app.NewSessionService(store, bank)

	for _, code := range []string{"", "ABC10O", "abc234", "ABCD2345", "AB 234"} {
		if _, err := service.Join(ctx, alice, code); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("join %q: expected not found, got %v", code, err)
		}
		if _, err := service.GetSession(ctx, code); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("get %q: expected not found, got %v", code, err)
		}
	}
	if store.lookups != 0 {
		t.Fatalf("malformed codes reached the store %d times", store.lookups)
	}
}

func TestListParticipantsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(10)
	session := mustCreate(t, service)

	_, _ = service.Join(ctx, alice, session.Code)
	_, _ = service.Join(ctx, bob, session.Code)
	_, _ = service.Join(ctx, alice, session.Code)

	list, err := service.ListParticipants(ctx, session.Code)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if list.Count != 2 || list.Status != domain.StatusWaiting {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Participants[0].DisplayName != "Bob" || list.Participants[1].DisplayName != "Alice" {
		t.Fatalf("expected Bob then Alice, got %+v", list.Participants)
	}
}

func TestQuestionsNeverRevealAnswers(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(10)
	session := mustCreate(t, service)

	if _, err := service.GetQuestionsForParticipant(ctx, nobody, session.Code); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	for _, step := range []func(context.Context, domain.Identity, string) (domain.SessionSummary, error){service.StartSession, service.EndSession} {
		if _, err := step(ctx, host, session.Code); err != nil {
			t.Fatalf("transition failed: %v", err)
		}
		questions, err := service.GetQuestionsForParticipant(ctx, alice, session.Code)
		if err != nil {
			t.Fatalf("questions failed: %v", err)
		}
		raw, _ := json.Marshal(questions)
		if strings.Contains(string(raw), "correctAnswer") || strings.Contains(string(raw), "explanation") {
			t.Fatalf("answers leaked: %s", raw)
		}
	}
}

func TestSubmitAnswerRules(t *testing.T) {
	ctx := context.Background()
	service, bank := newTestService(10)
	session := mustCreate(t, service)
	_, _ = service.Join(ctx, alice, session.Code)
	_, _ = service.StartSession(ctx, host, session.Code)
	questions, _ := service.GetQuestionsForParticipant(ctx, alice, session.Code)
	q := questions[0]

	if _, err := service.SubmitAnswer(ctx, nobody, session.Code, domain.AnswerSubmission{QuestionID: q.QuestionID}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, bob, session.Code, domain.AnswerSubmission{QuestionID: q.QuestionID}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{QuestionID: "nope"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}

	wrong, err := service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{
		QuestionID:      q.QuestionID,
		Answer:          !bank[q.QuestionID].CorrectAnswer,
		TimeLeftSeconds: 30,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if wrong.Correct || wrong.Points != 0 || wrong.CorrectAnswer != bank[q.QuestionID].CorrectAnswer {
		t.Fatalf("unexpected wrong answer result %+v", wrong)
	}

	_, err = service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{
		QuestionID:      q.QuestionID,
		Answer:          bank[q.QuestionID].CorrectAnswer,
		TimeLeftSeconds: 30,
	})
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected duplicate rejected, got %v", err)
	}

	full, err := service.SubmitAnswer(ctx, alice, session.Code, domain.AnswerSubmission{
		QuestionID:      questions[1].QuestionID,
		Answer:          bank[questions[1].QuestionID].CorrectAnswer,
		TimeLeftSeconds: 30,
	})
	if err != nil || full.Points != 1000 || full.TotalScore != 1000 {
		t.Fatalf("expected 1000 points, got %+v err=%v", full, err)
	}
}

func TestConcurrentSubmissionsAccumulate(t *testing.T) {
	ctx := context.Background()
	service, bank := newTestService(40)
	params := app.CreateSessionParams{Title: "Race", TotalQuestions: 40, TimerPerQuestion: 20}
	session, err := service.CreateSession(ctx, host, params)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	players := []domain.Identity{alice, bob}
	for _, p := range players {
		if _, err := service.Join(ctx, p, session.Code); err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}
	_, _ = service.StartSession(ctx, host, session.Code)
	questions, _ := service.GetQuestionsForParticipant(ctx, alice, session.Code)

	var g errgroup.Group
	for _, p := range players {
		for _, q := range questions {
			p, q := p, q
			g.Go(func() error {
				_, err := service.SubmitAnswer(ctx, p, session.Code, domain.AnswerSubmission{
					QuestionID:      q.QuestionID,
					Answer:          bank[q.QuestionID].CorrectAnswer,
					TimeLeftSeconds: 10,
				})
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submit failed: %v", err)
	}

	board, err := service.Leaderboard(ctx, session.Code)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	want := len(questions) * 750
	for _, entry := range board.Entries {
		if entry.Score != want {
			t.Fatalf("expected %d for %s, got %d", want, entry.DisplayName, entry.Score)
		}
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	service, bank := newTestServiceWithClock(10, func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	session := mustCreate(t, service)
	carol := domain.Identity{UserID: "u-carol", Role: domain.RoleStudent, Name: "Carol"}
	for _, p := range []domain.Identity{alice, bob, carol} {
		_, _ = service.Join(ctx, p, session.Code)
	}
	_, _ = service.StartSession(ctx, host, session.Code)
	questions, _ := service.GetQuestionsForParticipant(ctx, alice, session.Code)
	q := questions[0]

	_, _ = service.SubmitAnswer(ctx, carol, session.Code, domain.AnswerSubmission{QuestionID: q.QuestionID, Answer: bank[q.QuestionID].CorrectAnswer, TimeLeftSeconds: 30})
	_, _ = service.SubmitAnswer(ctx, bob, session.Code, domain.AnswerSubmission{QuestionID: q.QuestionID, Answer: bank[q.QuestionID].CorrectAnswer, TimeLeftSeconds: 0})

	board, err := service.Leaderboard(ctx, session.Code)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	var names []string
	for _, e := range board.Entries {
		names = append(names, e.DisplayName)
	}
	if strings.Join(names, ",") != "Carol,Bob,Alice" {
		t.Fatalf("unexpected order %v", names)
	}
	if board.Entries[0].Position != 1 || board.Entries[0].Score != 1000 {
		t.Fatalf("unexpected leader %+v", board.Entries[0])
	}
}

func TestListHostSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	service, _ := newTestServiceWithClock(10, func() time.Time {
		now = now.Add(time.Minute)
		return now
	})
	older := mustCreate(t, service)
	newer := mustCreate(t, service)
	_, _ = service.Join(ctx, alice, newer.Code)

	if _, err := service.ListHostSessions(ctx, alice); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	sessions, err := service.ListHostSessions(ctx, host)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].Code != newer.Code || sessions[1].Code != older.Code {
		t.Fatalf("expected newest first, got %+v", sessions)
	}
	if sessions[0].ParticipantCount != 1 {
		t.Fatalf("expected participant count 1, got %d", sessions[0].ParticipantCount)
	}
}

func TestSnapshotSurvivesBankChanges(t *testing.T) {
	ctx := context.Background()
	questions := dentalQuestions(5)
	loader := memory.NewStaticQuestionLoader(questions)
	service := app.NewSessionService(memory.NewSessionStore(), memory.NewQuestionBank(loader, 0))
	session, err := service.CreateSession(ctx, host, app.CreateSessionParams{Title: "Snap", TotalQuestions: 5, TimerPerQuestion: 30})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// The bank reloads on every call (ttl 0); edits after creation must not reach the snapshot.
	for i := range questions {
		questions[i].Text = "edited"
	}
	_, _ = service.StartSession(ctx, host, session.Code)
	public, _ := service.GetQuestionsForParticipant(ctx, alice, session.Code)
	for _, q := range public {
		if q.Text == "edited" {
			t.Fatalf("snapshot changed after bank edit")
		}
	}
}

func mustCreate(t *testing.T, service *app.SessionService) domain.Session {
	t.Helper()
	session, err := service.CreateSession(context.Background(), host, app.CreateSessionParams{
		Title:            "Quiz A",
		TotalQuestions:   3,
		TimerPerQuestion: 30,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return session
}

func newTestService(n int) (*app.SessionService, map[string]domain.Question) {
	return newTestServiceWithClock(n, time.Now)
}

func newTestServiceWithClock(n int, now func() time.Time) (*app.SessionService, map[string]domain.Question) {
	questions := dentalQuestions(n)
	byID := make(map[string]domain.Question, n)
	for _, q := range questions {
		byID[q.ID] = q
	}
	bank := memory.NewQuestionBank(memory.NewStaticQuestionLoader(questions), 5*time.Minute)
	return app.NewSessionService(memory.NewSessionStore(), bank, app.WithClock(now)), byID
}

func dentalQuestions(n int) []domain.Question {
	questions := make([]domain.Question, n)
	for i := range questions {
		questions[i] = domain.Question{
			ID:            "q" + strconv.Itoa(1000+i),
			Text:          "Dental statement " + strconv.Itoa(i),
			CorrectAnswer: i%3 != 0,
			Explanation:   "Because of reason " + strconv.Itoa(i),
			CategoryID:    "brushing",
			Active:        true,
		}
	}
	return questions
}
