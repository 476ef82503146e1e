package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

const (
	// BasePoints is awarded for any correct answer.
	BasePoints = 500
	// MaxSpeedBonus is added on top for an instant correct answer, scaled by time left.
	MaxSpeedBonus = 500
)

// CalculatePoints returns 0 for a wrong answer, otherwise the base plus a linear speed bonus.
func CalculatePoints(correct bool, timeLeftSeconds float64, timerSeconds int) int {
	if !correct {
		return 0
	}
	ratio := 0.0
	if timerSeconds > 0 && !math.IsNaN(timeLeftSeconds) {
		ratio = timeLeftSeconds / float64(timerSeconds)
	}
	ratio = math.Max(0, math.Min(1, ratio))
	return BasePoints + int(math.Floor(ratio*MaxSpeedBonus))
}

// SubmitAnswer scores one answer and applies it to the participant's total.
// The session status is read from the store on every call and checked again
// inside the atomic store write, so a session ended mid-request rejects the answer.
func (s *SessionService) SubmitAnswer(ctx context.Context, caller domain.Identity, code string, submission domain.AnswerSubmission) (domain.SubmissionResult, error) {
	if caller.UserID == "" {
		return domain.SubmissionResult{}, domain.ErrUnauthorized
	}
	if submission.QuestionID == "" {
		return domain.SubmissionResult{}, fmt.Errorf("%w: questionId is required", domain.ErrValidation)
	}

	session, err := s.findByCode(ctx, code)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	switch session.Status {
	case domain.StatusWaiting:
		return domain.SubmissionResult{}, domain.ErrSessionNotStarted
	case domain.StatusCompleted:
		return domain.SubmissionResult{}, domain.ErrSessionNotActive
	}

	participant, err := s.sessions.FindParticipant(ctx, session.ID, caller.UserID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	question, err := s.sessions.FindSessionQuestion(ctx, session.ID, submission.QuestionID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	correct := question.CorrectAnswer == submission.Answer
	points := CalculatePoints(correct, submission.TimeLeftSeconds, session.TimerPerQuestion)

	total, err := s.sessions.RecordAnswer(ctx, domain.AnswerRecord{
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		QuestionID:    question.QuestionID,
		Answer:        submission.Answer,
		Correct:       correct,
		Points:        points,
		AnsweredAt:    s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) || errors.Is(err, domain.ErrSessionNotActive) {
			return domain.SubmissionResult{}, err
		}
		return domain.SubmissionResult{}, fmt.Errorf("record answer: %w", err)
	}

	slog.Debug("answer recorded",
		"session_id", session.ID,
		"participant_id", participant.ID,
		"question_id", question.QuestionID,
		"correct", correct,
		"points", points,
	)
	return domain.SubmissionResult{
		QuestionID:    question.QuestionID,
		Correct:       correct,
		Points:        points,
		CorrectAnswer: question.CorrectAnswer,
		Explanation:   question.Explanation,
		TotalScore:    total,
	}, nil
}
