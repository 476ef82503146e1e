package domain

import "errors"

var (
	// ErrUnauthorized is returned when a call requires a verified identity and none was supplied.
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden is returned when the caller is authenticated but lacks the role or ownership.
	ErrForbidden = errors.New("not allowed to perform this action")
	// ErrValidation marks malformed input; wrap it with the offending field.
	ErrValidation = errors.New("invalid input")

	// ErrSessionNotFound is returned when no session matches the code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a question ID is not part of the session or bank.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrSessionNotStarted is returned while the session is still waiting for the host.
	ErrSessionNotStarted = errors.New("quiz session has not started")
	// ErrSessionNotActive is returned when answers are submitted outside the active phase.
	ErrSessionNotActive = errors.New("quiz session is not active")
	// ErrSessionEnded is returned for actions that are not allowed once a session completed.
	ErrSessionEnded = errors.New("quiz session has ended")
	// ErrAlreadyAnswered is returned when a participant answers the same question twice.
	ErrAlreadyAnswered = errors.New("question already answered")

	// ErrInsufficientQuestions is returned when the pool is smaller than the requested count.
	ErrInsufficientQuestions = errors.New("not enough active questions")
	// ErrCodeGenerationExhausted is returned when every code attempt collided.
	ErrCodeGenerationExhausted = errors.New("could not allocate a unique session code")

	// ErrCodeTaken is reported by stores when the session code is already claimed.
	ErrCodeTaken = errors.New("session code already in use")
	// ErrStatusConflict is reported by stores when a conditional status update finds another status.
	ErrStatusConflict = errors.New("session status changed concurrently")
)
