package domain

import "time"

// SessionStatus is the lifecycle state of a live quiz session.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "WAITING"
	StatusActive    SessionStatus = "ACTIVE"
	StatusCompleted SessionStatus = "COMPLETED"
)

// Role is the platform role carried by a verified identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// CanHost reports whether the role may create and run sessions.
func (r Role) CanHost() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Identity is the verified caller handed over by the auth collaborator.
type Identity struct {
	UserID string
	Role   Role
	Name   string
	Avatar string
}

// Session is one live quiz run, addressed by its short code.
type Session struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	Title            string        `json:"title"`
	HostID           string        `json:"hostId"`
	CategoryID       string        `json:"categoryId,omitempty"`
	Status           SessionStatus `json:"status"`
	TimerPerQuestion int           `json:"timerPerQuestion"`
	Shuffle          bool          `json:"shuffle"`
	TotalQuestions   int           `json:"totalQuestions"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// Question is a read-only entry of the true/false question bank.
type Question struct {
	ID            string `json:"id" yaml:"id"`
	Text          string `json:"text" yaml:"text"`
	CorrectAnswer bool   `json:"correctAnswer" yaml:"correctAnswer"`
	Explanation   string `json:"explanation" yaml:"explanation"`
	CategoryID    string `json:"categoryId" yaml:"categoryId"`
	Active        bool   `json:"active" yaml:"active"`
}

// SessionQuestion is one ordered entry of the snapshot bound to a session at creation.
// The question content is copied so later bank edits do not change a running quiz.
type SessionQuestion struct {
	SessionID     string `json:"sessionId"`
	QuestionID    string `json:"questionId"`
	Order         int    `json:"order"`
	Text          string `json:"text"`
	CorrectAnswer bool   `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
	CategoryID    string `json:"categoryId,omitempty"`
}

// PublicQuestion is what participants see before answering: no answer, no explanation.
type PublicQuestion struct {
	QuestionID string `json:"questionId"`
	Order      int    `json:"order"`
	Text       string `json:"text"`
	CategoryID string `json:"categoryId,omitempty"`
}

// ParticipantStatus is the join state of a participant.
type ParticipantStatus string

const StatusJoined ParticipantStatus = "JOINED"

// Participant represents a student in a session and their accumulated score.
type Participant struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"sessionId"`
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName"`
	Avatar      string            `json:"avatar,omitempty"`
	Score       int               `json:"score"`
	Status      ParticipantStatus `json:"status"`
	JoinedAt    time.Time         `json:"joinedAt"`
}

// Public strips account identifiers for the unauthenticated lobby view.
func (p Participant) Public() PublicParticipant {
	return PublicParticipant{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Score:       p.Score,
		Status:      p.Status,
		JoinedAt:    p.JoinedAt,
	}
}

// PublicParticipant is what anyone holding the session code may see.
type PublicParticipant struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Avatar      string            `json:"avatar,omitempty"`
	Score       int               `json:"score"`
	Status      ParticipantStatus `json:"status"`
	JoinedAt    time.Time         `json:"joinedAt"`
}

// AnswerRecord is the durable claim of one participant answering one question.
type AnswerRecord struct {
	SessionID     string
	ParticipantID string
	QuestionID    string
	Answer        bool
	Correct       bool
	Points        int
	AnsweredAt    time.Time
}

// SubmissionResult summarizes the outcome of a submission for a single participant.
type SubmissionResult struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	CorrectAnswer bool   `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
	TotalScore    int    `json:"totalScore"`
}

// SessionSummary is returned to clients that join or look up a session.
type SessionSummary struct {
	SessionID        string        `json:"sessionId"`
	Code             string        `json:"code"`
	Title            string        `json:"title"`
	Status           SessionStatus `json:"status"`
	TimerPerQuestion int           `json:"timerPerQuestion"`
	TotalQuestions   int           `json:"totalQuestions"`
	ParticipantCount int           `json:"participantCount"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	Session       SessionSummary `json:"session"`
	ParticipantID string         `json:"participantId"`
	Score         int            `json:"score"`
}

// ParticipantList is the lobby/waiting-room view polled by clients.
type ParticipantList struct {
	Code         string              `json:"code"`
	Status       SessionStatus       `json:"status"`
	Count        int                 `json:"count"`
	Participants []PublicParticipant `json:"participants"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Position      int    `json:"position"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Avatar        string `json:"avatar,omitempty"`
	Score         int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a quiz session.
type Leaderboard struct {
	Code      string             `json:"code"`
	Status    SessionStatus      `json:"status"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// StatusUpdate is the read-only state pushed or polled by lobby clients.
type StatusUpdate struct {
	Code             string        `json:"code"`
	Status           SessionStatus `json:"status"`
	ParticipantCount int           `json:"participantCount"`
}

// AnswerSubmission models the scoring signal from clients.
// TimeLeftSeconds is reported by the client and not cross-checked against server time.
type AnswerSubmission struct {
	QuestionID      string
	Answer          bool
	TimeLeftSeconds float64
}
