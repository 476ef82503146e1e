package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/NDI05/ums-dental-platform-sub001/internal/app"
	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/go-chi/chi/v5"
)

// SessionHandler exposes the session use cases over JSON.
type SessionHandler struct {
	service *app.SessionService
}

func NewSessionHandler(service *app.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type createSessionRequest struct {
	Title            string `json:"title"`
	CategoryID       string `json:"categoryId"`
	TotalQuestions   int    `json:"totalQuestions"`
	TimerPerQuestion int    `json:"timerPerQuestion"`
	Shuffle          *bool  `json:"shuffle"`
}

type submitAnswerRequest struct {
	QuestionID      string   `json:"questionId"`
	Answer          *bool    `json:"answer"`
	TimeLeftSeconds *float64 `json:"timeLeftSeconds"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	shuffle := true
	if req.Shuffle != nil {
		shuffle = *req.Shuffle
	}

	session, err := h.service.CreateSession(r.Context(), identityFrom(r.Context()), app.CreateSessionParams{
		Title:            req.Title,
		CategoryID:       req.CategoryID,
		TotalQuestions:   req.TotalQuestions,
		TimerPerQuestion: req.TimerPerQuestion,
		Shuffle:          shuffle,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "session created", session)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListHostSessions(r.Context(), identityFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", sessions)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSession(r.Context(), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", summary)
}

func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Join(r.Context(), identityFrom(r.Context()), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "joined session", result)
}

func (h *SessionHandler) Participants(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListParticipants(r.Context(), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	update, err := h.service.Status(r.Context(), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", update)
}

func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Leaderboard(r.Context(), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", board)
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.StartSession(r.Context(), identityFrom(r.Context()), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "session started", summary)
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.EndSession(r.Context(), identityFrom(r.Context()), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "session ended", summary)
}

func (h *SessionHandler) Questions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.GetQuestionsForParticipant(r.Context(), identityFrom(r.Context()), sessionCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", questions)
}

func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	if caller.UserID == "" {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}

	var req submitAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Answer == nil {
		writeError(w, r, fmt.Errorf("%w: answer is required", domain.ErrValidation))
		return
	}
	var timeLeft float64
	if req.TimeLeftSeconds != nil {
		timeLeft = *req.TimeLeftSeconds
	}

	result, err := h.service.SubmitAnswer(r.Context(), caller, sessionCode(r), domain.AnswerSubmission{
		QuestionID:      req.QuestionID,
		Answer:          *req.Answer,
		TimeLeftSeconds: timeLeft,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "answer recorded", result)
}

func sessionCode(r *http.Request) string {
	return app.NormalizeCode(chi.URLParam(r, "code"))
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrValidation, err)
	}
	return nil
}
