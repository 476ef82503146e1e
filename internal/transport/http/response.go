package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
)

// envelope is the uniform response body for every endpoint.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// Stable error codes surfaced to clients.
const (
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeNotFound                = "NOT_FOUND"
	CodeValidation              = "VALIDATION_ERROR"
	CodeSessionNotStarted       = "SESSION_NOT_STARTED"
	CodeSessionNotActive        = "SESSION_NOT_ACTIVE"
	CodeSessionEnded            = "SESSION_ENDED"
	CodeAlreadyAnswered         = "ALREADY_ANSWERED"
	CodeInsufficientQuestions   = "INSUFFICIENT_QUESTIONS"
	CodeCodeGenerationExhausted = "CODE_GENERATION_EXHAUSTED"
	CodeInternal                = "INTERNAL_ERROR"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{domain.ErrValidation, http.StatusBadRequest, CodeValidation},
	{domain.ErrSessionNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrParticipantNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrQuestionNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrSessionNotStarted, http.StatusConflict, CodeSessionNotStarted},
	{domain.ErrSessionNotActive, http.StatusConflict, CodeSessionNotActive},
	{domain.ErrSessionEnded, http.StatusConflict, CodeSessionEnded},
	{domain.ErrAlreadyAnswered, http.StatusConflict, CodeAlreadyAnswered},
	{domain.ErrInsufficientQuestions, http.StatusUnprocessableEntity, CodeInsufficientQuestions},
	{domain.ErrCodeGenerationExhausted, http.StatusInternalServerError, CodeCodeGenerationExhausted},
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// writeError maps domain errors to stable codes. Anything unrecognized is logged
// and reported as INTERNAL_ERROR without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, envelope{
				Message: m.target.Error(),
				Error:   &errorBody{Code: m.code, Details: details(err, m.target)},
			})
			return
		}
	}

	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, envelope{
		Message: "internal server error",
		Error:   &errorBody{Code: CodeInternal},
	})
}

// details returns the wrapped context (e.g. the offending field) when it adds anything.
func details(err, target error) string {
	if err.Error() == target.Error() {
		return ""
	}
	return err.Error()
}
