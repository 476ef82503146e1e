package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/app"
	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// WSHandler pushes session status changes to lobby and waiting-room clients.
// It is a push layer over the same store polling as GET /participants; clients that
// cannot hold a socket keep polling.
type WSHandler struct {
	service      *app.SessionService
	pollInterval time.Duration
	upgrader     websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, pollInterval time.Duration, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		service:      service,
		pollInterval: pollInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS streams {type, payload} messages: "status" for the initial state and
// participant count changes, "started" when the session becomes ACTIVE and "ended"
// when it completes. The socket closes after "ended".
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, stop, err := h.service.WatchStatus(ctx, sessionCode(r), h.pollInterval)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Inbound frames are ignored; reading detects the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last domain.SessionStatus
	for update := range updates {
		msg := outboundMessage[domain.StatusUpdate]{Type: messageType(last, update.Status), Payload: update}
		last = update.Status

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("ws write failed", "error", err)
			return
		}
	}

	if last == domain.StatusCompleted {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(writeWait))
	}
}

func messageType(previous, current domain.SessionStatus) string {
	if previous == "" || previous == current {
		return "status"
	}
	switch current {
	case domain.StatusActive:
		return "started"
	case domain.StatusCompleted:
		return "ended"
	}
	return "status"
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
