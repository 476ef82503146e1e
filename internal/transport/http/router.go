package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthCheck reports whether a dependency (Redis, Postgres) is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the transport-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	HealthChecks   map[string]HealthCheck
}

// NewRouter wires the session routes, middlewares and CORS.
func NewRouter(sessions *SessionHandler, ws *WSHandler, verifier IdentityVerifier, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(cfg.HealthChecks))

	r.Route("/sessions", func(r chi.Router) {
		r.Use(identify(verifier))

		r.Post("/", sessions.Create)
		r.Get("/", sessions.List)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", sessions.Get)
			r.Post("/join", sessions.Join)
			r.Get("/participants", sessions.Participants)
			r.Get("/status", sessions.Status)
			r.Get("/leaderboard", sessions.Leaderboard)
			r.Post("/start", sessions.Start)
			r.Get("/questions", sessions.Questions)
			r.Post("/submit", sessions.Submit)
			r.Post("/end", sessions.End)
			r.Get("/ws", ws.ServeWS)
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			writeJSON(w, http.StatusServiceUnavailable, envelope{
				Message: "dependency unavailable",
				Data:    status,
				Error:   &errorBody{Code: CodeInternal},
			})
			return
		}
		writeData(w, http.StatusOK, "ok", status)
	}
}
