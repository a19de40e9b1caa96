// Package api exposes the automation invocation surface over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/finauto/internal/finauto/ports"
)

type Server struct {
	processor ports.Processor
	runs      ports.RunHistoryPort
	auth      *Authenticator
	now       func() time.Time
}

func NewServer(processor ports.Processor, runs ports.RunHistoryPort) *Server {
	return &Server{
		processor: processor,
		runs:      runs,
		now:       time.Now,
	}
}

// SetAuthenticator requires a valid bearer token on every /api route.
// Without one the API is unauthenticated.
func (s *Server) SetAuthenticator(a *Authenticator) {
	s.auth = a
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Route("/automations", func(r chi.Router) {
			r.Post("/process", s.processAutomations)
			r.Post("/{id}/run", s.runAutomation)
			r.Get("/{id}/runs", s.listAutomationRuns)
		})
		r.Post("/schedules/preview", s.previewSchedule)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
