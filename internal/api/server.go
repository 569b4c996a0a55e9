// Package api is the control-plane surface: job and provider operations over
// HTTP plus the progress websocket.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mfleet/streamvault/internal/app"
	"github.com/mfleet/streamvault/internal/config"
	"github.com/mfleet/streamvault/internal/models"
	"github.com/mfleet/streamvault/internal/scheduler"
)

// JobStore is the job_history read surface the handlers need.
type JobStore interface {
	ListJobHistory(limit int) ([]*models.JobHistory, error)
}

// ProviderStore is the provider read surface the handlers need.
type ProviderStore interface {
	GetProviders(enabledOnly bool) ([]*models.ProviderConfig, error)
}

type Server struct {
	config    *config.Config
	app       *app.Context
	sched     *scheduler.Scheduler
	queue     scheduler.Enqueuer
	jobs      JobStore
	providers ProviderStore
	hub       *Hub
	router    chi.Router
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func NewServer(cfg *config.Config, appCtx *app.Context, sched *scheduler.Scheduler,
	queue scheduler.Enqueuer, jobs JobStore, providers ProviderStore, hub *Hub) *Server {
	s := &Server{
		config:    cfg,
		app:       appCtx,
		sched:     sched,
		queue:     queue,
		jobs:      jobs,
		providers: providers,
		hub:       hub,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/ws/progress", s.handleProgressSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/api/jobs", s.handleListJobs)
		r.Post("/api/jobs/{name}/run", s.handleRunJob)
		r.Get("/api/providers", s.handleListProviders)
		r.Post("/api/providers/{id}/actions/{action}", s.handleProviderAction)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireToken enforces the static API token when one is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: status < 400, Data: data})
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Success: false, Error: fmt.Sprintf(format, args...)})
}
