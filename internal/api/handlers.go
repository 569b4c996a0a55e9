package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mfleet/streamvault/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// jobView joins a catalog entry with its history row.
type jobView struct {
	Name       string             `json:"name"`
	ProviderID string             `json:"provider_id,omitempty"`
	Interval   string             `json:"interval"`
	History    *models.JobHistory `json:"history,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	history, err := s.jobs.ListJobHistory(100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list job history: %v", err)
		return
	}
	byName := make(map[string]*models.JobHistory, len(history))
	for _, h := range history {
		byName[h.JobName] = h
	}

	var out []jobView
	for _, j := range s.sched.Jobs() {
		out = append(out, jobView{
			Name:       j.Name,
			ProviderID: j.ProviderID,
			Interval:   j.Interval.String(),
			History:    byName[j.Name],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	found := false
	for _, j := range s.sched.Jobs() {
		if j.Name == name {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown job %q", name)
		return
	}
	if err := s.queue.Enqueue(name); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "queued"})
}

// providerView hides credentials from the listing.
type providerView struct {
	ID          string              `json:"id"`
	Kind        models.ProviderKind `json:"type"`
	APIURL      string              `json:"api_url"`
	Enabled     bool                `json:"enabled"`
	Priority    int                 `json:"priority"`
	LastUpdated time.Time           `json:"lastUpdated"`
	Jobs        []string            `json:"jobs"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.providers.GetProviders(false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list providers: %v", err)
		return
	}
	out := make([]providerView, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerView{
			ID:          p.ID,
			Kind:        p.Kind,
			APIURL:      p.APIURL,
			Enabled:     p.Enabled,
			Priority:    p.Priority,
			LastUpdated: p.LastUpdated,
			Jobs:        s.sched.ProviderJobNames(p.ID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

var validActions = map[models.ProviderAction]bool{
	models.ActionEnabled:           true,
	models.ActionDisabled:          true,
	models.ActionCreated:           true,
	models.ActionDeleted:           true,
	models.ActionCategoriesChanged: true,
}

// handleProviderAction queues a lifecycle action and nudges the cleanup job
// so the control plane sees the effect quickly.
func (s *Server) handleProviderAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := models.ProviderAction(chi.URLParam(r, "action"))
	if !validActions[action] {
		writeError(w, http.StatusBadRequest, "unknown action %q", action)
		return
	}
	s.app.EnqueueProviderAction(id, action)
	if err := s.queue.Enqueue("provider-cleanup"); err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue cleanup: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"provider": id, "action": string(action), "status": "queued",
	})
}
