package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleServiceStatus reports the health of the orchestrator's
// collaborators: the status mirror, the broker connection and how many
// exercises are live.
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	storeUp := true
	if hc, ok := s.store.(interface{ HealthCheck(context.Context) error }); ok {
		storeUp = hc.HealthCheck(r.Context()) == nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"store_connected":  storeUp,
		"broker_connected": s.busUp(),
		"active_exercises": s.table.Active(),
	})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analytics.All())
}

func (s *Server) handleScenarioAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	usage, history := s.analytics.ForScenario(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario_id": id,
		"usage":       usage,
		"history":     history,
	})
}
