package api

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rangeops/excon/internal/exercise"
	"github.com/rangeops/excon/internal/status"
)

func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*exercise.Engine, string, bool) {
	id := chi.URLParam(r, "id")
	eng, ok := s.table.Get(id)
	if !ok {
		writeError(w, exercise.ErrNotActive)
		return nil, id, false
	}
	return eng, id, true
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	eng, err := s.table.Deploy(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	s.analytics.RecordDeployment(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "deployed",
		"exercise_id":    id,
		"state":          string(eng.State()),
		"dashboard_urls": eng.DashboardURLs(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	eng, id, ok := s.engine(w, r)
	if !ok {
		return
	}
	if err := eng.Begin(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "exercise_id": id})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	eng, id, ok := s.engine(w, r)
	if !ok {
		return
	}
	elapsed, err := eng.Pause(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "paused",
		"exercise_id": id,
		"elapsed":     elapsed,
		"timer":       status.FormatElapsed(elapsed),
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	eng, id, ok := s.engine(w, r)
	if !ok {
		return
	}
	if err := eng.Resume(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "resumed", "exercise_id": id})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	eng, id, ok := s.engine(w, r)
	if !ok {
		return
	}
	elapsed := eng.Elapsed()
	if err := eng.Finish(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	minutes := int(math.Round(float64(elapsed) / 60))
	s.analytics.RecordCompletion(id, minutes, eng.DeliveredCount(), eng.TotalInjects())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "finished",
		"exercise_id": id,
		"elapsed":     elapsed,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.table.Stop(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "exercise_id": id})
}

func (s *Server) handleExerciseStatus(w http.ResponseWriter, r *http.Request) {
	eng, id, ok := s.engine(w, r)
	if !ok {
		return
	}
	doc := eng.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"exercise_id": id,
		"name":        eng.Scenario().Name,
		"state":       doc.State,
		"timer":       doc.Timer,
		"teams":       doc.Teams,
	})
}

// handleCurrentExercise reports the single active exercise, if any. The
// reference deployment drives one exercise at a time.
func (s *Server) handleCurrentExercise(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.table.First()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	doc := eng.Status(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"active":      true,
		"exercise_id": eng.Scenario().ID,
		"name":        eng.Scenario().Name,
		"state":       doc.State,
		"timer":       doc.Timer,
		"teams":       doc.Teams,
	})
}
