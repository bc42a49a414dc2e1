package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/rangeops/excon/internal/scenario"
)

const maxTimelineBytes = 4 << 20 // 4 MB

func (s *Server) handleListScenarios(w http.ResponseWriter, _ *http.Request) {
	list, err := s.index.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": list})
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sc, err := s.loader.LoadScenario(id)
	if err != nil {
		writeError(w, err)
		return
	}

	// Inject counts are informational here; a team whose timeline is
	// missing or broken reports -1 instead of failing the whole view.
	counts := make(map[string]int, len(sc.Teams))
	for _, team := range sc.Teams {
		counts[team.ID] = -1
		if team.TimelineFile == "" {
			counts[team.ID] = 0
			continue
		}
		if tl, err := s.loader.LoadTimeline(team.TimelineFile); err == nil {
			counts[team.ID] = len(tl.Injects)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":      sc,
		"inject_counts": counts,
	})
}

// timelineFile resolves a team's timeline path from its scenario document.
// The path always comes from the scenario file, never from the request.
func (s *Server) timelineFile(scenarioID, teamID string) (string, error) {
	sc, err := s.loader.LoadScenario(scenarioID)
	if err != nil {
		return "", err
	}
	for _, team := range sc.Teams {
		if team.ID == teamID {
			if team.TimelineFile == "" {
				return "", fmt.Errorf("%w: team %s has no timeline", scenario.ErrTimelineMissing, teamID)
			}
			return team.TimelineFile, nil
		}
	}
	return "", fmt.Errorf("%w: team %s", scenario.ErrNotFound, teamID)
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	file, err := s.timelineFile(chi.URLParam(r, "id"), chi.URLParam(r, "team"))
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := os.ReadFile(filepath.Join(s.loader.Root(), file))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, fmt.Errorf("%w: %s", scenario.ErrTimelineMissing, file))
			return
		}
		writeError(w, err)
		return
	}
	if !json.Valid(data) {
		writeError(w, fmt.Errorf("%w: %s", scenario.ErrMalformed, file))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handlePutTimeline(w http.ResponseWriter, r *http.Request) {
	scenarioID := chi.URLParam(r, "id")
	teamID := chi.URLParam(r, "team")

	file, err := s.timelineFile(scenarioID, teamID)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTimelineBytes+1))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(body) > maxTimelineBytes {
		writeError(w, fmt.Errorf("%w: timeline exceeds %d MB limit", scenario.ErrMalformed, maxTimelineBytes>>20))
		return
	}

	backup, err := s.loader.UpdateTimeline(file, body)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info().
		Str("scenario", scenarioID).
		Str("team", teamID).
		Msg("timeline replaced")
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "updated",
		"file":   file,
		"backup": backup,
	})
}
