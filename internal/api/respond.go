package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rangeops/excon/internal/exercise"
	"github.com/rangeops/excon/internal/library"
	"github.com/rangeops/excon/internal/scenario"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes. Invalid lifecycle
// transitions carry the current state so callers can resync.
func writeError(w http.ResponseWriter, err error) {
	var te *exercise.TransitionError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":         err.Error(),
			"current_state": string(te.Current),
		})
		return
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, scenario.ErrNotFound),
		errors.Is(err, exercise.ErrNotActive),
		errors.Is(err, library.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, exercise.ErrAlreadyActive):
		code = http.StatusConflict
	case errors.Is(err, scenario.ErrMalformed),
		errors.Is(err, scenario.ErrTimelineMissing),
		errors.Is(err, library.ErrRejected),
		errors.Is(err, library.ErrInvalidPath):
		code = http.StatusBadRequest
	case errors.Is(err, exercise.ErrDeployFailed):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
