// Package scenario loads exercise definitions and team timelines from the
// scenarios root directory.
package scenario

import "errors"

var (
	// ErrNotFound means the scenario file does not exist.
	ErrNotFound = errors.New("scenario: not found")
	// ErrMalformed means a scenario or timeline file failed to parse or
	// violates the schema.
	ErrMalformed = errors.New("scenario: malformed")
	// ErrTimelineMissing means a referenced timeline file is absent.
	ErrTimelineMissing = errors.New("scenario: timeline file missing")
)

// Scenario is an exercise definition. Immutable after load.
type Scenario struct {
	ID              string `json:"-"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	DashboardImage  string `json:"dashboard_image,omitempty"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	IQFile          string `json:"iq_file,omitempty"`
	// SDRTeam names the team whose inject feed drives the SDR worker.
	// Empty means the conventional "sdr-rf".
	SDRTeam string `json:"sdr_team,omitempty"`
	Teams   []Team `json:"teams"`
}

// Team is one participating team within a scenario.
type Team struct {
	ID             string `json:"id"`
	DashboardPort  int    `json:"dashboard_port,omitempty"`
	DashboardImage string `json:"dashboard_image,omitempty"`
	TimelineFile   string `json:"timeline_file"`
}

// Timeline is the ordered inject sequence for one team. After load the
// injects are stable-sorted by time ascending.
type Timeline struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Injects []Inject `json:"injects"`
}

// Inject is a scripted stimulus. Only the envelope (ID, Time, Type) is
// validated; Fields preserves the full source document verbatim so that
// untyped content, media and action values survive re-publication.
type Inject struct {
	ID     string
	Time   int
	Type   string
	Fields map[string]any
}

// TeamIDs returns the scenario's team identifiers in declaration order.
func (s *Scenario) TeamIDs() []string {
	ids := make([]string, 0, len(s.Teams))
	for _, t := range s.Teams {
		ids = append(ids, t.ID)
	}
	return ids
}
