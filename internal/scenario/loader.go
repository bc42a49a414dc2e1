package scenario

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Loader reads scenarios and their timelines from a root directory. It never
// mutates files.
type Loader struct {
	root   string
	logger zerolog.Logger
}

func NewLoader(root string, logger zerolog.Logger) *Loader {
	return &Loader{root: root, logger: logger}
}

// Root returns the scenarios root directory.
func (l *Loader) Root() string {
	return l.root
}

// Load reads and validates the named scenario and every referenced team
// timeline. Timelines are returned stable-sorted by inject time ascending.
func (l *Loader) Load(id string) (*Scenario, map[string]*Timeline, error) {
	sc, err := l.LoadScenario(id)
	if err != nil {
		return nil, nil, err
	}

	timelines := make(map[string]*Timeline, len(sc.Teams))
	for _, team := range sc.Teams {
		if team.TimelineFile == "" {
			continue
		}
		tl, err := l.LoadTimeline(team.TimelineFile)
		if err != nil {
			return nil, nil, fmt.Errorf("team %s: %w", team.ID, err)
		}
		timelines[team.ID] = tl
	}

	l.logger.Info().
		Str("scenario", id).
		Int("teams", len(sc.Teams)).
		Msg("scenario loaded")
	return sc, timelines, nil
}

// LoadScenario reads and validates a single scenario file.
func (l *Loader) LoadScenario(id string) (*Scenario, error) {
	path := filepath.Join(l.root, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read scenario %s: %w", id, err)
	}

	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, id, err)
	}
	sc.ID = id

	seen := make(map[string]struct{}, len(sc.Teams))
	for _, team := range sc.Teams {
		if team.ID == "" {
			return nil, fmt.Errorf("%w: %s: team with empty id", ErrMalformed, id)
		}
		if _, dup := seen[team.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate team id %q", ErrMalformed, id, team.ID)
		}
		seen[team.ID] = struct{}{}
	}
	return &sc, nil
}

// LoadTimeline reads and validates one timeline file (path relative to the
// scenarios root).
func (l *Loader) LoadTimeline(file string) (*Timeline, error) {
	path := filepath.Join(l.root, file)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimelineMissing, file)
		}
		return nil, fmt.Errorf("read timeline %s: %w", file, err)
	}

	var doc struct {
		ID      string           `json:"id"`
		Name    string           `json:"name"`
		Injects []map[string]any `json:"injects"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, file, err)
	}

	tl := &Timeline{ID: doc.ID, Name: doc.Name, Injects: make([]Inject, 0, len(doc.Injects))}
	seen := make(map[string]struct{}, len(doc.Injects))
	for i, fields := range doc.Injects {
		inj, err := parseInject(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: inject %d: %v", ErrMalformed, file, i, err)
		}
		if _, dup := seen[inj.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate inject id %q", ErrMalformed, file, inj.ID)
		}
		seen[inj.ID] = struct{}{}
		tl.Injects = append(tl.Injects, inj)
	}

	// Stable sort preserves input order for injects sharing a second.
	sort.SliceStable(tl.Injects, func(a, b int) bool {
		return tl.Injects[a].Time < tl.Injects[b].Time
	})
	return tl, nil
}

// parseInject validates the inject envelope. Everything beyond id, time and
// type is opaque and carried through untouched.
func parseInject(fields map[string]any) (Inject, error) {
	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return Inject{}, fmt.Errorf("missing or invalid id")
	}

	rawTime, ok := fields["time"].(float64)
	if !ok {
		return Inject{}, fmt.Errorf("inject %s: missing or invalid time", id)
	}
	if rawTime < 0 || rawTime != math.Trunc(rawTime) {
		return Inject{}, fmt.Errorf("inject %s: time must be a non-negative integer", id)
	}

	typ, ok := fields["type"].(string)
	if !ok || typ == "" {
		return Inject{}, fmt.Errorf("inject %s: missing or invalid type", id)
	}

	return Inject{ID: id, Time: int(rawTime), Type: typ, Fields: fields}, nil
}
