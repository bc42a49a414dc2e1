// Package analytics keeps per-scenario usage counters in a JSON document
// under the scenarios root. All updates are best-effort: a write failure is
// logged and never blocks exercise control.
package analytics

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// Usage aggregates deployments and completions for one scenario.
type Usage struct {
	TotalDeployments       int    `json:"total_deployments"`
	TotalDurationMinutes   int    `json:"total_duration_minutes"`
	CompletionCount        int    `json:"completion_count"`
	AverageDurationMinutes int    `json:"average_duration_minutes"`
	LastDeployment         string `json:"last_deployment,omitempty"`
}

// HistoryEntry records one completed exercise run.
type HistoryEntry struct {
	ScenarioID       string  `json:"scenario_id"`
	StartTime        string  `json:"start_time"`
	DurationMinutes  int     `json:"duration_minutes"`
	InjectsDelivered int     `json:"injects_delivered"`
	InjectsTotal     int     `json:"injects_total"`
	CompletionRate   float64 `json:"completion_rate"`
}

// Document is the full analytics file layout.
type Document struct {
	ScenarioUsage   map[string]Usage `json:"scenario_usage"`
	ExerciseHistory []HistoryEntry   `json:"exercise_history"`
}

// Store reads and writes the analytics document.
type Store struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewStore creates a store writing to <scenariosRoot>/data/analytics.json.
func NewStore(scenariosRoot string, logger zerolog.Logger) *Store {
	return &Store{
		path:   filepath.Join(scenariosRoot, "data", "analytics.json"),
		logger: logger,
	}
}

func (s *Store) load() Document {
	doc := Document{
		ScenarioUsage:   make(map[string]Usage),
		ExerciseHistory: []HistoryEntry{},
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn().Err(err).Msg("analytics file unreadable, starting fresh")
		return Document{ScenarioUsage: make(map[string]Usage), ExerciseHistory: []HistoryEntry{}}
	}
	if doc.ScenarioUsage == nil {
		doc.ScenarioUsage = make(map[string]Usage)
	}
	if doc.ExerciseHistory == nil {
		doc.ExerciseHistory = []HistoryEntry{}
	}
	return doc
}

func (s *Store) save(doc Document) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Msg("analytics marshal failed")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn().Err(err).Msg("analytics dir create failed")
		return
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Warn().Err(err).Msg("analytics write failed")
	}
}

// RecordDeployment bumps the deployment counter for a scenario.
func (s *Store) RecordDeployment(scenarioID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	usage := doc.ScenarioUsage[scenarioID]
	usage.TotalDeployments++
	usage.LastDeployment = time.Now().Format(time.RFC3339)
	doc.ScenarioUsage[scenarioID] = usage
	s.save(doc)
}

// RecordCompletion appends a history entry and updates the usage averages.
func (s *Store) RecordCompletion(scenarioID string, durationMinutes, delivered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(delivered)/float64(total)*1000) / 10
	}

	doc := s.load()
	doc.ExerciseHistory = append(doc.ExerciseHistory, HistoryEntry{
		ScenarioID:       scenarioID,
		StartTime:        time.Now().Format(time.RFC3339),
		DurationMinutes:  durationMinutes,
		InjectsDelivered: delivered,
		InjectsTotal:     total,
		CompletionRate:   rate,
	})

	usage := doc.ScenarioUsage[scenarioID]
	usage.CompletionCount++
	usage.TotalDurationMinutes += durationMinutes
	if usage.CompletionCount > 0 {
		usage.AverageDurationMinutes = int(math.Round(float64(usage.TotalDurationMinutes) / float64(usage.CompletionCount)))
	}
	doc.ScenarioUsage[scenarioID] = usage
	s.save(doc)
}

// All returns the full analytics document.
func (s *Store) All() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ForScenario returns the usage and history slice for one scenario.
func (s *Store) ForScenario(scenarioID string) (Usage, []HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	history := make([]HistoryEntry, 0)
	for _, entry := range doc.ExerciseHistory {
		if entry.ScenarioID == scenarioID {
			history = append(history, entry)
		}
	}
	return doc.ScenarioUsage[scenarioID], history
}

// Path returns the analytics file location; used in tests.
func (s *Store) Path() string {
	return s.path
}
