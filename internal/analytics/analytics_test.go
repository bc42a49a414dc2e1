package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEmptyStore(t *testing.T) {
	s := NewStore(t.TempDir(), zerolog.Nop())

	doc := s.All()
	require.Empty(t, doc.ScenarioUsage)
	require.Empty(t, doc.ExerciseHistory)

	usage, history := s.ForScenario("gps")
	require.Zero(t, usage.TotalDeployments)
	require.Empty(t, history)
}

func TestRecordDeploymentAndCompletion(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	s.RecordDeployment("gps")
	s.RecordDeployment("gps")
	s.RecordDeployment("comms")

	s.RecordCompletion("gps", 30, 9, 12)
	s.RecordCompletion("gps", 20, 12, 12)

	usage, history := s.ForScenario("gps")
	require.Equal(t, 2, usage.TotalDeployments)
	require.Equal(t, 2, usage.CompletionCount)
	require.Equal(t, 50, usage.TotalDurationMinutes)
	require.Equal(t, 25, usage.AverageDurationMinutes)
	require.NotEmpty(t, usage.LastDeployment)

	require.Len(t, history, 2)
	require.Equal(t, 75.0, history[0].CompletionRate)
	require.Equal(t, 100.0, history[1].CompletionRate)
	require.Equal(t, 9, history[0].InjectsDelivered)

	// Other scenarios are untouched.
	other, otherHistory := s.ForScenario("comms")
	require.Equal(t, 1, other.TotalDeployments)
	require.Zero(t, other.CompletionCount)
	require.Empty(t, otherHistory)

	// The document persists as JSON under <root>/data.
	require.Equal(t, filepath.Join(root, "data", "analytics.json"), s.Path())
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var onDisk Document
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk.ExerciseHistory, 2)
}

func TestCompletionRateWithNoInjects(t *testing.T) {
	s := NewStore(t.TempDir(), zerolog.Nop())
	s.RecordCompletion("empty", 5, 0, 0)

	_, history := s.ForScenario("empty")
	require.Len(t, history, 1)
	require.Equal(t, 0.0, history[0].CompletionRate)
}

func TestSurvivesCorruptFile(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, zerolog.Nop())

	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{broken"), 0o644))

	s.RecordDeployment("gps")
	usage, _ := s.ForScenario("gps")
	require.Equal(t, 1, usage.TotalDeployments)
}

func TestReloadAcrossInstances(t *testing.T) {
	root := t.TempDir()
	NewStore(root, zerolog.Nop()).RecordDeployment("gps")

	s2 := NewStore(root, zerolog.Nop())
	usage, _ := s2.ForScenario("gps")
	require.Equal(t, 1, usage.TotalDeployments)
}
