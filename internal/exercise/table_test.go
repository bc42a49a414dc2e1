package exercise

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rangeops/excon/internal/bus"
	"github.com/rangeops/excon/internal/launch"
	"github.com/rangeops/excon/internal/scenario"
	"github.com/rangeops/excon/internal/status"
)

func writeScenarioDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	scenarioDoc := `{
		"name": "Comms Blackout",
		"duration_minutes": 30,
		"teams": [
			{"id": "alpha", "timeline_file": "timelines/alpha.json"}
		]
	}`
	timelineDoc := `{
		"id": "alpha-tl",
		"injects": [
			{"id": "inj-1", "time": 0, "type": "email", "subject": "kickoff"}
		]
	}`

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "timelines"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blackout.json"), []byte(scenarioDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "timelines", "alpha.json"), []byte(timelineDoc), 0o644))
	return dir
}

func newTable(t *testing.T, dir string) (*Table, *launch.MemoryLauncher) {
	t.Helper()
	launcher := launch.NewMemoryLauncher()
	loader := scenario.NewLoader(dir, zerolog.Nop())
	table := NewTable(loader, bus.NewMemoryBus(), status.NewMemoryStore(), launcher, Options{
		TickInterval: 5 * time.Millisecond,
	}, zerolog.Nop())
	return table, launcher
}

func TestTableDeployAndStop(t *testing.T) {
	ctx := context.Background()
	table, launcher := newTable(t, writeScenarioDir(t))

	eng, err := table.Deploy(ctx, "blackout")
	require.NoError(t, err)
	require.Equal(t, StateNotStarted, eng.State())
	require.Equal(t, 1, table.Count())
	require.Len(t, launcher.Live(), 1)

	got, ok := table.Get("blackout")
	require.True(t, ok)
	require.Same(t, eng, got)

	require.NoError(t, table.Stop(ctx, "blackout"))
	require.Equal(t, 0, table.Count())
	require.Empty(t, launcher.Live())

	// A fresh deploy creates a brand new engine.
	eng2, err := table.Deploy(ctx, "blackout")
	require.NoError(t, err)
	require.NotSame(t, eng, eng2)
	require.NoError(t, table.Stop(ctx, "blackout"))
}

func TestTableRejectsDuplicateDeploy(t *testing.T) {
	ctx := context.Background()
	table, _ := newTable(t, writeScenarioDir(t))

	_, err := table.Deploy(ctx, "blackout")
	require.NoError(t, err)

	_, err = table.Deploy(ctx, "blackout")
	require.ErrorIs(t, err, ErrAlreadyActive)

	require.NoError(t, table.Stop(ctx, "blackout"))
}

func TestTableUnknownScenario(t *testing.T) {
	ctx := context.Background()
	table, _ := newTable(t, writeScenarioDir(t))

	_, err := table.Deploy(ctx, "missing")
	require.ErrorIs(t, err, scenario.ErrNotFound)

	require.ErrorIs(t, table.Stop(ctx, "missing"), ErrNotActive)
}

func TestTableDeployFailureLeavesNoEngine(t *testing.T) {
	ctx := context.Background()
	table, launcher := newTable(t, writeScenarioDir(t))
	launcher.FailOn = func(launch.Spec) error { return os.ErrPermission }

	_, err := table.Deploy(ctx, "blackout")
	require.ErrorIs(t, err, ErrDeployFailed)
	require.Equal(t, 0, table.Count())

	// The failure must not poison later deploys.
	launcher.FailOn = nil
	_, err = table.Deploy(ctx, "blackout")
	require.NoError(t, err)
	require.NoError(t, table.Stop(ctx, "blackout"))
}

func TestTableFirstAndStopAll(t *testing.T) {
	ctx := context.Background()
	table, launcher := newTable(t, writeScenarioDir(t))

	_, ok := table.First()
	require.False(t, ok)

	_, err := table.Deploy(ctx, "blackout")
	require.NoError(t, err)

	eng, ok := table.First()
	require.True(t, ok)
	require.Equal(t, "blackout", eng.Scenario().ID)

	table.StopAll(ctx)
	require.Equal(t, 0, table.Count())
	require.Empty(t, launcher.Live())
}
