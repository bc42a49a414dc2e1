package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gps.json", `{
		"name": "GPS Denial",
		"description": "Jamming drill",
		"duration_minutes": 45,
		"iq_file": "/iq_library/gps.iq",
		"teams": [
			{"id": "alpha", "dashboard_port": 3200, "timeline_file": "timelines/alpha.json"},
			{"id": "bravo", "timeline_file": "timelines/bravo.json"}
		]
	}`)

	loader := NewLoader(dir, zerolog.Nop())
	sc, err := loader.LoadScenario("gps")
	require.NoError(t, err)

	require.Equal(t, "gps", sc.ID)
	require.Equal(t, "GPS Denial", sc.Name)
	require.Equal(t, 45, sc.DurationMinutes)
	require.Equal(t, "/iq_library/gps.iq", sc.IQFile)
	require.Equal(t, []string{"alpha", "bravo"}, sc.TeamIDs())
	require.Equal(t, 3200, sc.Teams[0].DashboardPort)
}

func TestLoadScenarioErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{not json`)
	writeFile(t, dir, "dup.json", `{"name": "x", "teams": [{"id": "a"}, {"id": "a"}]}`)
	writeFile(t, dir, "anon.json", `{"name": "x", "teams": [{"id": ""}]}`)

	loader := NewLoader(dir, zerolog.Nop())

	_, err := loader.LoadScenario("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = loader.LoadScenario("broken")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = loader.LoadScenario("dup")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = loader.LoadScenario("anon")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLoadTimelineSortsStable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tl.json", `{
		"id": "tl",
		"injects": [
			{"id": "late", "time": 120, "type": "email"},
			{"id": "first-at-60", "time": 60, "type": "email"},
			{"id": "second-at-60", "time": 60, "type": "news"},
			{"id": "start", "time": 0, "type": "email"}
		]
	}`)

	loader := NewLoader(dir, zerolog.Nop())
	tl, err := loader.LoadTimeline("tl.json")
	require.NoError(t, err)

	var got []string
	for _, inj := range tl.Injects {
		got = append(got, inj.ID)
	}
	want := []string{"start", "first-at-60", "second-at-60", "late"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("inject order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTimelinePreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tl.json", `{
		"injects": [
			{"id": "rich", "time": 5, "type": "social", "content": {"body": "hi"}, "media": ["/media/library/x.png"]}
		]
	}`)

	loader := NewLoader(dir, zerolog.Nop())
	tl, err := loader.LoadTimeline("tl.json")
	require.NoError(t, err)
	require.Len(t, tl.Injects, 1)

	fields := tl.Injects[0].Fields
	require.Equal(t, map[string]any{"body": "hi"}, fields["content"])
	require.Equal(t, []any{"/media/library/x.png"}, fields["media"])
}

func TestLoadTimelineRejectsBadEnvelopes(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"noid.json":     `{"injects": [{"time": 0, "type": "email"}]}`,
		"notime.json":   `{"injects": [{"id": "x", "type": "email"}]}`,
		"negative.json": `{"injects": [{"id": "x", "time": -5, "type": "email"}]}`,
		"fraction.json": `{"injects": [{"id": "x", "time": 1.5, "type": "email"}]}`,
		"notype.json":   `{"injects": [{"id": "x", "time": 0}]}`,
		"dupid.json":    `{"injects": [{"id": "x", "time": 0, "type": "a"}, {"id": "x", "time": 1, "type": "b"}]}`,
	}
	for name, content := range cases {
		writeFile(t, dir, name, content)
	}

	loader := NewLoader(dir, zerolog.Nop())
	for name := range cases {
		_, err := loader.LoadTimeline(name)
		require.ErrorIs(t, err, ErrMalformed, "file %s", name)
	}

	_, err := loader.LoadTimeline("absent.json")
	require.ErrorIs(t, err, ErrTimelineMissing)
}

func TestLoadResolvesAllTeamTimelines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ex.json", `{
		"name": "ex",
		"teams": [
			{"id": "alpha", "timeline_file": "timelines/alpha.json"},
			{"id": "bravo", "timeline_file": "timelines/bravo.json"}
		]
	}`)
	writeFile(t, dir, "timelines/alpha.json", `{"injects": [{"id": "a", "time": 0, "type": "email"}]}`)

	loader := NewLoader(dir, zerolog.Nop())

	// One missing timeline fails the whole load.
	_, _, err := loader.Load("ex")
	require.ErrorIs(t, err, ErrTimelineMissing)

	writeFile(t, dir, "timelines/bravo.json", `{"injects": []}`)
	sc, timelines, err := loader.Load("ex")
	require.NoError(t, err)
	require.Len(t, sc.Teams, 2)
	require.Len(t, timelines, 2)
	require.Len(t, timelines["alpha"].Injects, 1)
	require.Empty(t, timelines["bravo"].Injects)
}

func TestUpdateTimelineBacksUpPrevious(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "timelines/alpha.json", `{"injects": [{"id": "old", "time": 0, "type": "email"}]}`)

	loader := NewLoader(dir, zerolog.Nop())
	backup, err := loader.UpdateTimeline("timelines/alpha.json",
		[]byte(`{"injects": [{"id": "new", "time": 10, "type": "email"}]}`))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "backups"), filepath.Dir(backup))
	require.Regexp(t, `^alpha\.json\.\d{8}_\d{6}(-\d+)?\.bak$`, filepath.Base(backup))

	prev, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.Contains(t, string(prev), `"old"`)

	tl, err := loader.LoadTimeline("timelines/alpha.json")
	require.NoError(t, err)
	require.Len(t, tl.Injects, 1)
	require.Equal(t, "new", tl.Injects[0].ID)
}

func TestUpdateTimelineKeepsFullBackupHistory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tl.json", `{"injects": [{"id": "v1", "time": 0, "type": "email"}]}`)

	loader := NewLoader(dir, zerolog.Nop())
	first, err := loader.UpdateTimeline("tl.json", []byte(`{"injects": [{"id": "v2", "time": 0, "type": "email"}]}`))
	require.NoError(t, err)
	second, err := loader.UpdateTimeline("tl.json", []byte(`{"injects": [{"id": "v3", "time": 0, "type": "email"}]}`))
	require.NoError(t, err)

	// Back-to-back replacements land in distinct files, so every replaced
	// version stays recoverable.
	require.NotEqual(t, first, second)
	v1, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Contains(t, string(v1), `"v1"`)
	v2, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Contains(t, string(v2), `"v2"`)

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestUpdateTimelineValidatesBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tl.json", `{"injects": [{"id": "keep", "time": 0, "type": "email"}]}`)

	loader := NewLoader(dir, zerolog.Nop())
	_, err := loader.UpdateTimeline("tl.json", []byte(`{"injects": [{"time": 0}]}`))
	require.ErrorIs(t, err, ErrMalformed)

	// The original survives a rejected update untouched.
	tl, err := loader.LoadTimeline("tl.json")
	require.NoError(t, err)
	require.Equal(t, "keep", tl.Injects[0].ID)

	_, err = os.Stat(filepath.Join(dir, "backups"))
	require.True(t, os.IsNotExist(err))
}

func TestUpdateTimelineNewFileHasNoBackup(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir, zerolog.Nop())

	backup, err := loader.UpdateTimeline("timelines/fresh.json", []byte(`{"injects": []}`))
	require.NoError(t, err)
	require.Empty(t, backup)
}

func TestIndexListsScenarios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"name": "Bravo Drill", "teams": [{"id": "t1", "timeline_file": "b-tl.json"}]}`)
	writeFile(t, dir, "b-tl.json", `{"injects": [{"id": "x", "time": 0, "type": "email"}, {"id": "y", "time": 1, "type": "email"}]}`)
	writeFile(t, dir, "a.json", `{"name": "Alpha Drill", "duration_minutes": 20, "teams": []}`)
	writeFile(t, dir, "broken.json", `{nope`)

	loader := NewLoader(dir, zerolog.Nop())
	index := NewIndex(loader, zerolog.Nop())

	list, err := index.List()
	require.NoError(t, err)
	// Broken files are skipped, the rest sorted by id. The timeline file
	// also parses as a scenario with zero teams, which is acceptable noise
	// for a flat directory listing.
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	require.Contains(t, ids, "a")
	require.Contains(t, ids, "b")
	require.NotContains(t, ids, "broken")

	byID := make(map[string]Summary, len(list))
	for _, s := range list {
		byID[s.ID] = s
	}
	require.Equal(t, 20, byID["a"].DurationMinutes)
	require.Equal(t, 1, byID["b"].TeamCount)
	require.Equal(t, 2, byID["b"].InjectCount)
	require.True(t, sorted(ids))
}

func sorted(ids []string) bool {
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			return false
		}
	}
	return true
}
