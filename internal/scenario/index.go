package scenario

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Summary is one row of the scenario listing.
type Summary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	TeamCount       int    `json:"team_count"`
	InjectCount     int    `json:"inject_count"`
	Thumbnail       string `json:"thumbnail,omitempty"`
}

// Index serves the scenario listing from a cache that is invalidated by
// filesystem events on the scenarios root.
type Index struct {
	loader *Loader
	logger zerolog.Logger

	mu    sync.Mutex
	cache []Summary
	dirty bool
}

func NewIndex(loader *Loader, logger zerolog.Logger) *Index {
	return &Index{loader: loader, logger: logger, dirty: true}
}

// Watch invalidates the cache whenever the scenarios root changes. It blocks
// until ctx is canceled; callers run it on its own goroutine. A watcher setup
// failure degrades to per-request rescans.
func (ix *Index) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		ix.markDirtyForever()
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(ix.loader.Root()); err != nil {
		ix.markDirtyForever()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasSuffix(ev.Name, ".json") {
				ix.mu.Lock()
				ix.dirty = true
				ix.mu.Unlock()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn().Err(err).Msg("scenario watcher error")
		}
	}
}

func (ix *Index) markDirtyForever() {
	ix.mu.Lock()
	ix.cache = nil
	ix.dirty = true
	ix.mu.Unlock()
}

// List returns scenario summaries, rescanning the root when the cache is
// stale. Unreadable files are skipped with a warning.
func (ix *Index) List() ([]Summary, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.dirty && ix.cache != nil {
		return append([]Summary(nil), ix.cache...), nil
	}

	matches, err := filepath.Glob(filepath.Join(ix.loader.Root(), "*.json"))
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(matches))
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		if strings.HasPrefix(id, ".") {
			continue
		}
		sc, err := ix.loader.LoadScenario(id)
		if err != nil {
			ix.logger.Warn().Err(err).Str("scenario", id).Msg("skipping unreadable scenario")
			continue
		}

		injectCount := 0
		for _, team := range sc.Teams {
			if team.TimelineFile == "" {
				continue
			}
			tl, err := ix.loader.LoadTimeline(team.TimelineFile)
			if err != nil {
				continue
			}
			injectCount += len(tl.Injects)
		}

		thumbnail := ""
		if sc.Thumbnail != "" {
			thumbnail = "/scenarios/" + sc.Thumbnail
		}

		out = append(out, Summary{
			ID:              id,
			Name:            sc.Name,
			Description:     sc.Description,
			DurationMinutes: sc.DurationMinutes,
			TeamCount:       len(sc.Teams),
			InjectCount:     injectCount,
			Thumbnail:       thumbnail,
		})
	}

	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	ix.cache = out
	ix.dirty = false
	return append([]Summary(nil), out...), nil
}
