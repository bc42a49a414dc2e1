package exercise

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/bus"
	"github.com/rangeops/excon/internal/launch"
	"github.com/rangeops/excon/internal/metrics"
	"github.com/rangeops/excon/internal/scenario"
	"github.com/rangeops/excon/internal/status"
)

// Table owns the mapping from scenario id to active engine. At most one
// engine exists per scenario name; it is the only way engines are created or
// destroyed.
type Table struct {
	loader   *scenario.Loader
	bus      bus.Bus
	store    status.Store
	launcher launch.Launcher
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewTable(loader *scenario.Loader, b bus.Bus, st status.Store, l launch.Launcher,
	opts Options, logger zerolog.Logger) *Table {
	return &Table{
		loader:   loader,
		bus:      b,
		store:    st,
		launcher: l,
		opts:     opts,
		logger:   logger,
		engines:  make(map[string]*Engine),
	}
}

// Deploy loads the scenario, creates a fresh engine and launches its
// workers. It fails with ErrAlreadyActive when an engine for the scenario
// exists, and with the loader's error or ErrDeployFailed otherwise.
func (t *Table) Deploy(ctx context.Context, scenarioID string) (*Engine, error) {
	t.mu.Lock()
	if _, exists := t.engines[scenarioID]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, scenarioID)
	}
	t.mu.Unlock()

	sc, timelines, err := t.loader.Load(scenarioID)
	if err != nil {
		return nil, err
	}

	eng := New(sc, timelines, t.bus, t.store, t.launcher, t.opts, t.logger)

	t.mu.Lock()
	if _, exists := t.engines[scenarioID]; exists {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, scenarioID)
	}
	t.engines[scenarioID] = eng
	t.mu.Unlock()

	if err := eng.Deploy(ctx); err != nil {
		t.mu.Lock()
		delete(t.engines, scenarioID)
		t.mu.Unlock()
		return nil, err
	}

	metrics.ActiveExercises.Set(float64(t.Count()))
	return eng, nil
}

// Get returns the active engine for a scenario.
func (t *Table) Get(scenarioID string) (*Engine, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	eng, ok := t.engines[scenarioID]
	return eng, ok
}

// Stop stops the engine and removes it from the table. After Stop a fresh
// Deploy creates a new engine.
func (t *Table) Stop(ctx context.Context, scenarioID string) error {
	eng, ok := t.Get(scenarioID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, scenarioID)
	}

	err := eng.Stop(ctx)
	if err != nil && errors.Is(err, ErrInvalidTransition) {
		return err
	}

	t.mu.Lock()
	delete(t.engines, scenarioID)
	t.mu.Unlock()

	metrics.ActiveExercises.Set(float64(t.Count()))
	return err
}

// Count returns the number of active engines.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.engines)
}

// Active returns the scenario ids of all active engines.
func (t *Table) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.engines))
	for id := range t.engines {
		out = append(out, id)
	}
	return out
}

// First returns an arbitrary active engine; the reference deployment runs a
// single exercise at a time.
func (t *Table) First() (*Engine, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, eng := range t.engines {
		return eng, true
	}
	return nil, false
}

// StopAll stops every active engine; used on daemon shutdown.
func (t *Table) StopAll(ctx context.Context) {
	for _, id := range t.Active() {
		if err := t.Stop(ctx, id); err != nil {
			t.logger.Warn().Err(err).Str("scenario", id).Msg("shutdown stop failed")
		}
	}
}
