package launch

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLauncher is an in-process Launcher for tests. FailOn, when set, is
// consulted before each launch so tests can force partial-deploy failures.
type MemoryLauncher struct {
	mu      sync.Mutex
	workers map[string]Handle
	specs   map[string]Spec

	FailOn func(spec Spec) error
}

func NewMemoryLauncher() *MemoryLauncher {
	return &MemoryLauncher{
		workers: make(map[string]Handle),
		specs:   make(map[string]Spec),
	}
}

func (m *MemoryLauncher) Launch(_ context.Context, spec Spec) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailOn != nil {
		if err := m.FailOn(spec); err != nil {
			return Handle{}, err
		}
	}

	// Same-name launches displace the previous worker, as docker does.
	delete(m.workers, spec.Name)

	h := Handle{
		ID:     uuid.NewString(),
		Name:   spec.Name,
		Kind:   spec.Kind,
		TeamID: spec.TeamID,
	}
	m.workers[spec.Name] = h
	m.specs[spec.Name] = spec
	return h, nil
}

// SpecFor returns the spec the named live worker was launched with.
func (m *MemoryLauncher) SpecFor(name string) (Spec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.specs[name]
	return spec, ok
}

func (m *MemoryLauncher) Destroy(_ context.Context, handle Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, handle.Name)
	delete(m.specs, handle.Name)
	return nil
}

func (m *MemoryLauncher) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[name]
	return ok, nil
}

// Live returns the names of currently live workers.
func (m *MemoryLauncher) Live() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.workers))
	for name := range m.workers {
		out = append(out, name)
	}
	return out
}

var _ Launcher = (*MemoryLauncher)(nil)
