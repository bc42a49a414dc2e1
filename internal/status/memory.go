package status

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and as a fallback when
// redis is unreachable at startup. TTLs are not enforced.
type MemoryStore struct {
	mu        sync.Mutex
	states    map[string]string
	timers    map[string]TimerSnapshot
	delivered map[string]map[string]map[string]struct{} // scenario -> team -> inject set
	connected map[string]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:    make(map[string]string),
		timers:    make(map[string]TimerSnapshot),
		delivered: make(map[string]map[string]map[string]struct{}),
		connected: make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) PutState(_ context.Context, scenario, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[scenario] = state
}

func (s *MemoryStore) GetState(_ context.Context, scenario string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[scenario]
	return state, ok
}

func (s *MemoryStore) PutTimer(_ context.Context, scenario string, elapsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[scenario] = TimerSnapshot{
		Elapsed:   elapsed,
		Formatted: FormatElapsed(elapsed),
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}
}

func (s *MemoryStore) GetTimer(_ context.Context, scenario string) TimerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.timers[scenario]; ok {
		return snap
	}
	return TimerSnapshot{Formatted: FormatElapsed(0)}
}

func (s *MemoryStore) MarkDelivered(_ context.Context, scenario, team, inject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams, ok := s.delivered[scenario]
	if !ok {
		teams = make(map[string]map[string]struct{})
		s.delivered[scenario] = teams
	}
	set, ok := teams[team]
	if !ok {
		set = make(map[string]struct{})
		teams[team] = set
	}
	set[inject] = struct{}{}
}

func (s *MemoryStore) CountDelivered(_ context.Context, scenario, team string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered[scenario][team])
}

func (s *MemoryStore) SetTeamConnected(_ context.Context, scenario, team string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams, ok := s.connected[scenario]
	if !ok {
		teams = make(map[string]bool)
		s.connected[scenario] = teams
	}
	teams[team] = connected
}

// TeamConnected reports the stored connection flag and whether one exists.
func (s *MemoryStore) TeamConnected(scenario, team string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag, ok := s.connected[scenario][team]
	return flag, ok
}

func (s *MemoryStore) Purge(_ context.Context, scenario string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, scenario)
	delete(s.timers, scenario)
	delete(s.delivered, scenario)
	delete(s.connected, scenario)
}

func (s *MemoryStore) Status(ctx context.Context, scenario string, teams []string) ExerciseStatus {
	out := ExerciseStatus{
		State: "NotStarted",
		Timer: s.GetTimer(ctx, scenario),
		Teams: make([]TeamStatus, 0, len(teams)),
	}
	if state, ok := s.GetState(ctx, scenario); ok {
		out.State = state
	}
	for _, team := range teams {
		out.Teams = append(out.Teams, TeamStatus{
			ID:        team,
			Delivered: s.CountDelivered(ctx, scenario, team),
			Status:    "connected",
		})
	}
	return out
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
