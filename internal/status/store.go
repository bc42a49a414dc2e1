// Package status mirrors in-process exercise state into redis for external
// observers. The mirror is best-effort: the authoritative state lives in the
// engine and every write here carries a 24-hour expiry.
package status

import (
	"context"
	"fmt"
	"time"
)

// ExerciseTTL bounds the lifetime of every mirrored key. It is refreshed on
// each write so an abandoned exercise ages out within a day.
const ExerciseTTL = 24 * time.Hour

// TimerSnapshot is the externally visible timer document.
type TimerSnapshot struct {
	Elapsed   int     `json:"elapsed"`
	Formatted string  `json:"formatted"`
	Timestamp float64 `json:"timestamp"`
}

// TeamStatus summarizes one team's delivery progress.
type TeamStatus struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
	Status    string `json:"status"`
}

// ExerciseStatus aggregates the mirrored view of one exercise.
type ExerciseStatus struct {
	State string        `json:"state"`
	Timer TimerSnapshot `json:"timer"`
	Teams []TeamStatus  `json:"teams"`
}

// Store is the mirror contract. Write operations do not return errors:
// failures are logged and counted, never propagated to the lifecycle.
type Store interface {
	PutState(ctx context.Context, scenario, state string)
	GetState(ctx context.Context, scenario string) (string, bool)
	PutTimer(ctx context.Context, scenario string, elapsed int)
	GetTimer(ctx context.Context, scenario string) TimerSnapshot
	MarkDelivered(ctx context.Context, scenario, team, inject string)
	CountDelivered(ctx context.Context, scenario, team string) int
	SetTeamConnected(ctx context.Context, scenario, team string, connected bool)
	Purge(ctx context.Context, scenario string)
	Status(ctx context.Context, scenario string, teams []string) ExerciseStatus
	Close() error
}

// FormatElapsed renders elapsed seconds as the display timer, e.g. "T+02:05".
func FormatElapsed(elapsed int) string {
	if elapsed < 0 {
		elapsed = 0
	}
	return fmt.Sprintf("T+%02d:%02d", elapsed/60, elapsed%60)
}

func stateKey(scenario string) string {
	return fmt.Sprintf("exercise:%s:state", scenario)
}

func stateTimestampKey(scenario string) string {
	return fmt.Sprintf("exercise:%s:state_timestamp", scenario)
}

func timerKey(scenario string) string {
	return fmt.Sprintf("exercise:%s:timer", scenario)
}

func deliveredKey(scenario, team string) string {
	return fmt.Sprintf("exercise:%s:team:%s:delivered", scenario, team)
}

func countKey(scenario, team string) string {
	return fmt.Sprintf("exercise:%s:team:%s:count", scenario, team)
}

func connectedKey(scenario, team string) string {
	return fmt.Sprintf("exercise:%s:team:%s:connected", scenario, team)
}

func deliveredAtKey(scenario, inject string) string {
	return fmt.Sprintf("exercise:%s:inject:%s:delivered_at", scenario, inject)
}

func scenarioPattern(scenario string) string {
	return fmt.Sprintf("exercise:%s:*", scenario)
}
