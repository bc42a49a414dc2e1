// Package exercise implements the exercise execution engine: the lifecycle
// state machine, the monotonic exercise clock and the inject scheduler.
package exercise

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of an active exercise.
type State string

const (
	StateNotStarted State = "NotStarted"
	StateRunning    State = "Running"
	StatePaused     State = "Paused"
	StateFinished   State = "Finished"
	StateStopped    State = "Stopped"
)

var (
	// ErrInvalidTransition rejects a lifecycle command not legal in the
	// current state.
	ErrInvalidTransition = errors.New("exercise: invalid transition")
	// ErrDeployFailed means worker deployment failed; all previously
	// launched workers have been rolled back.
	ErrDeployFailed = errors.New("exercise: deploy failed")
	// ErrAlreadyActive means an engine for the scenario already exists.
	ErrAlreadyActive = errors.New("exercise: already active")
	// ErrNotActive means no engine exists for the scenario.
	ErrNotActive = errors.New("exercise: not active")
)

// TransitionError carries the state an illegal command was attempted in.
type TransitionError struct {
	Op      string
	Current State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("exercise: invalid transition: %s in state %s", e.Op, e.Current)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
