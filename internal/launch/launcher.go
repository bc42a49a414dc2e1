// Package launch abstracts the runtime that hosts dashboard and auxiliary
// service workers. Deployments back it with docker; tests use the in-memory
// stub.
package launch

import (
	"context"
	"errors"
)

// Kind classifies a launched worker.
type Kind string

const (
	KindDashboard Kind = "dashboard"
	KindService   Kind = "service"
)

// ErrLaunchConflict is returned when a worker name is already taken and the
// existing worker could not be displaced.
var ErrLaunchConflict = errors.New("launch: worker name already in use")

// Mount binds a host path into the worker.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Spec describes a worker to launch.
type Spec struct {
	Name    string
	Kind    Kind
	TeamID  string
	Image   string
	Env     map[string]string
	Ports   map[int]int // container port -> host port
	Mounts  []Mount
	Network string
}

// Handle identifies a launched worker. It is owned by the engine and
// destroyed only on stop.
type Handle struct {
	ID     string
	Name   string
	Kind   Kind
	TeamID string
}

// Launcher starts, addresses and tears down workers. Launch must displace an
// existing worker with the same name before creating the new one.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
	Destroy(ctx context.Context, handle Handle) error
	Exists(ctx context.Context, name string) (bool, error)
}
