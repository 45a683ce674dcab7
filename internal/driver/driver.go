// Package driver abstracts workload control over the two backend
// kinds wakeproxy manages: containers on a Docker-compatible runtime,
// and Proxmox LXC instances reached over its REST API.
package driver

import (
	"context"
	"time"
)

// Deadlines the engine enforces on every driver call, per spec.md §4.1.
const (
	StatusDeadline       = 3 * time.Second
	ActionInitDeadline   = 10 * time.Second
	ActionPollDeadline   = 30 * time.Second
	ActionPollInterval   = 1 * time.Second
	maxActionPollCycles  = 30
)

// Driver is the uniform contract the dispatcher, reaper, group
// manager and scheduler drive workloads through. A network error or
// timeout from any method must not propagate as a fatal error: status
// queries degrade to "not running", and start/stop failures are
// logged by the caller and retried on the next tick.
type Driver interface {
	// IsRunning reports whether name is currently running. Network or
	// timeout errors are treated as false by the caller.
	IsRunning(ctx context.Context, name string) (bool, error)

	// Start brings name up. Starting an already-running workload is a
	// no-op success.
	Start(ctx context.Context, name string) error

	// Stop brings name down. Stopping a workload that is not running
	// is a no-op success.
	Stop(ctx context.Context, name string) error

	// List returns the names this driver currently knows about. On
	// failure it returns an empty (nil) set together with the error.
	List(ctx context.Context) ([]string, error)

	// StartedAt returns when name last transitioned to running, or the
	// zero value with ok=false if unknown or on error.
	StartedAt(ctx context.Context, name string) (t time.Time, ok bool)
}
