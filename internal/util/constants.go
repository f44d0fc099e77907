// Package util provides common utility functions and constants used across the
// cfrok application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "time"

const (
	// ReadinessTimeout is how long the orchestrator waits for the daemon to
	// log its first registered connection before handing back the session
	// anyway. A timeout is not treated as a failure: cloudflared retries its
	// edge connections on its own schedule, and the public URL is usually
	// usable shortly after.
	// Used by: internal/tunnel/session.go (Orchestrator.Start).
	ReadinessTimeout = 10 * time.Second

	// DefaultStopGrace is the interval between the interrupt signal and the
	// hard kill when stopping the daemon. Matches the five seconds cloudflared
	// needs to drain its edge connections on a healthy network.
	// Used by: internal/tunnel/session.go and internal/appconfig (Default, Load).
	DefaultStopGrace = 5 * time.Second

	// ProcessWaitDelay bounds how long Wait keeps draining the daemon's
	// output pipes after the process itself has exited. A grandchild that
	// inherited the pipes would otherwise keep Wait blocked forever.
	// Used by: internal/process/process.go.
	ProcessWaitDelay = 2 * time.Second

	// RecentLogLines is the number of daemon output lines kept per process
	// for diagnostics after an unexpected exit.
	RecentLogLines = 200
)
