package tunnel

import (
	"errors"

	"github.com/treykane/cfrok/internal/model"
)

// Failure kinds of Orchestrator.Start. Match them with errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrIO                = errors.New("config file write failed")
	ErrDNSRouteFailed    = errors.New("dns route registration failed")
	ErrDaemonSpawnFailed = errors.New("failed to launch cloudflared")
	ErrSessionActive     = errors.New("a tunnel session is already running")
)

// StartError describes why a session never reached the running state.
type StartError struct {
	// State is the lifecycle step that failed.
	State model.SessionState
	// Kind is one of the Err* sentinels of this package.
	Kind error
	// Err is the underlying cause, if any.
	Err error
	// Detail holds raw command output that is too noisy for the one-line
	// message but useful when debugging.
	Detail string
}

func (e *StartError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *StartError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DebugDetail returns the captured command output.
func (e *StartError) DebugDetail() string { return e.Detail }
