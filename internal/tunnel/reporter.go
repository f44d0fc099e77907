package tunnel

import "github.com/treykane/cfrok/internal/logclass"

// Reporter receives user-facing progress while a session starts and runs.
// LogEvent is called from a background goroutine, so implementations must be
// safe for concurrent use.
type Reporter interface {
	// BeginPhase announces a blocking step, typically shown with a spinner.
	BeginPhase(msg string)
	// EndPhase ends the step announced by the last BeginPhase.
	EndPhase()
	// LogEvent renders one classified daemon log event.
	LogEvent(ev logclass.Event)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) BeginPhase(string)       {}
func (NopReporter) EndPhase()               {}
func (NopReporter) LogEvent(logclass.Event) {}
