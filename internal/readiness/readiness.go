// Package readiness waits for a line-oriented stream to show a marker.
//
// The check is optimistic: a timeout resolves the wait just like a match does.
// Callers decide what a timeout means; the tunnel orchestrator treats it as
// "probably still connecting" and carries on.
package readiness

import (
	"sync"
	"time"
)

// Outcome tells which trigger resolved a Detector.
type Outcome int

const (
	// Pending means the detector has not resolved yet.
	Pending Outcome = iota
	// Ready means a matching line was observed.
	Ready
	// TimedOut means the timeout elapsed first.
	TimedOut
	// Closed means the stream ended before a match.
	Closed
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed-out"
	case Closed:
		return "closed"
	default:
		return "pending"
	}
}

// Detector resolves exactly once; later triggers are ignored.
type Detector struct {
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	outcome Outcome
}

// NewDetector returns an unresolved detector.
func NewDetector() *Detector {
	return &Detector{done: make(chan struct{})}
}

// Resolve records o if the detector is still pending and reports whether this
// call was the one that resolved it.
func (d *Detector) Resolve(o Outcome) bool {
	first := false
	d.once.Do(func() {
		d.mu.Lock()
		d.outcome = o
		d.mu.Unlock()
		first = true
		close(d.done)
	})
	return first
}

// Done is closed once the detector has resolved.
func (d *Detector) Done() <-chan struct{} { return d.done }

// Outcome returns the resolution, or Pending.
func (d *Detector) Outcome() Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}

// Watch starts reading lines in the background and returns a detector that
// resolves on the first line for which match returns true, when timeout
// elapses, or when lines is closed, whichever happens first. A timeout <= 0
// resolves immediately as TimedOut. Once resolved, Watch stops reading lines;
// the caller should then cancel its subscription.
func Watch(lines <-chan string, match func(string) bool, timeout time.Duration) *Detector {
	d := NewDetector()
	if timeout <= 0 {
		d.Resolve(TimedOut)
		return d
	}
	timer := time.AfterFunc(timeout, func() { d.Resolve(TimedOut) })
	go func() {
		defer timer.Stop()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					d.Resolve(Closed)
					return
				}
				if match(line) {
					d.Resolve(Ready)
					return
				}
			case <-d.done:
				return
			}
		}
	}()
	return d
}

// Await is Watch followed by waiting for the resolution.
func Await(lines <-chan string, match func(string) bool, timeout time.Duration) Outcome {
	d := Watch(lines, match, timeout)
	<-d.Done()
	return d.Outcome()
}
