package readiness

import (
	"strings"
	"testing"
	"time"
)

func containsReady(line string) bool { return strings.Contains(line, "READY") }

func TestAwaitResolvesOnMarker(t *testing.T) {
	lines := make(chan string, 4)
	lines <- "booting"
	lines <- "still booting"
	lines <- "INF READY conn=0"

	start := time.Now()
	got := Await(lines, containsReady, 5*time.Second)
	if got != Ready {
		t.Fatalf("outcome = %s, want ready", got)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("marker resolution took %s", time.Since(start))
	}
}

func TestAwaitResolvesOnTimeoutWithoutMarker(t *testing.T) {
	lines := make(chan string)
	go func() {
		for i := 0; i < 3; i++ {
			lines <- "noise"
		}
	}()

	timeout := 150 * time.Millisecond
	start := time.Now()
	got := Await(lines, containsReady, timeout)
	if got != TimedOut {
		t.Fatalf("outcome = %s, want timed-out", got)
	}
	if elapsed := time.Since(start); elapsed < timeout {
		t.Fatalf("resolved before timeout boundary: %s", elapsed)
	}
}

func TestAwaitResolvesOnClose(t *testing.T) {
	lines := make(chan string, 1)
	lines <- "exiting"
	close(lines)
	if got := Await(lines, containsReady, 5*time.Second); got != Closed {
		t.Fatalf("outcome = %s, want closed", got)
	}
}

func TestAwaitNonPositiveTimeout(t *testing.T) {
	if got := Await(make(chan string), containsReady, 0); got != TimedOut {
		t.Fatalf("outcome = %s, want timed-out", got)
	}
}

func TestDetectorResolvesOnce(t *testing.T) {
	d := NewDetector()
	if d.Outcome() != Pending {
		t.Fatal("new detector should be pending")
	}
	if !d.Resolve(Ready) {
		t.Fatal("first resolve should win")
	}
	if d.Resolve(TimedOut) || d.Resolve(Closed) {
		t.Fatal("later resolves must be no-ops")
	}
	if d.Outcome() != Ready {
		t.Fatalf("outcome = %s, want ready", d.Outcome())
	}
	select {
	case <-d.Done():
	default:
		t.Fatal("done should be closed")
	}
}
