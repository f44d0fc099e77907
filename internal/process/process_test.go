package process

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunOnceCapturesOutputAndExitCode(t *testing.T) {
	requireShell(t)
	res, err := RunOnce(context.Background(), "sh", "-c", "echo out; echo err 1>&2; exit 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("unexpected output: %+v", res)
	}
	if res.Output() != "err" {
		t.Fatalf("Output() = %q, want stderr", res.Output())
	}
}

func TestRunOnceSpawnFailureIsDistinct(t *testing.T) {
	_, err := RunOnce(context.Background(), "cfrok-definitely-not-a-binary")
	if err == nil {
		t.Fatal("expected spawn error")
	}
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SpawnError, got %T", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err)
	}
}

func TestProcessFansOutLinesToEverySubscriber(t *testing.T) {
	requireShell(t)
	p := New("sh", "-c", "echo one; echo two; printf three")
	a, cancelA := p.Stdout().Subscribe()
	defer cancelA()
	b, cancelB := p.Stdout().Subscribe()
	defer cancelB()

	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	collect := func(ch <-chan string) []string {
		var out []string
		for line := range ch {
			out = append(out, line)
		}
		return out
	}
	gotA := make(chan []string, 1)
	go func() { gotA <- collect(a) }()
	gotB := collect(b)

	want := "one,two,three"
	if got := strings.Join(<-gotA, ","); got != want {
		t.Fatalf("subscriber A got %q, want %q", got, want)
	}
	if got := strings.Join(gotB, ","); got != want {
		t.Fatalf("subscriber B got %q, want %q", got, want)
	}

	<-p.Done()
	code, ok := p.ExitCode()
	if !ok || code != 0 {
		t.Fatalf("exit = (%d, %v), want (0, true)", code, ok)
	}
	if p.Alive() {
		t.Fatal("process should not be alive after exit")
	}
}

func TestProcessStartFailure(t *testing.T) {
	p := New("cfrok-definitely-not-a-binary", "tunnel")
	err := p.Start()
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed after a failed start")
	}
	if p.Alive() {
		t.Fatal("failed process reported alive")
	}
}

func TestTerminateGraceful(t *testing.T) {
	requireShell(t)
	p := New("sh", "-c", "trap 'exit 0' INT; while true; do sleep 0.1; done")
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if !p.Alive() || p.PID() <= 0 {
		t.Fatal("expected running process with pid")
	}
	// Give the shell a moment to install its trap.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	if err := p.Terminate(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if p.Alive() {
		t.Fatal("process still alive after Terminate")
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("graceful terminate took %s", time.Since(start))
	}
}

func TestTerminateEscalatesToKill(t *testing.T) {
	requireShell(t)
	p := New("sh", "-c", "trap '' INT; while true; do sleep 0.1; done")
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Terminate(300 * time.Millisecond) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Terminate did not return")
	}
	if p.Alive() {
		t.Fatal("process still alive after escalation")
	}
}

func TestTerminateUnstartedIsNoop(t *testing.T) {
	p := New("sleep", "1")
	if err := p.Terminate(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestLineFeedRecentAndLateSubscribe(t *testing.T) {
	f := NewLineFeed(2)
	if _, err := f.Write([]byte("a\r\nb\nc")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(f.Recent(), ","); got != "b,c" {
		t.Fatalf("recent = %q, want b,c", got)
	}
	ch, cancel := f.Subscribe()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("subscription to a closed feed should be closed")
	}
	if _, err := f.Write([]byte("x\n")); err == nil {
		t.Fatal("expected error writing to a closed feed")
	}
}

func TestLineFeedCancelledSubscriberDoesNotBlock(t *testing.T) {
	f := NewLineFeed(0)
	_, cancel := f.Subscribe()
	cancel()
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_, _ = f.Write([]byte("line\n"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked on a cancelled subscriber")
	}
}
