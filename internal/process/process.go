// Package process launches the external commands cfrok depends on.
//
// This package does NOT know anything about cloudflared; it only provides the
// two ways cfrok runs a subprocess:
//
//   - One-shot: RunOnce() runs a command to completion and returns its exit
//     code together with the buffered stdout and stderr. Used for commands
//     whose full result is needed before proceeding (DNS route registration).
//
//   - Long-lived: New() + Start() launch a command whose stdout and stderr are
//     exposed as LineFeeds that any number of listeners can subscribe to. The
//     returned Process is owned by whoever started it; that owner is the only
//     one allowed to signal or terminate it.
//
// All arguments are passed via exec.Command's argv (never through a shell),
// so tunnel names or hostnames containing shell metacharacters are harmless.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/treykane/cfrok/internal/util"
)

// Result is the outcome of a one-shot command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stderr followed by stdout, the order in which cloudflared
// usually explains a failure.
func (r Result) Combined() string {
	return r.Stderr + "\n" + r.Stdout
}

// Output returns stderr if it is non-blank, otherwise stdout.
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// SpawnError reports that a command could not be started at all (binary not
// found, permission denied, ...), as opposed to a command that ran and exited
// with a non-zero status.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// RunOnce runs name with args to completion. A non-zero exit status is
// reported through Result.ExitCode with a nil error; only a failure to spawn
// (or to wait for) the process returns an error. There is no built-in
// timeout: ctx is the caller's deadline.
func RunOnce(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = nil

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, &SpawnError{Name: name, Err: err}
}

// Process is one long-lived subprocess with line-oriented output streams.
//
// The zero value is not useful; use New.
type Process struct {
	name   string
	args   []string
	stdout *LineFeed
	stderr *LineFeed
	done   chan struct{}

	mu        sync.Mutex
	cmd       *exec.Cmd
	exited    bool
	exitCode  int
	waitErr   error
	startedAt time.Time
}

// New prepares a process without starting it, so listeners can subscribe to
// Stdout and Stderr before the first line is produced.
func New(name string, args ...string) *Process {
	return &Process{
		name:   name,
		args:   append([]string(nil), args...),
		stdout: NewLineFeed(util.RecentLogLines),
		stderr: NewLineFeed(util.RecentLogLines),
		done:   make(chan struct{}),
	}
}

// Stdout is the feed of the process's standard output lines.
func (p *Process) Stdout() *LineFeed { return p.stdout }

// Stderr is the feed of the process's standard error lines.
func (p *Process) Stderr() *LineFeed { return p.stderr }

// Name returns the command name the process was created with.
func (p *Process) Name() string { return p.name }

// Args returns a copy of the command arguments.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

// Start launches the process. A failure is returned as *SpawnError and leaves
// the process in the exited state.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.cmd != nil || p.exited {
		p.mu.Unlock()
		return fmt.Errorf("process %s already started", p.name)
	}
	cmd := exec.Command(p.name, p.args...)
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	cmd.Stdin = nil
	cmd.WaitDelay = util.ProcessWaitDelay

	if err := cmd.Start(); err != nil {
		p.exited = true
		p.exitCode = -1
		p.waitErr = err
		p.mu.Unlock()
		_ = p.stdout.Close()
		_ = p.stderr.Close()
		close(p.done)
		return &SpawnError{Name: p.name, Err: err}
	}
	p.cmd = cmd
	p.startedAt = time.Now()
	p.mu.Unlock()

	go p.wait(cmd)
	return nil
}

func (p *Process) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	_ = p.stdout.Close()
	_ = p.stderr.Close()

	p.mu.Lock()
	p.exited = true
	p.waitErr = err
	p.exitCode = -1
	if cmd.ProcessState != nil {
		p.exitCode = cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	close(p.done)
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process exits and returns the error from exec.Cmd.Wait.
func (p *Process) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// ExitCode returns the exit status once the process has exited. The boolean
// is false while the process is still running (or was never started). A
// process killed by a signal reports -1.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exited
}

// Alive reports whether the process was started and has not exited yet.
func (p *Process) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil && !p.exited
}

// PID returns the OS process id, or 0 if the process never started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns the time Start succeeded.
func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// Signal delivers sig to a running process.
func (p *Process) Signal(sig os.Signal) error {
	p.mu.Lock()
	cmd := p.cmd
	exited := p.exited
	p.mu.Unlock()
	if cmd == nil || exited {
		return os.ErrProcessDone
	}
	return cmd.Process.Signal(sig)
}

// Terminate sends the platform interrupt signal and waits for the process to
// exit. If it is still running after grace, it is killed. Terminate always
// returns once the process is gone; calling it on an exited or unstarted
// process is a no-op.
func (p *Process) Terminate(grace time.Duration) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return nil
	}
	if !p.Alive() {
		<-p.done
		return nil
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// os.Interrupt is not deliverable on Windows.
		slog.Debug("interrupt failed, killing process", "name", p.name, "pid", cmd.Process.Pid, "error", err)
		_ = cmd.Process.Kill()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	slog.Warn("process ignored interrupt, killing", "name", p.name, "pid", cmd.Process.Pid, "grace", grace)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		<-p.done
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	<-p.done
	return nil
}

// Recent returns the latest stderr lines followed by the latest stdout lines.
func (p *Process) Recent() []string {
	return append(p.stderr.Recent(), p.stdout.Recent()...)
}

// Exec is the Runner backed by real OS processes.
type Exec struct{}

// RunOnce implements the one-shot mode; see the package-level RunOnce.
func (Exec) RunOnce(ctx context.Context, name string, args ...string) (Result, error) {
	return RunOnce(ctx, name, args...)
}

// Command implements the long-lived mode; see New.
func (Exec) Command(name string, args ...string) *Process {
	return New(name, args...)
}
