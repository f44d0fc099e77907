// Package tunnel orchestrates the lifecycle of one cloudflared tunnel session:
// DNS route registration, config materialization, daemon launch, readiness
// and shutdown.
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/treykane/cfrok/internal/cloudflared"
	"github.com/treykane/cfrok/internal/events"
	"github.com/treykane/cfrok/internal/ident"
	"github.com/treykane/cfrok/internal/ingress"
	"github.com/treykane/cfrok/internal/logclass"
	"github.com/treykane/cfrok/internal/model"
	"github.com/treykane/cfrok/internal/process"
	"github.com/treykane/cfrok/internal/readiness"
	"github.com/treykane/cfrok/internal/util"
)

// Runner abstracts subprocess creation for testing.
type Runner interface {
	RunOnce(ctx context.Context, name string, args ...string) (process.Result, error)
	Command(name string, args ...string) *process.Process
}

// Journal persists session lifecycle events.
type Journal interface {
	Append(evt events.Event) error
}

// Options tune an Orchestrator. Zero values select the defaults.
type Options struct {
	Reporter Reporter
	Journal  Journal
	// Rand drives the random subdomain suffix.
	Rand *rand.Rand
	// ReadyTimeout bounds the wait for the first registered connection.
	// Negative means do not wait at all.
	ReadyTimeout time.Duration
	// StopGrace is the time between interrupt and kill on Stop.
	StopGrace time.Duration
}

// Orchestrator starts tunnel sessions, at most one live session at a time.
type Orchestrator struct {
	runner       Runner
	reporter     Reporter
	journal      Journal
	readyTimeout time.Duration
	stopGrace    time.Duration

	mu     sync.Mutex
	rng    *rand.Rand
	active *Session
}

// NewOrchestrator creates an orchestrator that spawns commands through runner.
func NewOrchestrator(runner Runner, opts Options) *Orchestrator {
	o := &Orchestrator{
		runner:       runner,
		reporter:     opts.Reporter,
		journal:      opts.Journal,
		rng:          opts.Rand,
		readyTimeout: opts.ReadyTimeout,
		stopGrace:    opts.StopGrace,
	}
	if o.runner == nil {
		o.runner = process.Exec{}
	}
	if o.reporter == nil {
		o.reporter = NopReporter{}
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.readyTimeout == 0 {
		o.readyTimeout = util.ReadinessTimeout
	}
	if o.stopGrace <= 0 {
		o.stopGrace = util.DefaultStopGrace
	}
	return o
}

// Active returns the live session, or nil.
func (o *Orchestrator) Active() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.State().Terminal() {
		return nil
	}
	return o.active
}

// Start runs the start sequence and returns once the daemon is running.
//
// The sequence cannot be interrupted: ctx only carries values, its
// cancellation is ignored. On failure nothing is left running, although the
// config file and DNS route may already exist. The returned error is always
// a *StartError.
func (o *Orchestrator) Start(ctx context.Context, cfg model.SessionConfig) (*Session, error) {
	ctx = context.WithoutCancel(ctx)

	o.mu.Lock()
	if o.active != nil && !o.active.State().Terminal() {
		o.mu.Unlock()
		return nil, &StartError{State: model.StateInitializing, Kind: ErrSessionActive}
	}
	s := &Session{
		ID:      uuid.NewString(),
		journal: o.journal,
		grace:   o.stopGrace,
		state:   model.StateInitializing,
		done:    make(chan struct{}),
	}
	o.active = s
	o.mu.Unlock()

	s.record(events.TypeStartRequested, fmt.Sprintf("port=%d prefix=%s", cfg.Port, cfg.SubdomainPrefix))
	if err := o.start(ctx, s, cfg); err != nil {
		o.mu.Lock()
		if o.active == s {
			o.active = nil
		}
		o.mu.Unlock()
		s.record(events.TypeStartFailed, err.Error())
		return nil, err
	}
	return s, nil
}

func (o *Orchestrator) start(ctx context.Context, s *Session, cfg model.SessionConfig) error {
	if err := util.ValidatePort(cfg.Port); err != nil {
		return &StartError{State: model.StateInitializing, Kind: ErrInvalidArgument, Err: fmt.Errorf("invalid port: %w", err)}
	}
	if strings.TrimSpace(cfg.SubdomainPrefix) == "" {
		return &StartError{State: model.StateInitializing, Kind: ErrInvalidArgument, Err: fmt.Errorf("subdomain prefix is required")}
	}
	prefix := ident.Sanitize(cfg.SubdomainPrefix)
	if prefix == "" {
		return &StartError{State: model.StateInitializing, Kind: ErrInvalidArgument, Err: fmt.Errorf("subdomain prefix %q has no usable characters", cfg.SubdomainPrefix)}
	}
	bin := util.DefaultString(cfg.Binary, cloudflared.DefaultBinary)

	s.setState(model.StateConfiguringDNS)
	o.mu.Lock()
	sub := ident.Subdomain(o.rng, cfg.SubdomainPrefix, cfg.Domain, cfg.StaticSubdomain, cfg.RandomDigits)
	o.mu.Unlock()
	s.Subdomain = sub
	s.URL = "https://" + sub

	doc := ingress.Render(ingress.Params{
		TunnelID:        cfg.TunnelID,
		CredentialsFile: cfg.CredentialsFile,
		Subdomain:       sub,
		Port:            cfg.Port,
		Protocol:        cfg.Protocol,
	})
	path, err := ingress.Materialize(cfg.ConfigDir, ingress.FileName(prefix, cfg.Port), doc)
	if err != nil {
		return &StartError{State: model.StateConfiguringDNS, Kind: ErrIO, Err: err}
	}
	s.ConfigFile = path
	slog.Debug("config file written", "path", path, "subdomain", sub)

	if err := o.routeDNS(ctx, bin, cfg.TunnelID, sub); err != nil {
		return err
	}

	s.setState(model.StateAwaitingPropagation)
	if cfg.DNSWait > 0 {
		o.reporter.BeginPhase("Waiting for DNS propagation...")
		time.Sleep(cfg.DNSWait)
		o.reporter.EndPhase()
	}

	s.setState(model.StateLaunchingDaemon)
	proc := o.runner.Command(bin, cloudflared.RunArgs(path, cfg.TunnelID)...)
	readyLines, stopReady := proc.Stdout().Subscribe()
	outLines, stopOut := proc.Stdout().Subscribe()
	errLines, stopErr := proc.Stderr().Subscribe()
	if err := proc.Start(); err != nil {
		stopReady()
		stopOut()
		stopErr()
		return &StartError{State: model.StateLaunchingDaemon, Kind: ErrDaemonSpawnFailed, Err: err}
	}
	s.Process = proc
	s.mu.Lock()
	s.startedAt = proc.StartedAt()
	s.mu.Unlock()

	go func() {
		defer stopOut()
		defer stopErr()
		o.relayLogs(outLines, errLines)
	}()
	go s.watch()

	s.setState(model.StateAwaitingReadiness)
	outcome := readiness.Await(readyLines, cloudflared.IsRegisteredConnection, o.readyTimeout)
	stopReady()
	slog.Debug("readiness resolved", "outcome", outcome, "subdomain", sub)

	if s.setState(model.StateRunning) {
		s.record(events.TypeRunning, s.URL)
	}
	return nil
}

func (o *Orchestrator) routeDNS(ctx context.Context, bin, tunnelID, hostname string) error {
	o.reporter.BeginPhase(fmt.Sprintf("Configuring DNS route for %s...", hostname))
	res, err := o.runner.RunOnce(ctx, bin, cloudflared.RouteDNSArgs(tunnelID, hostname)...)
	o.reporter.EndPhase()
	if err != nil {
		return &StartError{State: model.StateConfiguringDNS, Kind: ErrDNSRouteFailed, Err: err}
	}
	if res.ExitCode == 0 {
		return nil
	}
	if cloudflared.IsRouteAlreadyExists(res.Combined()) {
		slog.Debug("dns route already exists", "hostname", hostname)
		return nil
	}
	return &StartError{
		State:  model.StateConfiguringDNS,
		Kind:   ErrDNSRouteFailed,
		Err:    fmt.Errorf("%s exited with status %d: %s", bin, res.ExitCode, res.Output()),
		Detail: res.Combined(),
	}
}

// relayLogs is the only goroutine that touches the classifier.
func (o *Orchestrator) relayLogs(stdout, stderr <-chan string) {
	c := logclass.New()
	for stdout != nil || stderr != nil {
		var (
			line string
			ok   bool
		)
		select {
		case line, ok = <-stdout:
			if !ok {
				stdout = nil
				continue
			}
		case line, ok = <-stderr:
			if !ok {
				stderr = nil
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		slog.Debug("cloudflared", "line", line)
		for _, ev := range c.Feed(line) {
			o.reporter.LogEvent(ev)
		}
	}
}

// Session is one started tunnel.
type Session struct {
	ID         string
	Subdomain  string
	URL        string
	ConfigFile string
	Process    *process.Process

	journal Journal
	grace   time.Duration
	done    chan struct{}

	mu         sync.Mutex
	state      model.SessionState
	stopping   bool
	unexpected bool
	startedAt  time.Time

	stopOnce sync.Once
	stopErr  error
}

// State returns the current lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the daemon has exited, whether through Stop or not.
func (s *Session) Done() <-chan struct{} { return s.done }

// Unexpected reports whether the daemon exited without Stop being called.
func (s *Session) Unexpected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unexpected
}

// StartedAt returns when the daemon was launched.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// PID returns the daemon's process id.
func (s *Session) PID() int {
	if s.Process == nil {
		return 0
	}
	return s.Process.PID()
}

// Summary returns the machine-readable description of the session.
func (s *Session) Summary() model.SessionSummary {
	return model.SessionSummary{
		URL:        s.URL,
		Subdomain:  s.Subdomain,
		ConfigFile: s.ConfigFile,
		PID:        s.PID(),
	}
}

// Stop interrupts the daemon, kills it if it is still alive after the grace
// period and waits for it to exit. It is idempotent and safe to call from
// several goroutines; every call returns after the daemon is gone.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.state.Terminal() {
			s.mu.Unlock()
			return
		}
		s.stopping = true
		s.mu.Unlock()
		s.setState(model.StateStopping)
		s.record(events.TypeStopRequested, "")
		s.stopErr = s.Process.Terminate(s.grace)
	})
	<-s.done
	return s.stopErr
}

func (s *Session) watch() {
	<-s.Process.Done()
	code, _ := s.Process.ExitCode()

	s.mu.Lock()
	s.unexpected = !s.stopping
	unexpected := s.unexpected
	s.mu.Unlock()
	s.setState(model.StateStopped)

	if unexpected {
		slog.Warn("cloudflared exited unexpectedly", "pid", s.PID(), "exit_code", code)
		s.record(events.TypeDaemonExited, fmt.Sprintf("exit code %d", code))
	} else {
		s.record(events.TypeStopped, fmt.Sprintf("exit code %d", code))
	}
	close(s.done)
}

// setState moves the session to next and reports whether it did. A stopped
// session never changes state again.
func (s *Session) setState(next model.SessionState) bool {
	s.mu.Lock()
	if s.state.Terminal() || s.state == next {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()
	slog.Debug("session state changed", "session", s.ID, "from", prev, "to", next)
	s.record(events.TypeStateChanged, fmt.Sprintf("%s -> %s", prev, next))
	return true
}

func (s *Session) record(eventType, msg string) {
	if s.journal == nil {
		return
	}
	evt := events.Event{
		SessionID: s.ID,
		Subdomain: s.Subdomain,
		EventType: eventType,
		State:     s.State(),
		Message:   msg,
		PID:       s.PID(),
	}
	if err := s.journal.Append(evt); err != nil {
		slog.Warn("failed to record session event", "event", eventType, "error", err)
	}
}
