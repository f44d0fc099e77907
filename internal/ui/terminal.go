// Package ui renders tunnel session progress: a line-oriented terminal
// reporter for the default CLI mode and a Bubble Tea dashboard for --tui.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/treykane/cfrok/internal/logclass"
	"golang.org/x/term"
)

// clearLine returns the cursor to column 0 and erases the line.
const clearLine = "\r\x1b[K"

// Options select how a Terminal renders.
type Options struct {
	// Quiet suppresses progress spinners and daemon log output. Session
	// lines (URL, config path, status messages) are still printed.
	Quiet bool
	// JSON suppresses everything except machine-readable output.
	JSON bool
	// Interactive enables in-place redraws (spinners, transient lines).
	Interactive bool
}

type styles struct {
	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	url     lipgloss.Style
	faint   lipgloss.Style
	dns     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")),
		url:     r.NewStyle().Foreground(lipgloss.Color("14")).Underline(true),
		faint:   r.NewStyle().Foreground(lipgloss.Color("244")),
		dns:     r.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Terminal is the line-oriented session reporter. It is safe for concurrent
// use.
type Terminal struct {
	out    io.Writer
	errOut io.Writer
	opts   Options
	st     styles

	mu        sync.Mutex
	transient string
	phase     string
	stopSpin  chan struct{}
	spinDone  chan struct{}
}

// NewTerminal returns a reporter writing progress to out and errors to errOut.
func NewTerminal(out, errOut io.Writer, opts Options) *Terminal {
	return &Terminal{
		out:    out,
		errOut: errOut,
		opts:   opts,
		st:     newStyles(lipgloss.NewRenderer(out)),
	}
}

// IsInteractive reports whether w is a terminal that supports redraws.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) silent() bool { return t.opts.Quiet || t.opts.JSON }

// BeginPhase shows msg behind an animated spinner, or as a plain line when
// the output cannot be redrawn.
func (t *Terminal) BeginPhase(msg string) {
	if t.silent() {
		return
	}
	t.EndPhase()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opts.Interactive {
		fmt.Fprintln(t.out, t.st.info.Render(msg))
		return
	}
	t.phase = msg
	t.stopSpin = make(chan struct{})
	t.spinDone = make(chan struct{})
	t.drawFrame(spinner.MiniDot.Frames[0])
	go t.spin(t.stopSpin, t.spinDone)
}

func (t *Terminal) spin(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	frames := spinner.MiniDot.Frames
	ticker := time.NewTicker(spinner.MiniDot.FPS)
	defer ticker.Stop()
	for i := 1; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			t.drawFrame(frames[i%len(frames)])
			t.mu.Unlock()
		}
	}
}

// drawFrame must be called with t.mu held.
func (t *Terminal) drawFrame(frame string) {
	fmt.Fprint(t.out, clearLine+t.st.info.Render(frame+" "+t.phase))
}

// EndPhase stops the spinner and erases its line.
func (t *Terminal) EndPhase() {
	t.mu.Lock()
	stop, done := t.stopSpin, t.spinDone
	t.stopSpin, t.spinDone = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done

	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = ""
	fmt.Fprint(t.out, clearLine)
}

// LogEvent renders one classified daemon log event.
func (t *Terminal) LogEvent(ev logclass.Event) {
	if t.silent() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Display {
	case logclass.Permanent:
		t.permanent(t.eventLine(ev))
	case logclass.Transient, logclass.Overwrite:
		line := t.eventLine(ev)
		if !t.opts.Interactive {
			fmt.Fprintln(t.out, line)
			return
		}
		t.transient = line
		fmt.Fprint(t.out, clearLine+line)
	case logclass.Clear:
		if !t.opts.Interactive || t.transient == "" {
			return
		}
		t.transient = ""
		fmt.Fprint(t.out, clearLine)
	}
}

// permanent prints line above any pending transient text, which is then
// redrawn. Must be called with t.mu held.
func (t *Terminal) permanent(line string) {
	if t.opts.Interactive && t.transient != "" {
		fmt.Fprint(t.out, clearLine)
		fmt.Fprintln(t.out, line)
		fmt.Fprint(t.out, t.transient)
		return
	}
	fmt.Fprintln(t.out, line)
}

func (t *Terminal) eventLine(ev logclass.Event) string {
	switch ev.Kind {
	case logclass.KindError:
		return t.st.err.Render("  ✗ " + ev.Text)
	case logclass.KindWarning:
		return t.st.warn.Render("  ⚠ " + ev.Text)
	case logclass.KindConnection:
		return t.st.success.Render("  ✓ " + ev.Text)
	case logclass.KindTunnelStarting:
		return t.st.info.Render("  🔄 " + ev.Text)
	case logclass.KindDNSRoute:
		return t.st.dns.Render("  📡 " + ev.Text)
	default:
		return t.st.faint.Render("  " + ev.Text)
	}
}

func (t *Terminal) println(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.permanent(line)
}

// Info prints an informational line.
func (t *Terminal) Info(msg string) {
	if t.opts.JSON {
		return
	}
	t.println(t.st.info.Render("ℹ") + " " + msg)
}

// Success prints a confirmation line.
func (t *Terminal) Success(msg string) {
	if t.opts.JSON {
		return
	}
	t.println(t.st.success.Render("✓") + " " + msg)
}

// Warn prints a warning line.
func (t *Terminal) Warn(msg string) {
	if t.opts.JSON {
		return
	}
	t.println(t.st.warn.Render("⚠") + " " + msg)
}

// Error prints msg to the error stream. Errors are shown even in quiet mode.
func (t *Terminal) Error(msg string) {
	if t.opts.JSON {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opts.Interactive && t.transient != "" {
		fmt.Fprint(t.out, clearLine)
		t.transient = ""
	}
	fmt.Fprintln(t.errOut, t.st.err.Render("✗")+" "+msg)
}

// URL prints the public address of the session.
func (t *Terminal) URL(url string) {
	if t.opts.JSON {
		return
	}
	t.println(t.st.dns.Render("🌐 URL:") + " " + t.st.url.Render(url))
}

// Config prints the path of the generated config file.
func (t *Terminal) Config(path string) {
	if t.opts.JSON {
		return
	}
	t.println(t.st.faint.Render("📁 Config: " + path))
}

// Ready announces that the session is up.
func (t *Terminal) Ready() {
	if t.opts.JSON {
		return
	}
	t.println(t.st.success.Render("🚀 Tunnel ready! Press Ctrl+C to stop..."))
}

// JSON writes v as a single JSON line. It only prints in JSON mode.
func (t *Terminal) JSON(v any) error {
	if !t.opts.JSON {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.NewEncoder(t.out).Encode(v)
}
