package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/treykane/cfrok/internal/logclass"
	"github.com/treykane/cfrok/internal/model"
	"github.com/treykane/cfrok/internal/tunnel"
	"github.com/treykane/cfrok/internal/util"
)

// maxLogLines bounds the log panel.
const maxLogLines = 200

type (
	tickMsg     time.Time
	phaseMsg    string
	endPhaseMsg struct{}
	logMsg      logclass.Event
	exitedMsg   struct{}
	stoppedMsg  struct{ err error }
)

type startedMsg struct {
	session *tunnel.Session
	err     error
}

// teaReporter forwards orchestrator progress into the Bubble Tea event loop.
type teaReporter struct {
	p *tea.Program
}

func (r *teaReporter) BeginPhase(msg string)      { r.p.Send(phaseMsg(msg)) }
func (r *teaReporter) EndPhase()                  { r.p.Send(endPhaseMsg{}) }
func (r *teaReporter) LogEvent(ev logclass.Event) { r.p.Send(logMsg(ev)) }

type dashboardModel struct {
	cfg    model.SessionConfig
	start  func() (*tunnel.Session, error)
	showQR bool
	qr     string

	session   *tunnel.Session
	err       error
	stopErr   error
	phase     string
	spin      spinner.Model
	logs      []string
	transient string
	status    string
	stopping  bool
	quitAsked bool
	exited    bool
	showHelp  bool
	width     int
	now       time.Time
}

func newDashboard(cfg model.SessionConfig, start func() (*tunnel.Session, error)) dashboardModel {
	return dashboardModel{
		cfg:    cfg,
		start:  start,
		spin:   spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		status: "Starting session...",
		now:    time.Now(),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func startCmd(start func() (*tunnel.Session, error)) tea.Cmd {
	return func() tea.Msg {
		s, err := start()
		return startedMsg{session: s, err: err}
	}
}

func waitExitCmd(s *tunnel.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Done()
		return exitedMsg{}
	}
}

func stopCmd(s *tunnel.Session) tea.Cmd {
	return func() tea.Msg {
		return stoppedMsg{err: s.Stop()}
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tickCmd(), startCmd(m.start))
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case phaseMsg:
		m.phase = string(msg)
		return m, nil
	case endPhaseMsg:
		m.phase = ""
		return m, nil
	case logMsg:
		m.applyLog(logclass.Event(msg))
		return m, nil
	case startedMsg:
		m.phase = ""
		if msg.err != nil {
			m.err = msg.err
			m.status = "Start failed: " + msg.err.Error() + " (press q to quit)"
			if m.quitAsked {
				return m, tea.Quit
			}
			return m, nil
		}
		m.session = msg.session
		m.status = "Tunnel ready. Press q to stop."
		if m.showQR {
			if qr, err := QRString(m.session.URL); err == nil {
				m.qr = qr
			}
		}
		if m.quitAsked {
			m.stopping = true
			m.status = "Stopping tunnel..."
			return m, stopCmd(m.session)
		}
		return m, waitExitCmd(m.session)
	case exitedMsg:
		m.exited = true
		if m.stopping {
			return m, nil
		}
		code, _ := m.session.Process.ExitCode()
		m.status = fmt.Sprintf("cloudflared exited unexpectedly (exit code %d). Press q to quit.", code)
		return m, nil
	case stoppedMsg:
		m.stopErr = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m.quit()
		case "?":
			m.showHelp = !m.showHelp
		}
	}
	return m, nil
}

func (m dashboardModel) quit() (tea.Model, tea.Cmd) {
	switch {
	case m.stopping:
		return m, nil
	case m.err != nil || m.exited:
		return m, tea.Quit
	case m.session == nil:
		// Start cannot be interrupted; stop as soon as it returns.
		m.quitAsked = true
		m.status = "Waiting for startup to finish before stopping..."
		return m, nil
	}
	m.stopping = true
	m.status = "Stopping tunnel..."
	return m, stopCmd(m.session)
}

func (m *dashboardModel) applyLog(ev logclass.Event) {
	switch ev.Display {
	case logclass.Permanent:
		m.logs = append(m.logs, logPrefix(ev)+ev.Text)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
	case logclass.Transient, logclass.Overwrite:
		m.transient = logPrefix(ev) + ev.Text
	case logclass.Clear:
		m.transient = ""
	}
}

func logPrefix(ev logclass.Event) string {
	switch ev.Kind {
	case logclass.KindError:
		return "✗ "
	case logclass.KindWarning:
		return "⚠ "
	case logclass.KindConnection:
		return "✓ "
	case logclass.KindDNSRoute:
		return "📡 "
	case logclass.KindTunnelStarting:
		return "🔄 "
	default:
		return "  "
	}
}

func (m dashboardModel) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("cfrok")
	subhead := fmt.Sprintf("%s tunnel to 127.0.0.1:%d via %s", util.DefaultString(string(m.cfg.Protocol), "http"), m.cfg.Port, m.cfg.TunnelID)
	quickHelp := "Keys: q stop and quit | ? help"

	width := m.effectiveWidth()
	session := m.renderPanel("Session", m.sessionBlock(), width, lipgloss.Color("39"))
	logs := m.renderPanel("cloudflared", m.logBlock(), width, lipgloss.Color("63"))
	status := m.renderPanel("Status", m.statusLine(), width, lipgloss.Color("205"))
	qr := ""
	if m.qr != "" && m.session != nil {
		qr = m.renderPanel("Scan", m.qr, width, lipgloss.Color("244"))
	}
	help := ""
	if m.showHelp {
		help = m.renderPanel("Help", m.helpBlock(), width, lipgloss.Color("244"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, head, subhead, quickHelp, session, qr, logs, help, status)
}

func (m dashboardModel) sessionBlock() string {
	if m.session == nil {
		return fmt.Sprintf("Prefix: %s\nDomain: %s\n", m.cfg.SubdomainPrefix, m.cfg.Domain)
	}
	s := m.session
	uptime := "-"
	if started := s.StartedAt(); !started.IsZero() {
		uptime = FormatUptime(m.now.Sub(started))
	}
	return fmt.Sprintf("URL: %s\nConfig: %s\nPID: %d\nState: %s\nUptime: %s\n",
		s.URL, s.ConfigFile, s.PID(), s.State(), uptime)
}

func (m dashboardModel) logBlock() string {
	lines := m.logs
	if len(lines) > 12 {
		lines = lines[len(lines)-12:]
	}
	out := strings.Join(lines, "\n")
	if m.transient != "" {
		if out != "" {
			out += "\n"
		}
		out += m.transient
	}
	if out == "" {
		return "(no output yet)"
	}
	return out
}

func (m dashboardModel) statusLine() string {
	if m.phase != "" {
		return m.spin.View() + " " + m.phase
	}
	return m.status
}

func (m dashboardModel) helpBlock() string {
	return strings.Join([]string{
		"  The tunnel keeps running while this screen is open.",
		"  Quit: press q (or Ctrl+C); cloudflared is interrupted and, if it",
		"  does not exit within the grace period, killed.",
		"  Journal: run `cfrok events` afterwards to review the session.",
	}, "\n")
}

func (m dashboardModel) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m dashboardModel) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}

// DashboardOptions tune RunDashboard.
type DashboardOptions struct {
	// QR shows the public URL as a QR code once the session is running.
	QR bool
}

// RunDashboard starts a session through the orchestrator returned by
// newOrchestrator and shows it in a full-screen dashboard until the user
// quits. It returns the start error, if any. A session that is still running
// when the dashboard exits is stopped.
func RunDashboard(ctx context.Context, cfg model.SessionConfig, newOrchestrator func(tunnel.Reporter) *tunnel.Orchestrator, opts DashboardOptions) error {
	rep := &teaReporter{}
	orch := newOrchestrator(rep)
	m := newDashboard(cfg, func() (*tunnel.Session, error) { return orch.Start(ctx, cfg) })
	m.showQR = opts.QR

	p := tea.NewProgram(m, tea.WithAltScreen())
	rep.p = p
	final, err := p.Run()

	dm, _ := final.(dashboardModel)
	if dm.session != nil {
		if stopErr := dm.session.Stop(); stopErr != nil && dm.stopErr == nil {
			dm.stopErr = stopErr
		}
	}
	if dm.err != nil {
		return dm.err
	}
	if err != nil {
		return err
	}
	return dm.stopErr
}
