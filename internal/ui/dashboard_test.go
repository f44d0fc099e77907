package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/treykane/cfrok/internal/logclass"
	"github.com/treykane/cfrok/internal/model"
	"github.com/treykane/cfrok/internal/tunnel"
)

func testDashboard() dashboardModel {
	cfg := model.SessionConfig{Port: 3000, SubdomainPrefix: "api", Domain: "example.com", TunnelID: "my-tunnel", Protocol: model.ProtocolHTTP}
	return newDashboard(cfg, func() (*tunnel.Session, error) { return nil, errors.New("not used") })
}

func update(t *testing.T, m dashboardModel, msg tea.Msg) (dashboardModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	dm, ok := next.(dashboardModel)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return dm, cmd
}

func TestDashboardLogPanel(t *testing.T) {
	m := testDashboard()
	c := logclass.New()
	for _, line := range []string{
		"INF Starting tunnel tunnelID=abc",
		"INF Registered tunnel connection connIndex=0",
		"WRN slow edge",
	} {
		for _, ev := range c.Feed(line) {
			m, _ = update(t, m, logMsg(ev))
		}
	}
	if len(m.logs) != 1 || !strings.Contains(m.logs[0], "WRN slow edge") {
		t.Fatalf("unexpected permanent logs %+v", m.logs)
	}
	if m.transient != "✓ Connection established (1/4)" {
		t.Fatalf("unexpected transient %q", m.transient)
	}
	view := m.View()
	if !strings.Contains(view, "Connection established (1/4)") || !strings.Contains(view, "WRN slow edge") {
		t.Fatalf("view missing log lines:\n%s", view)
	}
}

func TestDashboardPhaseShowsSpinner(t *testing.T) {
	m := testDashboard()
	m, _ = update(t, m, phaseMsg("Waiting for DNS propagation..."))
	if !strings.Contains(m.statusLine(), "Waiting for DNS propagation...") {
		t.Fatalf("unexpected status %q", m.statusLine())
	}
	m, _ = update(t, m, endPhaseMsg{})
	if m.statusLine() != "Starting session..." {
		t.Fatalf("unexpected status after phase %q", m.statusLine())
	}
}

func TestDashboardStartFailure(t *testing.T) {
	m := testDashboard()
	m, cmd := update(t, m, startedMsg{err: tunnel.ErrDNSRouteFailed})
	if cmd != nil {
		t.Fatal("failure without quit request must keep the dashboard open")
	}
	if !strings.Contains(m.View(), "Start failed: dns route registration failed") {
		t.Fatalf("view missing failure:\n%s", m.View())
	}
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q after failure must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
}

func TestDashboardQuitDuringStartupWaits(t *testing.T) {
	m := testDashboard()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil || !m.quitAsked {
		t.Fatalf("expected deferred quit, got cmd=%v quitAsked=%v", cmd != nil, m.quitAsked)
	}
	_, cmd = update(t, m, startedMsg{err: errors.New("boom")})
	if cmd == nil {
		t.Fatal("expected quit once startup finished")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
}

func TestDashboardHelpToggle(t *testing.T) {
	m := testDashboard()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if !m.showHelp || !strings.Contains(m.View(), "cfrok events") {
		t.Fatal("expected help panel")
	}
}
