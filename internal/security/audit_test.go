package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/cfrok/internal/appconfig"
)

func TestRunLocalAudit_FindsLooseCredentials(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	creds := filepath.Join(home, "creds.json")
	if err := os.WriteFile(creds, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := appconfig.Default()
	cfg.Cloudflare.CredentialsFile = creds

	report, err := RunLocalAudit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range report.Findings {
		if f.Target == creds && f.Severity == SeverityHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected high credentials finding, got %+v", report.Findings)
	}
}

func TestRunLocalAudit_GroupWritableConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	confDir := filepath.Join(home, "cloudflared")
	if err := os.Mkdir(confDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(confDir, 0o775); err != nil {
		t.Fatal(err)
	}
	cfg := appconfig.Default()
	cfg.Session.ConfigDir = confDir

	report, err := RunLocalAudit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 {
		t.Fatalf("expected one finding, got %+v", report.Findings)
	}
	f := report.Findings[0]
	if f.Target != confDir || f.Severity != SeverityMedium || f.Recommendation != "chmod 0755 "+confDir {
		t.Fatalf("unexpected finding %+v", f)
	}
}

func TestRunLocalAudit_CleanSetup(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	creds := filepath.Join(home, "creds.json")
	if err := os.WriteFile(creds, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := appconfig.Default()
	cfg.Cloudflare.CredentialsFile = creds

	report, err := RunLocalAudit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 0 {
		t.Fatalf("expected no findings, got %+v", report.Findings)
	}
}

func TestRunLocalAudit_RedactionDisabled(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := appconfig.Default()
	cfg.Security.RedactErrors = false

	report, err := RunLocalAudit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 || report.Findings[0].Target != "config.yaml" {
		t.Fatalf("unexpected findings %+v", report.Findings)
	}
	if report.HasHigh() {
		t.Fatal("redaction finding must not be high severity")
	}
}

func TestRedactMessage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	msg := "open " + home + "/.cloudflared/c656547d-1502-4922-995f-3bac3bc58b07.json: permission denied"
	got := RedactMessage(msg)
	if want := "open ~/.cloudflared/[redacted].json: permission denied"; got != want {
		t.Fatalf("RedactMessage = %q, want %q", got, want)
	}
}

type detailed struct{ detail string }

func (d detailed) Error() string       { return "route failed" }
func (d detailed) DebugDetail() string { return d.detail }

func TestUserAndDebugMessage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	err := fmt.Errorf("write %s/conf.yml: %w", home, errors.New("denied"))
	if got := UserMessage(err, true); strings.Contains(got, home) {
		t.Fatalf("expected redacted message, got %q", got)
	}
	if got := UserMessage(err, false); !strings.Contains(got, home) {
		t.Fatalf("expected raw message, got %q", got)
	}

	wrapped := fmt.Errorf("start: %w", detailed{detail: "ERR code 1003"})
	if got := DebugMessage(wrapped); !strings.Contains(got, "ERR code 1003") || !strings.HasPrefix(got, "start: route failed") {
		t.Fatalf("unexpected debug message %q", got)
	}

	ce := NewClassifiedError("could not reach cloudflared", "dial unix: no such file")
	if got := UserMessage(ce, false); got != "could not reach cloudflared" {
		t.Fatalf("unexpected user message %q", got)
	}
	if got := DebugMessage(ce); !strings.Contains(got, "dial unix") {
		t.Fatalf("unexpected debug message %q", got)
	}
	if UserMessage(nil, true) != "" || DebugMessage(nil) != "" {
		t.Fatal("nil errors must render empty")
	}
}
