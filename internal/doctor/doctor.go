// Package doctor runs local diagnostics for cfrok: the cloudflared binary,
// the tunnel credentials, the config directory and leftovers of earlier
// sessions.
package doctor

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/treykane/cfrok/internal/appconfig"
	"github.com/treykane/cfrok/internal/cloudflared"
	"github.com/treykane/cfrok/internal/events"
	"github.com/treykane/cfrok/internal/security"
	"github.com/treykane/cfrok/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// HasHigh reports whether any issue would prevent a session from starting.
func (r Report) HasHigh() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Run executes local diagnostics against cfg, reading the session journal
// from store.
func Run(cfg appconfig.Config, store *events.Store) (Report, error) {
	issues := []Issue{}

	if _, err := cloudflared.EnsureBinary(cfg.Cloudflare.Binary); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "cloudflared-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install cloudflared and ensure it is on PATH, or set cloudflare.binary",
		})
	}

	creds := util.ExpandTilde(cfg.Cloudflare.CredentialsFile)
	if st, err := os.Stat(creds); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "credentials-file",
			Target:         creds,
			Message:        "tunnel credentials file is not readable",
			Recommendation: "run `cloudflared tunnel create` or point cloudflare.credentials_file at the tunnel's JSON file",
		})
	} else if st.IsDir() {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "credentials-file",
			Target:         creds,
			Message:        "credentials path is a directory",
			Recommendation: "point cloudflare.credentials_file at the tunnel's JSON file",
		})
	}

	confDir := util.ExpandTilde(cfg.Session.ConfigDir)
	if st, err := os.Stat(confDir); err == nil && !st.IsDir() {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "config-dir",
			Target:         confDir,
			Message:        "config directory path exists but is not a directory",
			Recommendation: "remove the file or set session.config_dir to another location",
		})
	}

	if !strings.Contains(cfg.Cloudflare.Domain, ".") {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "domain",
			Target:         cfg.Cloudflare.Domain,
			Message:        "domain does not look like a DNS zone",
			Recommendation: "set cloudflare.domain to a zone managed by your Cloudflare account",
		})
	}

	if store != nil {
		if evts, err := store.Read(events.Query{}); err == nil {
			issues = append(issues, staleSessionIssues(evts)...)
		}
	}

	if audit, err := security.RunLocalAudit(cfg); err == nil {
		for _, f := range audit.Findings {
			sev := SeverityLow
			if f.Severity == security.SeverityMedium {
				sev = SeverityMedium
			}
			if f.Severity == security.SeverityHigh {
				sev = SeverityHigh
			}
			issues = append(issues, Issue{
				Severity:       sev,
				Check:          "security-audit",
				Target:         f.Target,
				Message:        f.Message,
				Recommendation: f.Recommendation,
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

// staleSessionIssues reports sessions whose journal ends without a stop
// record. A live PID means a daemon is still running somewhere; a dead one
// means cfrok itself was killed before it could clean up.
func staleSessionIssues(evts []events.Event) []Issue {
	var issues []Issue
	for _, r := range events.Sessions(evts) {
		if !r.Open() || r.PID == 0 {
			continue
		}
		target := util.DefaultString(r.Subdomain, r.SessionID)
		if processAlive(r.PID) {
			issues = append(issues, Issue{
				Severity:       SeverityLow,
				Check:          "session-live",
				Target:         target,
				Message:        fmt.Sprintf("cloudflared from an earlier session may still be running (pid %d)", r.PID),
				Recommendation: "stop it with Ctrl+C in its terminal, or kill the pid if that terminal is gone",
			})
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "session-stale",
			Target:         target,
			Message:        "session ended without a clean shutdown",
			Recommendation: "remove the leftover DNS route with `cloudflared tunnel route` if it is no longer needed",
		})
	}
	return issues
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
