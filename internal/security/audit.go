package security

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/treykane/cfrok/internal/appconfig"
	"github.com/treykane/cfrok/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Finding struct {
	Severity       Severity `json:"severity"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type AuditReport struct {
	Findings []Finding `json:"findings"`
}

func (r AuditReport) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// permTarget is one path whose mode must stay within max. A path holding the
// tunnel secret is reported as high severity when other users can read it.
type permTarget struct {
	label  string
	path   string
	max    os.FileMode
	dir    bool
	secret bool
}

// RunLocalAudit inspects the file posture of the tunnel credentials, the
// cloudflared config directory and cfrok's own state.
func RunLocalAudit(cfg appconfig.Config) (AuditReport, error) {
	var findings []Finding
	if !cfg.Security.RedactErrors {
		findings = append(findings, Finding{
			Severity:       SeverityLow,
			Target:         "config.yaml",
			Message:        "error messages are shown without redaction",
			Recommendation: "set security.redact_errors to true",
		})
	}

	targets := []permTarget{
		{label: "tunnel credentials", path: util.ExpandTilde(cfg.Cloudflare.CredentialsFile), max: 0o600, secret: true},
		{label: "cloudflared config directory", path: util.ExpandTilde(cfg.Session.ConfigDir), max: 0o755, dir: true},
	}
	if cfgDir, err := appconfig.ConfigDir(); err == nil {
		targets = append(targets,
			permTarget{label: "cfrok config directory", path: cfgDir, max: 0o755, dir: true},
			permTarget{label: "cfrok config", path: filepath.Join(cfgDir, "config.yaml"), max: 0o644},
			permTarget{label: "session journal", path: filepath.Join(cfgDir, "events.jsonl"), max: 0o600},
		)
	}
	for _, t := range targets {
		if f, ok := t.check(); ok {
			findings = append(findings, f)
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
	})
	return AuditReport{Findings: findings}, nil
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

// check returns a finding if the target grants any permission bit outside
// max. Missing paths are not findings.
func (t permTarget) check() (Finding, bool) {
	st, err := os.Stat(t.path)
	if os.IsNotExist(err) {
		return Finding{}, false
	}
	if err != nil {
		return Finding{
			Severity:       SeverityLow,
			Target:         t.path,
			Message:        fmt.Sprintf("unable to inspect %s: %v", t.label, err),
			Recommendation: "verify path and permissions manually",
		}, true
	}
	if st.IsDir() != t.dir {
		// Wrong kind of path; doctor reports that separately.
		return Finding{}, false
	}
	mode := st.Mode().Perm()
	extra := mode &^ t.max
	if extra == 0 {
		return Finding{}, false
	}
	sev := SeverityMedium
	if t.secret && extra&0o044 != 0 {
		sev = SeverityHigh
	}
	return Finding{
		Severity:       sev,
		Target:         t.path,
		Message:        fmt.Sprintf("%s permissions are too broad (%#o)", t.label, mode),
		Recommendation: fmt.Sprintf("chmod %#o %s", t.max, t.path),
	}, true
}
