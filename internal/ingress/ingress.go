// Package ingress renders and writes the cloudflared configuration file for a
// tunnel session.
//
// The document is produced by plain string templating rather than a YAML
// encoder: cloudflared users diff and hand-inspect these files, so the layout
// (blank line before "ingress:", two-space list indentation) is fixed
// byte-for-byte. Parse exists to check a rendered document against the
// structure cloudflared expects.
package ingress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/treykane/cfrok/internal/model"
	"gopkg.in/yaml.v3"
)

// LocalHost is the loopback address every ingress rule points at.
const LocalHost = "127.0.0.1"

// FallbackService is the catch-all rule cloudflared requires as the last
// ingress entry.
const FallbackService = "http_status:404"

// Params are the values substituted into the config document.
type Params struct {
	TunnelID        string
	CredentialsFile string
	Subdomain       string
	Port            int
	Protocol        model.Protocol
}

// Render produces the config document. Identical params always produce
// byte-identical output, terminated by a newline.
func Render(p Params) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("tunnel: %s\n", p.TunnelID))
	b.WriteString(fmt.Sprintf("credentials-file: %s\n", p.CredentialsFile))
	b.WriteString("\n")
	b.WriteString("ingress:\n")
	b.WriteString(fmt.Sprintf("  - hostname: %s\n", p.Subdomain))
	b.WriteString(fmt.Sprintf("    service: %s\n", ServiceURL(p.Protocol, p.Port)))
	b.WriteString(fmt.Sprintf("  - service: %s\n", FallbackService))
	return b.String()
}

// ServiceURL returns the local service address of the ingress rule. Anything
// other than tcp renders as http.
func ServiceURL(proto model.Protocol, port int) string {
	scheme := model.ProtocolHTTP
	if proto == model.ProtocolTCP {
		scheme = model.ProtocolTCP
	}
	return fmt.Sprintf("%s://%s:%d", scheme, LocalHost, port)
}

// FileName returns the config file name for a sanitized prefix and port.
func FileName(sanitizedPrefix string, port int) string {
	return fmt.Sprintf("config_%s_%d.yml", sanitizedPrefix, port)
}

// Materialize creates dir (and any missing parents) and writes content to
// dir/name, replacing an existing file. It returns the full path written.
func Materialize(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return path, nil
}

// Document is the subset of the cloudflared config structure cfrok writes.
type Document struct {
	Tunnel          string `yaml:"tunnel"`
	CredentialsFile string `yaml:"credentials-file"`
	Ingress         []Rule `yaml:"ingress"`
}

// Rule is one ingress entry.
type Rule struct {
	Hostname string `yaml:"hostname,omitempty"`
	Service  string `yaml:"service"`
}

// Parse decodes a config document and checks the invariants cloudflared
// enforces on load: at least one rule, and a last rule without a hostname.
func Parse(content string) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return Document{}, fmt.Errorf("parse ingress config: %w", err)
	}
	if strings.TrimSpace(doc.Tunnel) == "" {
		return doc, fmt.Errorf("ingress config has no tunnel")
	}
	if len(doc.Ingress) == 0 {
		return doc, fmt.Errorf("ingress config has no rules")
	}
	if last := doc.Ingress[len(doc.Ingress)-1]; last.Hostname != "" {
		return doc, fmt.Errorf("last ingress rule must be a catch-all, got hostname %q", last.Hostname)
	}
	return doc, nil
}
