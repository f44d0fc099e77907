// Package model holds the value types shared by the orchestrator, the CLI and
// the display layer.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Protocol selects the scheme of the local service in the ingress rule.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolTCP  Protocol = "tcp"
)

// ParseProtocol accepts "http" or "tcp" (case-insensitive).
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolHTTP:
		return ProtocolHTTP, nil
	case ProtocolTCP:
		return ProtocolTCP, nil
	}
	return "", fmt.Errorf("unsupported protocol %q (want http or tcp)", s)
}

// IsProtocol reports whether s names a supported protocol.
func IsProtocol(s string) bool {
	_, err := ParseProtocol(s)
	return err == nil
}

// SessionConfig is the immutable input of one tunnel session.
type SessionConfig struct {
	Port            int           `json:"port"`
	SubdomainPrefix string        `json:"subdomain_prefix"`
	Domain          string        `json:"domain"`
	TunnelID        string        `json:"tunnel_id"`
	CredentialsFile string        `json:"credentials_file"`
	ConfigDir       string        `json:"config_dir"`
	Binary          string        `json:"binary"`
	DNSWait         time.Duration `json:"dns_wait"`
	Protocol        Protocol      `json:"protocol"`
	StaticSubdomain bool          `json:"static_subdomain"`
	RandomDigits    int           `json:"random_digits"`
}

// SessionState is one step of the session lifecycle.
type SessionState string

const (
	StateInitializing        SessionState = "initializing"
	StateConfiguringDNS      SessionState = "configuring-dns"
	StateAwaitingPropagation SessionState = "awaiting-propagation"
	StateLaunchingDaemon     SessionState = "launching-daemon"
	StateAwaitingReadiness   SessionState = "awaiting-readiness"
	StateRunning             SessionState = "running"
	StateStopping            SessionState = "stopping"
	StateStopped             SessionState = "stopped"
)

// Terminal reports whether no further transitions can happen.
func (s SessionState) Terminal() bool {
	return s == StateStopped
}

// SessionSummary is the machine-readable description printed by --json.
type SessionSummary struct {
	URL        string `json:"url"`
	Subdomain  string `json:"subdomain"`
	ConfigFile string `json:"configFile"`
	PID        int    `json:"pid"`
}
