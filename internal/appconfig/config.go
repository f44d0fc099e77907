// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/treykane/cfrok/internal/model"
	"github.com/treykane/cfrok/internal/util"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDomain          = "dreamteamit.xyz"
	DefaultTunnel          = "my-tunnel"
	DefaultCredentialsFile = "~/.cloudflared/c656547d-1502-4922-995f-3bac3bc58b07.json"
	DefaultConfigDir       = "~/.cloudflared"
	DefaultBinary          = "cloudflared"
	DefaultDNSWaitSeconds  = 2.0
	DefaultRandomDigits    = 4
	MaxRandomDigits        = 9
)

// CloudflareConfig names the Cloudflare resources every session uses.
type CloudflareConfig struct {
	Domain          string `yaml:"domain"`
	Tunnel          string `yaml:"tunnel"`
	CredentialsFile string `yaml:"credentials_file"`
	Binary          string `yaml:"binary"`
}

// SessionConfig holds per-session defaults that flags can override.
type SessionConfig struct {
	ConfigDir        string  `yaml:"config_dir"`
	DNSWaitSeconds   float64 `yaml:"dns_wait_seconds"`
	RandomDigits     int     `yaml:"random_digits"`
	Protocol         string  `yaml:"protocol"`
	StopGraceSeconds int     `yaml:"stop_grace_seconds"`
}

// SecurityConfig controls how errors are presented.
type SecurityConfig struct {
	RedactErrors bool `yaml:"redact_errors"`
}

// Config holds application-level configuration.
type Config struct {
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Session    SessionConfig    `yaml:"session"`
	Security   SecurityConfig   `yaml:"security"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Cloudflare: CloudflareConfig{
			Domain:          DefaultDomain,
			Tunnel:          DefaultTunnel,
			CredentialsFile: DefaultCredentialsFile,
			Binary:          DefaultBinary,
		},
		Session: SessionConfig{
			ConfigDir:        DefaultConfigDir,
			DNSWaitSeconds:   DefaultDNSWaitSeconds,
			RandomDigits:     DefaultRandomDigits,
			Protocol:         string(model.ProtocolHTTP),
			StopGraceSeconds: int(util.DefaultStopGrace / time.Second),
		},
		Security: SecurityConfig{RedactErrors: true},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/cfrok.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cfrok"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "cfrok"), nil
}

// FilePath returns the full path to config.yaml.
func FilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// EventsFilePath returns the full path to the session journal.
func EventsFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "events.jsonl"), nil
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	path, err := FilePath()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Config{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return Normalize(cfg), nil
}

// Normalize replaces blank and out-of-range values with their defaults.
func Normalize(cfg Config) Config {
	def := Default()
	cfg.Cloudflare.Domain = util.DefaultString(cfg.Cloudflare.Domain, def.Cloudflare.Domain)
	cfg.Cloudflare.Tunnel = util.DefaultString(cfg.Cloudflare.Tunnel, def.Cloudflare.Tunnel)
	cfg.Cloudflare.CredentialsFile = util.DefaultString(cfg.Cloudflare.CredentialsFile, def.Cloudflare.CredentialsFile)
	cfg.Cloudflare.Binary = util.DefaultString(cfg.Cloudflare.Binary, def.Cloudflare.Binary)
	cfg.Session.ConfigDir = util.DefaultString(cfg.Session.ConfigDir, def.Session.ConfigDir)

	if cfg.Session.DNSWaitSeconds < 0 {
		cfg.Session.DNSWaitSeconds = 0
	}
	if cfg.Session.RandomDigits < 0 {
		cfg.Session.RandomDigits = 0
	}
	if cfg.Session.RandomDigits > MaxRandomDigits {
		cfg.Session.RandomDigits = MaxRandomDigits
	}
	if !model.IsProtocol(cfg.Session.Protocol) {
		cfg.Session.Protocol = def.Session.Protocol
	}
	if cfg.Session.StopGraceSeconds <= 0 {
		cfg.Session.StopGraceSeconds = def.Session.StopGraceSeconds
	}
	return cfg
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	path, err := FilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// DNSWait converts the configured propagation wait to a duration.
func (c Config) DNSWait() time.Duration {
	return SecondsToDuration(c.Session.DNSWaitSeconds)
}

// StopGrace converts the configured stop grace period to a duration.
func (c Config) StopGrace() time.Duration {
	return time.Duration(c.Session.StopGraceSeconds) * time.Second
}

// SessionDefaults builds a session config from the file values, with "~"
// expanded in every path. Port and prefix are left for the caller.
func (c Config) SessionDefaults() model.SessionConfig {
	proto, err := model.ParseProtocol(c.Session.Protocol)
	if err != nil {
		proto = model.ProtocolHTTP
	}
	return model.SessionConfig{
		Domain:          c.Cloudflare.Domain,
		TunnelID:        c.Cloudflare.Tunnel,
		CredentialsFile: util.ExpandTilde(c.Cloudflare.CredentialsFile),
		ConfigDir:       util.ExpandTilde(c.Session.ConfigDir),
		Binary:          c.Cloudflare.Binary,
		DNSWait:         c.DNSWait(),
		Protocol:        proto,
		RandomDigits:    c.Session.RandomDigits,
	}
}

// SecondsToDuration converts fractional seconds, as used by config and flags,
// to a duration. Negative values yield zero.
func SecondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
