// Package cli provides the command-line interface for cfrok.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/treykane/cfrok/internal/appconfig"
	"github.com/treykane/cfrok/internal/cloudflared"
	"github.com/treykane/cfrok/internal/events"
	"github.com/treykane/cfrok/internal/logging"
	"github.com/treykane/cfrok/internal/model"
	"github.com/treykane/cfrok/internal/process"
	"github.com/treykane/cfrok/internal/security"
	"github.com/treykane/cfrok/internal/tunnel"
	"github.com/treykane/cfrok/internal/ui"
	"github.com/treykane/cfrok/internal/util"
)

// sessionFlags holds the values of the root command flags. Only flags the
// user actually set override the config file.
type sessionFlags struct {
	prefix    string
	domain    string
	tunnel    string
	cred      string
	configDir string
	bin       string
	dnsWait   float64
	static    bool
	digits    int
	jsonOut   bool
	quiet     bool
	qr        bool
	tui       bool
}

// tailLines is how much daemon stderr is shown after an unexpected exit.
const tailLines = 5

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var f sessionFlags
	var logLevel string

	root := &cobra.Command{
		Use:   "cfrok [http|tcp] <port> [prefix]",
		Short: "Expose a local port through a named Cloudflare tunnel",
		Long: "cfrok registers a DNS route for a generated subdomain, writes a cloudflared\n" +
			"ingress config for it and runs the tunnel until interrupted.",
		Example: "  cfrok 3000 api\n  cfrok tcp 5432 db --static\n  cfrok http 8080 -p demo --qr",
		Args:          cobra.RangeArgs(1, 3),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(logging.New(logLevel, cmd.ErrOrStderr()))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, args, f)
		},
	}

	fl := root.Flags()
	fl.StringVarP(&f.prefix, "prefix", "p", "", "subdomain prefix (alternative to the positional argument)")
	fl.StringVarP(&f.domain, "domain", "d", appconfig.DefaultDomain, "base domain")
	fl.StringVar(&f.tunnel, "tunnel", appconfig.DefaultTunnel, "named tunnel id")
	fl.StringVar(&f.cred, "cred", appconfig.DefaultCredentialsFile, "tunnel credentials file")
	fl.StringVar(&f.configDir, "config-dir", appconfig.DefaultConfigDir, "directory for generated config files")
	fl.StringVar(&f.bin, "bin", appconfig.DefaultBinary, "cloudflared binary")
	fl.Float64Var(&f.dnsWait, "dns-wait", appconfig.DefaultDNSWaitSeconds, "seconds to wait for DNS propagation")
	fl.BoolVar(&f.static, "static", false, "use the prefix as the subdomain without a random suffix")
	fl.IntVar(&f.digits, "digits", appconfig.DefaultRandomDigits, "number of random suffix digits")
	fl.BoolVar(&f.jsonOut, "json", false, "print the session summary as JSON")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "hide progress and cloudflared output")
	fl.BoolVar(&f.qr, "qr", false, "show the public URL as a QR code")
	fl.BoolVar(&f.tui, "tui", false, "show a full-screen session dashboard")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newRenderCmd())
	return root
}

// parseTarget splits the positional arguments into protocol, port and
// prefix. The protocol is optional and empty when omitted; prefixFlag wins
// over a positional prefix.
func parseTarget(args []string, prefixFlag string) (model.Protocol, int, string, error) {
	var proto model.Protocol
	if len(args) > 0 && model.IsProtocol(args[0]) {
		proto, _ = model.ParseProtocol(args[0])
		args = args[1:]
	}
	if len(args) == 0 {
		return "", 0, "", fmt.Errorf("missing port")
	}
	if len(args) > 2 {
		return "", 0, "", fmt.Errorf("too many arguments: %s", strings.Join(args[2:], " "))
	}
	port, err := util.ParsePort(args[0])
	if err != nil {
		return "", 0, "", err
	}

	prefix := strings.TrimSpace(prefixFlag)
	if prefix == "" && len(args) == 2 {
		prefix = strings.TrimSpace(args[1])
	}
	if prefix == "" {
		return "", 0, "", fmt.Errorf("missing required prefix. Pass --prefix or as positional argument")
	}
	return proto, port, prefix, nil
}

// sessionConfig merges the config file defaults with the explicitly set flags.
func sessionConfig(cmd *cobra.Command, appCfg appconfig.Config, f sessionFlags, args []string) (model.SessionConfig, error) {
	proto, port, prefix, err := parseTarget(args, f.prefix)
	if err != nil {
		return model.SessionConfig{}, err
	}
	cfg := appCfg.SessionDefaults()
	cfg.Port = port
	cfg.SubdomainPrefix = prefix
	if proto != "" {
		cfg.Protocol = proto
	}

	changed := cmd.Flags().Changed
	if changed("domain") {
		cfg.Domain = f.domain
	}
	if changed("tunnel") {
		cfg.TunnelID = f.tunnel
	}
	if changed("cred") {
		cfg.CredentialsFile = util.ExpandTilde(f.cred)
	}
	if changed("config-dir") {
		cfg.ConfigDir = util.ExpandTilde(f.configDir)
	}
	if changed("bin") {
		cfg.Binary = f.bin
	}
	if changed("dns-wait") {
		cfg.DNSWait = appconfig.SecondsToDuration(f.dnsWait)
	}
	if changed("digits") {
		if f.digits < 0 || f.digits > appconfig.MaxRandomDigits {
			return model.SessionConfig{}, fmt.Errorf("--digits must be between 0 and %d", appconfig.MaxRandomDigits)
		}
		cfg.RandomDigits = f.digits
	}
	cfg.StaticSubdomain = f.static
	return cfg, nil
}

func runSession(cmd *cobra.Command, args []string, f sessionFlags) error {
	appCfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(cmd, appCfg, f, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal := events.NewStore()
	newOrchestrator := func(rep tunnel.Reporter) *tunnel.Orchestrator {
		return tunnel.NewOrchestrator(process.Exec{}, tunnel.Options{
			Reporter:  rep,
			Journal:   journal,
			StopGrace: appCfg.StopGrace(),
		})
	}
	redact := appCfg.Security.RedactErrors

	if f.tui {
		if err := ui.RunDashboard(ctx, cfg, newOrchestrator, ui.DashboardOptions{QR: f.qr}); err != nil {
			return userError(err, redact)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	term := ui.NewTerminal(out, cmd.ErrOrStderr(), ui.Options{
		Quiet:       f.quiet,
		JSON:        f.jsonOut,
		Interactive: ui.IsInteractive(out),
	})

	s, err := newOrchestrator(term).Start(ctx, cfg)
	if err != nil {
		if errors.Is(err, tunnel.ErrDaemonSpawnFailed) || errors.Is(err, tunnel.ErrDNSRouteFailed) {
			if _, lookErr := cloudflared.EnsureBinary(cfg.Binary); lookErr != nil {
				term.Warn("Run `cfrok doctor` to check the local cloudflared setup")
			}
		}
		return userError(err, redact)
	}

	if f.jsonOut {
		if err := term.JSON(s.Summary()); err != nil {
			return err
		}
	}
	term.URL(s.URL)
	term.Config(s.ConfigFile)
	if f.qr && !f.jsonOut {
		if err := ui.PrintQR(out, s.URL); err != nil {
			slog.Warn("failed to render QR code", "error", err)
		}
	}
	term.Ready()

	select {
	case <-ctx.Done():
		term.Info("Stopping tunnel...")
		if err := s.Stop(); err != nil {
			return userError(err, redact)
		}
		term.Success("Tunnel stopped (up " + ui.FormatUptime(time.Since(s.StartedAt())) + ")")
		return nil
	case <-s.Done():
		code, _ := s.Process.ExitCode()
		slog.Debug("cloudflared output before exit", "subdomain", s.Subdomain, "lines", s.Process.Recent())
		for _, line := range tail(s.Process.Stderr().Recent(), tailLines) {
			term.Error(security.UserMessage(errors.New(line), redact))
		}
		return fmt.Errorf("cloudflared exited unexpectedly (exit code %d)", code)
	}
}

// userError logs the full failure at debug level and returns the redacted
// message for display.
func userError(err error, redact bool) error {
	slog.Debug("session failed", "error", security.DebugMessage(err))
	return security.NewClassifiedError(security.UserMessage(err, redact), security.DebugMessage(err))
}

func tail(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// contextOrBackground lets commands run outside Execute in tests.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
