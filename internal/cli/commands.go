package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"github.com/treykane/cfrok/internal/appconfig"
	"github.com/treykane/cfrok/internal/doctor"
	"github.com/treykane/cfrok/internal/events"
	"github.com/treykane/cfrok/internal/ident"
	"github.com/treykane/cfrok/internal/ingress"
	"github.com/treykane/cfrok/internal/ui"
	"github.com/treykane/cfrok/internal/util"
)

func newEventsCmd() *cobra.Command {
	var (
		subdomain string
		sessionID string
		eventType string
		since     time.Duration
		limit     int
		sessions  bool
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the session journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{
				Subdomain: subdomain,
				SessionID: sessionID,
				EventType: eventType,
				Limit:     limit,
			}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			if sessions {
				// Session folding needs every event of a session; apply the
				// limit to the folded records instead.
				q.Limit = 0
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sessions {
				return printSessions(out, events.Sessions(evts), limit, jsonOut)
			}
			if jsonOut {
				if evts == nil {
					evts = []events.Event{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			fmt.Fprintf(out, "%-16s %-36s %-18s %-20s %-8s %s\n", "WHEN", "SUBDOMAIN", "EVENT", "STATE", "PID", "MESSAGE")
			for _, e := range evts {
				pid := "-"
				if e.PID > 0 {
					pid = fmt.Sprint(e.PID)
				}
				fmt.Fprintf(out, "%-16s %-36s %-18s %-20s %-8s %s\n",
					ui.FormatAge(e.Timestamp), util.EmptyDash(e.Subdomain), e.EventType,
					util.EmptyDash(string(e.State)), pid, util.EmptyDash(e.Message))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&subdomain, "subdomain", "", "only events for this subdomain")
	cmd.Flags().StringVar(&sessionID, "session", "", "only events for this session id")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 1h")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&sessions, "sessions", false, "show one row per session instead of raw events")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func printSessions(out io.Writer, recs []events.SessionRecord, limit int, jsonOut bool) error {
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	if jsonOut {
		if recs == nil {
			recs = []events.SessionRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	now := time.Now()
	fmt.Fprintf(out, "%-36s %-36s %-16s %-18s %-20s %s\n", "SESSION", "SUBDOMAIN", "STARTED", "LAST", "UPTIME", "MESSAGE")
	for _, r := range recs {
		uptime := "-"
		if up := r.Uptime(now); up > 0 {
			uptime = ui.FormatUptime(up)
		}
		fmt.Fprintf(out, "%-36s %-36s %-16s %-18s %-20s %s\n",
			r.SessionID, util.EmptyDash(r.Subdomain), ui.FormatAge(r.Requested), r.Last, uptime, util.EmptyDash(r.Message))
	}
	return nil
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local cloudflared setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			report, err := doctor.Run(cfg, events.NewStore())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if len(report.Issues) == 0 {
				fmt.Fprintln(out, "no issues found")
			} else {
				for _, i := range report.Issues {
					fmt.Fprintf(out, "[%s] %s %s: %s\n", i.Severity, i.Check, i.Target, i.Message)
					if i.Recommendation != "" {
						fmt.Fprintf(out, "  fix: %s\n", i.Recommendation)
					}
				}
			}
			if report.HasHigh() {
				return fmt.Errorf("doctor found high-severity issues")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var (
		static bool
		digits int
		domain string
		tunnel string
		cred   string
		check  bool
	)
	cmd := &cobra.Command{
		Use:   "render [http|tcp] <port> <prefix>",
		Short: "Print the cloudflared config a session would write",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, port, prefix, err := parseTarget(args, "")
			if err != nil {
				return err
			}
			appCfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			cfg := appCfg.SessionDefaults()
			if proto != "" {
				cfg.Protocol = proto
			}
			changed := cmd.Flags().Changed
			if changed("domain") {
				cfg.Domain = domain
			}
			if changed("tunnel") {
				cfg.TunnelID = tunnel
			}
			if changed("cred") {
				cfg.CredentialsFile = util.ExpandTilde(cred)
			}
			if changed("digits") {
				if digits < 0 || digits > appconfig.MaxRandomDigits {
					return fmt.Errorf("--digits must be between 0 and %d", appconfig.MaxRandomDigits)
				}
				cfg.RandomDigits = digits
			}
			if ident.Sanitize(prefix) == "" {
				return fmt.Errorf("prefix %q has no usable characters", prefix)
			}

			rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
			doc := ingress.Render(ingress.Params{
				TunnelID:        cfg.TunnelID,
				CredentialsFile: cfg.CredentialsFile,
				Subdomain:       ident.Subdomain(rng, prefix, cfg.Domain, static, cfg.RandomDigits),
				Port:            port,
				Protocol:        cfg.Protocol,
			})
			if check {
				if _, err := ingress.Parse(doc); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	cmd.Flags().BoolVar(&static, "static", false, "use the prefix as the subdomain without a random suffix")
	cmd.Flags().IntVar(&digits, "digits", appconfig.DefaultRandomDigits, "number of random suffix digits")
	cmd.Flags().StringVarP(&domain, "domain", "d", appconfig.DefaultDomain, "base domain")
	cmd.Flags().StringVar(&tunnel, "tunnel", appconfig.DefaultTunnel, "named tunnel id")
	cmd.Flags().StringVar(&cred, "cred", appconfig.DefaultCredentialsFile, "tunnel credentials file")
	cmd.Flags().BoolVar(&check, "check", false, "validate the document before printing it")
	return cmd
}
