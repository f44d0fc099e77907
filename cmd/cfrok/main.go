// Package main is the entry point for the cfrok binary.
//
// cfrok exposes a local port on a public hostname through a named Cloudflare
// tunnel. Each run registers a DNS route for a generated subdomain, writes a
// cloudflared ingress config for it and keeps cloudflared running until the
// user presses Ctrl+C.
//
// Usage:
//
//	cfrok 3000 api          # https://api-<digits>.<domain> -> http://127.0.0.1:3000
//	cfrok tcp 5432 db       # tcp ingress rule
//	cfrok 8080 demo --tui   # full-screen session dashboard
//	cfrok events            # review the session journal
//	cfrok doctor            # check the local cloudflared setup
//
// The CLI is constructed in internal/cli. This file only runs it and reports
// the final error.
package main

import (
	"fmt"
	"os"

	"github.com/treykane/cfrok/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()

	// Errors are already redacted for display by the command handlers.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
