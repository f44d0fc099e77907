// Package cloudflared knows how to talk to the cloudflared binary: which
// arguments to pass and how to read its (unstructured) output.
//
// cloudflared has no machine-readable success codes for the two situations
// cfrok cares about, so both are detected by matching log text. Each pattern
// lives behind exactly one predicate in this file; a wording change in a new
// cloudflared release should only ever require touching that predicate.
package cloudflared

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// DefaultBinary is the executable name resolved via PATH when no explicit
// binary is configured.
const DefaultBinary = "cloudflared"

// RegisteredConnectionMarker is the log signature cloudflared prints each time
// one of its edge connections is registered.
const RegisteredConnectionMarker = "Registered tunnel connection"

var routeExistsRe = regexp.MustCompile(`(?i)already exists|already.*CNAME`)

// IsRouteAlreadyExists reports whether the output of a failed
// "tunnel route dns" invocation means the route was registered earlier.
// Re-registering the same hostname against the same tunnel is then treated as
// success.
func IsRouteAlreadyExists(output string) bool {
	return routeExistsRe.MatchString(output)
}

// IsRegisteredConnection reports whether a daemon log line announces a
// registered edge connection.
func IsRegisteredConnection(line string) bool {
	return strings.Contains(line, RegisteredConnectionMarker)
}

// RouteDNSArgs returns the arguments for registering hostname as a CNAME to
// the tunnel:
//
//	cloudflared tunnel route dns <tunnel> <hostname>
func RouteDNSArgs(tunnelID, hostname string) []string {
	return []string{"tunnel", "route", "dns", tunnelID, hostname}
}

// RunArgs returns the arguments for running the tunnel with a config file:
//
//	cloudflared tunnel --config <file> run <tunnel>
func RunArgs(configFile, tunnelID string) []string {
	return []string{"tunnel", "--config", configFile, "run", tunnelID}
}

// EnsureBinary checks that bin resolves to an executable, either as a path or
// through PATH, and returns the resolved location.
func EnsureBinary(bin string) (string, error) {
	if strings.TrimSpace(bin) == "" {
		bin = DefaultBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s binary not found in PATH", bin)
	}
	return path, nil
}
