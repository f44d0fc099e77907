// Package logclass turns cloudflared's log stream into a handful of lifecycle
// events worth showing to a person.
//
// cloudflared is chatty: a healthy start prints dozens of lines about
// protocols, buffers and build info. Classification happens in two steps. A
// fixed noise list is dropped outright, then every remaining line lands in
// exactly one Kind, checked in priority order (error, warning, registered
// connection, tunnel starting, DNS route added, other). The Classifier adds the
// little bit of state needed to collapse the four connection registrations into
// one self-updating progress line.
package logclass

import (
	"fmt"
	"regexp"
)

// ExpectedConnections is the number of redundant edge connections cloudflared
// normally opens. It only shapes the progress display; readiness does not
// depend on it.
const ExpectedConnections = 4

// Kind is the semantic bucket of one log line.
type Kind int

const (
	KindNoise Kind = iota
	KindError
	KindWarning
	KindConnection
	KindTunnelStarting
	KindDNSRoute
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNoise:
		return "noise"
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindConnection:
		return "connection"
	case KindTunnelStarting:
		return "tunnel-starting"
	case KindDNSRoute:
		return "dns-route"
	default:
		return "other"
	}
}

// Display tells a renderer what to do with an event's text.
type Display int

const (
	// Permanent lines are printed once and never touched again.
	Permanent Display = iota
	// Transient text is printed without a trailing newline and may be
	// replaced by a later Overwrite or removed by Clear.
	Transient
	// Overwrite replaces the current transient text in place.
	Overwrite
	// Clear removes the current transient text.
	Clear
)

func (d Display) String() string {
	switch d {
	case Transient:
		return "transient"
	case Overwrite:
		return "overwrite"
	case Clear:
		return "clear"
	default:
		return "permanent"
	}
}

// Event is one thing to render.
type Event struct {
	Kind    Kind
	Display Display
	// Text is the message to show; for error, warning and other lines it is
	// the raw log line.
	Text string
	// Raw is the log line that produced the event.
	Raw string
	// Connections is the running count of registered connections.
	Connections int
}

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`ICMP proxy`),
	regexp.MustCompile(`ping_group_range`),
	regexp.MustCompile(`receive buffer size`),
	regexp.MustCompile(`Tunnel connection curve preferences`),
	regexp.MustCompile(`Generated Connector ID`),
	regexp.MustCompile(`Initial protocol`),
	regexp.MustCompile(`Starting metrics server`),
	regexp.MustCompile(`Autoupdate frequency`),
	regexp.MustCompile(`Settings:`),
	regexp.MustCompile(`Version \d`),
	regexp.MustCompile(`GOOS:`),
}

var (
	errorRe      = regexp.MustCompile(`(?i)error|fail|\bERR\b`)
	warningRe    = regexp.MustCompile(`(?i)warn|\bWRN\b`)
	connectionRe = regexp.MustCompile(`(?i)Registered tunnel connection`)
	startingRe   = regexp.MustCompile(`(?i)Starting tunnel`)
	dnsRouteRe   = regexp.MustCompile(`(?i)Added CNAME`)
)

// IsNoise reports whether line belongs to the fixed list of uninteresting
// cloudflared chatter.
func IsNoise(line string) bool {
	for _, re := range noisePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Classify returns the Kind of a single line. It is pure.
func Classify(line string) Kind {
	switch {
	case IsNoise(line):
		return KindNoise
	case errorRe.MatchString(line):
		return KindError
	case warningRe.MatchString(line):
		return KindWarning
	case connectionRe.MatchString(line):
		return KindConnection
	case startingRe.MatchString(line):
		return KindTunnelStarting
	case dnsRouteRe.MatchString(line):
		return KindDNSRoute
	default:
		return KindOther
	}
}

// Classifier holds the per-session display state. It is not safe for
// concurrent use; feed it from a single goroutine.
type Classifier struct {
	connections    int
	startAnnounced bool
}

// New returns a classifier for a fresh session.
func New() *Classifier {
	return &Classifier{}
}

// Connections returns how many registered connections have been seen.
func (c *Classifier) Connections() int { return c.connections }

// Feed classifies line and returns the events to render, possibly none.
func (c *Classifier) Feed(line string) []Event {
	kind := Classify(line)
	switch kind {
	case KindNoise:
		return nil
	case KindError, KindWarning, KindOther:
		return []Event{{Kind: kind, Display: Permanent, Text: line, Raw: line, Connections: c.connections}}
	case KindConnection:
		return c.connection(line)
	case KindTunnelStarting:
		c.startAnnounced = true
		return []Event{{Kind: kind, Display: Transient, Text: "Starting tunnel...", Raw: line, Connections: c.connections}}
	case KindDNSRoute:
		return []Event{{Kind: kind, Display: Permanent, Text: "DNS route configured", Raw: line, Connections: c.connections}}
	}
	return nil
}

func (c *Classifier) connection(line string) []Event {
	c.connections++
	n := c.connections
	if n > ExpectedConnections {
		return nil
	}

	ev := Event{Kind: KindConnection, Raw: line, Connections: n}
	if n == 1 {
		ev.Text = fmt.Sprintf("Connection established (1/%d)", ExpectedConnections)
		ev.Display = Permanent
		if c.startAnnounced {
			ev.Display = Overwrite
		}
	} else {
		ev.Text = fmt.Sprintf("Connections established (%d/%d)", n, ExpectedConnections)
		ev.Display = Overwrite
	}

	out := []Event{ev}
	if n == ExpectedConnections {
		out = append(out, Event{Kind: KindConnection, Display: Clear, Raw: line, Connections: n})
	}
	return out
}
