package logclass

import "testing"

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		line string
		want Kind
	}{
		{"2024-01-01T00:00:00Z INF Generated Connector ID: abc", KindNoise},
		{"INF Version 2024.1.5", KindNoise},
		{"WRN The user running cloudflared process has a GID that is not within ping_group_range", KindNoise},
		{"ERR failed to sufficiently increase receive buffer size", KindNoise},
		{"ERR Failed to serve quic connection", KindError},
		{"connection failed: dial tcp", KindError},
		{"WRN Your version is outdated", KindWarning},
		{"warning: something", KindWarning},
		{"ERR Registered tunnel connection failed", KindError},
		{"INF Registered tunnel connection connIndex=0 location=ams01", KindConnection},
		{"INF Starting tunnel tunnelID=abc", KindTunnelStarting},
		{"INF Added CNAME api.example.com which will route to this tunnel", KindDNSRoute},
		{"INF Updated to new configuration", KindOther},
		{"", KindOther},
	}
	for _, tc := range cases {
		if got := Classify(tc.line); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.line, got, tc.want)
		}
	}
}

func TestFeedDropsNoise(t *testing.T) {
	c := New()
	if evs := c.Feed("INF Starting metrics server on 127.0.0.1:12345/metrics"); len(evs) != 0 {
		t.Fatalf("expected no events, got %+v", evs)
	}
}

func TestFeedConnectionProgressAfterStart(t *testing.T) {
	c := New()

	evs := c.Feed("INF Starting tunnel tunnelID=abc")
	if len(evs) != 1 || evs[0].Display != Transient || evs[0].Text != "Starting tunnel..." {
		t.Fatalf("unexpected start events: %+v", evs)
	}

	conn := "INF Registered tunnel connection connIndex=0"
	evs = c.Feed(conn)
	if len(evs) != 1 || evs[0].Display != Overwrite || evs[0].Text != "Connection established (1/4)" {
		t.Fatalf("unexpected first connection events: %+v", evs)
	}
	for k := 2; k <= 3; k++ {
		evs = c.Feed(conn)
		if len(evs) != 1 || evs[0].Display != Overwrite {
			t.Fatalf("connection %d: unexpected events %+v", k, evs)
		}
	}
	if evs[0].Text != "Connections established (3/4)" {
		t.Fatalf("unexpected text %q", evs[0].Text)
	}

	evs = c.Feed(conn)
	if len(evs) != 2 {
		t.Fatalf("expected overwrite plus clear, got %+v", evs)
	}
	if evs[0].Display != Overwrite || evs[0].Text != "Connections established (4/4)" {
		t.Fatalf("unexpected fourth connection event: %+v", evs[0])
	}
	if evs[1].Display != Clear {
		t.Fatalf("expected clear, got %+v", evs[1])
	}

	if evs = c.Feed(conn); len(evs) != 0 {
		t.Fatalf("expected nothing past the expected count, got %+v", evs)
	}
	if c.Connections() != 5 {
		t.Fatalf("Connections() = %d", c.Connections())
	}
}

func TestFeedFirstConnectionWithoutStartIsPermanent(t *testing.T) {
	c := New()
	evs := c.Feed("INF Registered tunnel connection connIndex=0")
	if len(evs) != 1 || evs[0].Display != Permanent {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestFeedPassesThroughRawLines(t *testing.T) {
	c := New()
	for _, line := range []string{
		"ERR Unable to reach the origin service",
		"WRN Retrying connection",
		"INF Updated to new configuration",
	} {
		evs := c.Feed(line)
		if len(evs) != 1 || evs[0].Display != Permanent || evs[0].Text != line {
			t.Fatalf("Feed(%q) = %+v", line, evs)
		}
	}

	evs := c.Feed("INF Added CNAME x.example.com")
	if len(evs) != 1 || evs[0].Text != "DNS route configured" || evs[0].Kind != KindDNSRoute {
		t.Fatalf("unexpected dns events: %+v", evs)
	}
}
