package ui

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatUptime renders how long a session ran, e.g. "3 minutes".
func FormatUptime(d time.Duration) string {
	if d < time.Second {
		return "less than a second"
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
}

// FormatAge renders a past timestamp relative to now, e.g. "2 hours ago".
func FormatAge(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.Time(ts)
}
