package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "less than a second"},
		{1500 * time.Millisecond, "1 second"},
		{45 * time.Second, "45 seconds"},
		{3 * time.Minute, "3 minutes"},
		{90 * time.Minute, "1 hour"},
	}
	for _, tc := range cases {
		if got := FormatUptime(tc.in); got != tc.want {
			t.Errorf("FormatUptime(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	if got := FormatAge(time.Time{}); got != "-" {
		t.Fatalf("zero time = %q", got)
	}
	if got := FormatAge(time.Now().Add(-2 * time.Hour)); got != "2 hours ago" {
		t.Fatalf("unexpected age %q", got)
	}
}

func TestPrintQR(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintQR(&buf, "https://api-1234.example.com"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if len(strings.Split(strings.TrimSpace(out), "\n")) < 10 {
		t.Fatalf("qr code looks too small:\n%s", out)
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Fatalf("expected block characters, got:\n%s", out)
	}
}
