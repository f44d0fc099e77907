// Package ident derives the public subdomain of a tunnel session from a
// user-supplied prefix.
package ident

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Sanitize lower-cases prefix, replaces every character outside [a-z0-9-]
// with a hyphen and strips leading and trailing hyphens. It is idempotent.
func Sanitize(prefix string) string {
	lower := strings.ToLower(prefix)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	return strings.Trim(b.String(), "-")
}

// RandomDigits draws one integer uniformly from [0, 10^n) and zero-pads it to
// width n. n <= 0 yields "". Values of n above 18 are clamped to 18 so the
// bound fits in an int64.
func RandomDigits(rng *rand.Rand, n int) string {
	if n <= 0 {
		return ""
	}
	if n > 18 {
		n = 18
	}
	max := int64(1)
	for i := 0; i < n; i++ {
		max *= 10
	}
	return fmt.Sprintf("%0*d", n, rng.Int64N(max))
}

// Subdomain builds the full public hostname for a session.
//
//	static:     <sanitized>.<domain>
//	non-static: <sanitized>-<digits>.<domain>
func Subdomain(rng *rand.Rand, prefix, domain string, static bool, digits int) string {
	safe := Sanitize(prefix)
	if static {
		return safe + "." + domain
	}
	return safe + "-" + RandomDigits(rng, digits) + "." + domain
}
