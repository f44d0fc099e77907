package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
//
// This is the "coalesce" helper used when a configured value might be missing
// or blank and a sensible default should be substituted, most notably by
// appconfig.Load when normalizing a hand-edited config.yaml.
//
// Examples:
//
//	DefaultString("example.com", "dreamteamit.xyz") → "example.com"
//	DefaultString("",            "dreamteamit.xyz") → "dreamteamit.xyz"
//	DefaultString("  ",          "dreamteamit.xyz") → "dreamteamit.xyz"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" if s is empty or consists entirely of whitespace;
// otherwise it returns s unchanged.
//
// Used by the tabular CLI output (cfrok events, cfrok doctor) so that optional
// columns show a visible placeholder instead of a blank gap.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}
