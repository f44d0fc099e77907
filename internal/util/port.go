package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Local ports a tunnel ingress rule may point at.
const (
	MinPort = 1
	MaxPort = 65535
)

// ValidatePort rejects ports cloudflared cannot dial on the loopback address.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range (must be %d-%d)", port, MinPort, MaxPort)
	}
	return nil
}

// ParsePort parses a decimal port argument and validates its range.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}
