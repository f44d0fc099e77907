package security

import (
	"errors"
	"os"
	"regexp"
	"strings"
)

// ClassifiedError separates a user-safe message from verbose debug details.
type ClassifiedError struct {
	UserSafe string
	Detail   string
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.UserSafe) == "" {
		return "operation failed"
	}
	return e.UserSafe
}

// DebugDetail returns the verbose half of the error.
func (e *ClassifiedError) DebugDetail() string { return e.Detail }

// NewClassifiedError creates a new error with separated user-safe and debug details.
func NewClassifiedError(userSafe, debugDetail string) error {
	return &ClassifiedError{UserSafe: userSafe, Detail: debugDetail}
}

// debugDetailer is implemented by errors that carry raw command output.
type debugDetailer interface {
	DebugDetail() string
}

// UserMessage returns a message safe to show in CLI/TUI contexts.
func UserMessage(err error, redact bool) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		msg = ce.Error()
	}
	if redact {
		return RedactMessage(msg)
	}
	return msg
}

// DebugMessage returns detailed error text for logs: the error itself
// followed by any captured detail.
func DebugMessage(err error) string {
	if err == nil {
		return ""
	}
	var dd debugDetailer
	if errors.As(err, &dd) {
		if detail := strings.TrimSpace(dd.DebugDetail()); detail != "" {
			return err.Error() + "\n" + detail
		}
	}
	return err.Error()
}

var credentialsFileRe = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.json`)

// RedactMessage strips the home directory and tunnel credential file names
// from user-visible text.
func RedactMessage(msg string) string {
	if msg == "" {
		return msg
	}
	out := msg
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		out = strings.ReplaceAll(out, home, "~")
	}
	return credentialsFileRe.ReplaceAllString(out, "[redacted].json")
}
