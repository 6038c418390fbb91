package runner

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies why an execution failed.
type Kind string

const (
	// NotFound means the executable does not exist or cannot be resolved.
	NotFound Kind = "not_found"
	// Timeout means the process exceeded its configured bound and was killed.
	Timeout Kind = "timeout"
	// NonZeroExit means the process ran to completion with a non-zero status.
	NonZeroExit Kind = "non_zero_exit"
	// Canceled means the caller's context ended before the process did.
	Canceled Kind = "canceled"
)

// Error is returned by Run for every classified failure. Stdout and Stderr
// are populated for NonZeroExit so callers can surface diagnostics.
type Error struct {
	Kind     Kind
	Path     string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Timeout  time.Duration
	Err      error
}

func (e *Error) Error() string {
	name := filepath.Base(e.Path)
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("executable not found: %s", e.Path)
	case Timeout:
		return fmt.Sprintf("%s timed out after %s", name, e.Timeout)
	case NonZeroExit:
		msg := fmt.Sprintf("%s exited with code %d", name, e.ExitCode)
		if s := lastLines(string(e.Stderr), 5); s != "" {
			msg += ": " + s
		}
		return msg
	case Canceled:
		return fmt.Sprintf("%s canceled: %v", name, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// lastLines returns the last n non-empty lines of s, joined with "; ".
func lastLines(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(s), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
