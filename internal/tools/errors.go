package tools

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure.
type Kind string

const (
	// NotFound means an input file or a tool binary is missing.
	NotFound Kind = "not_found"
	// InvalidInput means a path has the wrong type or an argument is malformed.
	InvalidInput Kind = "invalid_input"
	// ExecutionFailure means the tool exited non-zero.
	ExecutionFailure Kind = "execution_failure"
	// Timeout means the tool exceeded its bound and was killed.
	Timeout Kind = "timeout"
	// ParseFailure means the tool output could not be interpreted.
	ParseFailure Kind = "parse_failure"
	// UnsupportedPlatform means the host OS has no known binary.
	UnsupportedPlatform Kind = "unsupported_platform"
	// Canceled means the caller went away before the tool finished.
	Canceled Kind = "canceled"
	// Unexpected covers everything else.
	Unexpected Kind = "unexpected"
)

// Failure is the error half of every provider result. Message is always
// actionable text: the missing path, the install step, or the offending
// output line.
type Failure struct {
	Kind      Kind
	Message   string
	ExitCode  int    // ExecutionFailure only
	Stdout    string // ExecutionFailure only
	Stderr    string // ExecutionFailure only
	RawOutput string // ParseFailure: the text that failed to parse
	Err       error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

func failf(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// unexpected renders a failure that matched no known kind.
func unexpected(err error) *Failure {
	return &Failure{Kind: Unexpected, Message: fmt.Sprintf("Unexpected error: %v", err), Err: err}
}

// KindOf returns the Kind of err, or "" if err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
