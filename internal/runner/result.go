package runner

import "time"

// Result holds the output of a successful command execution.
type Result struct {
	RunID    string        // unique identifier for this run
	ExitCode int           // always 0; failures are reported as *Error
	Stdout   []byte        // captured stdout (may be truncated); empty when Request.Stdout is set
	Stderr   []byte        // captured stderr (may be truncated)
	Duration time.Duration // wall time from start to reap

	// Set when bytes beyond the size cap were discarded from that stream.
	StdoutTruncated bool
	StderrTruncated bool
}
