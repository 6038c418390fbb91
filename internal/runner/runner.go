// Package runner provides safe execution of external tools with an explicit
// argument vector and environment, optional timeouts, and output size limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxOutput caps each captured stream. Stackwalk JSON for large
// dumps with full thread lists runs to tens of megabytes.
const DefaultMaxOutput = 64 << 20

// waitDelay bounds how long Run waits for the output pipes to close after
// the process has been killed. Grandchildren that inherited the pipes would
// otherwise keep Wait blocked.
const waitDelay = 2 * time.Second

// Request describes a single execution.
type Request struct {
	Path    string        // executable; absolute, relative, or a bare name resolved via PATH
	Args    []string      // arguments, passed verbatim without a shell
	Dir     string        // working directory; empty means the current one
	Timeout time.Duration // zero means no bound beyond the caller's context
	Env     []string      // overrides Runner.Env when non-nil

	// Stdout, when set, receives the process's stdout without a size cap
	// and Result.Stdout stays empty.
	Stdout io.Writer
}

// Runner executes external tools. The zero value is ready to use.
type Runner struct {
	MaxOutput int            // bytes per stream; <= 0 means DefaultMaxOutput
	Env       []string       // nil means MinimalEnv()
	Log       zerolog.Logger // zero value discards
}

// Run executes req and returns the captured output when the process exits
// with status zero. Every other outcome is an *Error (NotFound, Timeout,
// NonZeroExit, Canceled) or, for unclassifiable start failures, a wrapped
// error. On timeout or cancellation the process is killed and reaped before
// Run returns.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("empty executable path")
	}

	path, err := resolve(req.Path)
	if err != nil {
		return nil, &Error{Kind: NotFound, Path: req.Path, Err: err}
	}

	maxOutput := r.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	env := req.Env
	if env == nil {
		env = r.Env
	}
	if env == nil {
		env = MinimalEnv()
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	runID := uuid.New().String()

	cmd := exec.CommandContext(runCtx, path, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	killGroup(cmd)

	var stdout, stderr bytes.Buffer
	outw := &limitWriter{buf: &stdout, limit: maxOutput}
	errw := &limitWriter{buf: &stderr, limit: maxOutput}
	cmd.Stdout = outw
	if req.Stdout != nil {
		cmd.Stdout = req.Stdout
	}
	cmd.Stderr = errw

	r.Log.Debug().Str("run_id", runID).Str("path", path).Strs("args", req.Args).
		Dur("timeout", req.Timeout).Msg("starting process")

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	// The process exited cleanly but something it spawned held the pipes open.
	if errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		runErr = nil
	}

	r.Log.Debug().Str("run_id", runID).Dur("elapsed", elapsed).Err(runErr).Msg("process finished")

	if runErr == nil {
		return &Result{
			RunID:           runID,
			Stdout:          stdout.Bytes(),
			Stderr:          stderr.Bytes(),
			StdoutTruncated: outw.dropped,
			StderrTruncated: errw.dropped,
			Duration:        elapsed,
		}, nil
	}

	// Context expiry must be checked first: the kill itself surfaces as an
	// ExitError with a signal status.
	if ctx.Err() != nil {
		return nil, &Error{Kind: Canceled, Path: path, Err: ctx.Err()}
	}
	if req.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &Error{Kind: Timeout, Path: path, Timeout: req.Timeout, Err: runCtx.Err()}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return nil, &Error{
			Kind:     NonZeroExit,
			Path:     path,
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			Err:      runErr,
		}
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
		return nil, &Error{Kind: NotFound, Path: path, Err: runErr}
	}
	return nil, fmt.Errorf("executing %s: %w", path, runErr)
}

// resolve checks that the executable exists. Bare names go through PATH;
// anything containing a separator must exist on disk as given.
func resolve(path string) (string, error) {
	if !strings.ContainsAny(path, `/\`) {
		return exec.LookPath(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the
// rest. dropped is set once any byte has been discarded.
type limitWriter struct {
	buf     *bytes.Buffer
	limit   int
	dropped bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		w.dropped = true
	}
	if remaining <= 0 {
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
