// Package tools implements the minidump tool providers: stackwalking via
// minidump-stackwalk and Breakpad symbol extraction via dump_syms. Every
// provider operation returns a result value; failures are carried in the
// result as a *Failure and never propagate as panics.
package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/deixis/minidump-mcp/internal/runner"
)

// DefaultStackwalkTimeout bounds a single minidump-stackwalk invocation.
const DefaultStackwalkTimeout = 30 * time.Second

// CommandRunner executes external tools.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// Provider holds shared dependencies for the tool operations.
type Provider struct {
	Runner   CommandRunner
	Resolver *Resolver

	// StackwalkTimeout overrides DefaultStackwalkTimeout when positive.
	StackwalkTimeout time.Duration
	// SymbolsDir is the default extract_symbols output directory.
	// Empty means a "symbols" directory under the working directory.
	SymbolsDir string

	Log   zerolog.Logger
	Getwd func() (string, error) // nil means os.Getwd
}

// New creates a Provider for the running host. It fails when the host OS
// has no known binaries.
func New(r CommandRunner, binDir string, log zerolog.Logger) (*Provider, error) {
	platform, err := DetectPlatform(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	return &Provider{
		Runner:   r,
		Resolver: &Resolver{Platform: platform, BinDir: binDir},
		Log:      log,
	}, nil
}

func (p *Provider) stackwalkTimeout() time.Duration {
	if p.StackwalkTimeout > 0 {
		return p.StackwalkTimeout
	}
	return DefaultStackwalkTimeout
}

// absPath resolves a caller-supplied path against the provider's working
// directory, so relative inputs and the default symbols directory share
// one base.
func (p *Provider) absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	wd, err := p.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, path), nil
}

func (p *Provider) getwd() (string, error) {
	if p.Getwd != nil {
		return p.Getwd()
	}
	return os.Getwd()
}

// ToolStatus reports where a tool resolved.
type ToolStatus struct {
	Tool    Tool
	Path    string // empty when unavailable
	Bundled string // expected bundled location
	Err     error  // ErrToolUnavailable failure when Path is empty
}

// Status resolves every known tool without running anything.
func (p *Provider) Status() []ToolStatus {
	var out []ToolStatus
	for _, t := range []Tool{Stackwalk, DumpSyms} {
		path, err := p.Resolver.Resolve(t)
		out = append(out, ToolStatus{Tool: t, Path: path, Bundled: p.Resolver.BundledPath(t), Err: err})
	}
	return out
}

// executionFailure converts a runner error into a Failure whose message
// starts with "<tool> execution failed" (or "timed out" for timeouts).
func executionFailure(tool string, err error) *Failure {
	var re *runner.Error
	if !errors.As(err, &re) {
		return unexpected(err)
	}
	switch re.Kind {
	case runner.Timeout:
		return &Failure{
			Kind:    Timeout,
			Message: fmt.Sprintf("%s execution timed out (%s limit)", tool, re.Timeout),
			Err:     err,
		}
	case runner.NonZeroExit:
		return &Failure{
			Kind:     ExecutionFailure,
			Message:  fmt.Sprintf("%s execution failed: %v", tool, err),
			ExitCode: re.ExitCode,
			Stdout:   string(re.Stdout),
			Stderr:   string(re.Stderr),
			Err:      err,
		}
	case runner.NotFound:
		return &Failure{Kind: NotFound, Message: fmt.Sprintf("%s execution failed: %v", tool, err), Err: err}
	case runner.Canceled:
		return &Failure{Kind: Canceled, Message: fmt.Sprintf("%s execution failed: %v", tool, err), Err: err}
	}
	return unexpected(err)
}

// recoverFailure turns a panic in a provider operation into an Unexpected
// failure stored in *dst.
func recoverFailure(dst **Failure) {
	if v := recover(); v != nil {
		err, ok := v.(error)
		if !ok {
			err = fmt.Errorf("%v", v)
		}
		*dst = unexpected(err)
	}
}
