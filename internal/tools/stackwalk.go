package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/deixis/minidump-mcp/internal/runner"
)

// Output formats accepted by Stackwalk.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// StackwalkRequest holds the inputs of a stackwalk_minidump call.
type StackwalkRequest struct {
	MinidumpPath string
	SymbolsPath  string // optional Breakpad symbol directory
	Format       string // "json" (default) or anything else for raw text
}

// StackwalkResult is the outcome of one minidump-stackwalk run. Exactly one
// of (Data or Text) and Failure is meaningful: OK reports which.
type StackwalkResult struct {
	Format  string
	Command string // the command line that ran (or would have run)
	Data    any    // decoded JSON, Format "json" only
	Text    string // raw stdout for other formats
	Failure *Failure
}

// OK reports whether the run succeeded.
func (r *StackwalkResult) OK() bool { return r.Failure == nil }

// StackwalkEnvelope is the wire shape of a StackwalkResult.
type StackwalkEnvelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Command   string `json:"command,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind Kind   `json:"error_kind,omitempty"`
	RawOutput string `json:"raw_output,omitempty"`
	ExitCode  int    `json:"exit_code,omitempty"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Envelope renders r for callers that expect a flat success/error mapping.
func (r *StackwalkResult) Envelope() StackwalkEnvelope {
	if f := r.Failure; f != nil {
		return StackwalkEnvelope{
			Command:   r.Command,
			Error:     f.Message,
			ErrorKind: f.Kind,
			RawOutput: f.RawOutput,
			ExitCode:  f.ExitCode,
			Stdout:    f.Stdout,
			Stderr:    f.Stderr,
		}
	}
	env := StackwalkEnvelope{Success: true, Command: r.Command, Data: r.Data}
	if r.Format != FormatJSON {
		env.Data = r.Text
	}
	return env
}

// Stackwalk analyses a minidump with minidump-stackwalk. Preconditions are
// checked before anything is spawned; the run is bounded by the stackwalk
// timeout and by ctx.
func (p *Provider) Stackwalk(ctx context.Context, req StackwalkRequest) (res *StackwalkResult) {
	format := req.Format
	if format == "" {
		format = FormatJSON
	}
	res = &StackwalkResult{Format: format}
	defer recoverFailure(&res.Failure)

	if req.MinidumpPath == "" {
		res.Failure = failf(InvalidInput, "minidump_path is required")
		return res
	}
	dump, err := p.absPath(req.MinidumpPath)
	if err != nil {
		res.Failure = unexpected(err)
		return res
	}
	if f := checkMinidump(dump); f != nil {
		res.Failure = f
		return res
	}

	var symbols string
	if req.SymbolsPath != "" {
		if symbols, err = p.absPath(req.SymbolsPath); err != nil {
			res.Failure = unexpected(err)
			return res
		}
		if f := checkSymbolsDir(symbols); f != nil {
			res.Failure = f
			return res
		}
	}

	bin, err := p.Resolver.Resolve(Stackwalk)
	if err != nil {
		res.Failure = asFailure(err)
		return res
	}

	args := StackwalkArgs(dump, symbols, format)
	res.Command = commandLine(bin, args)

	timeout := p.stackwalkTimeout()
	out, err := p.Runner.Run(ctx, runner.Request{Path: bin, Args: args, Timeout: timeout})
	if err != nil {
		res.Failure = executionFailure(Stackwalk.Name, err)
		p.Log.Warn().Str("tool", Stackwalk.Name).Str("kind", string(res.Failure.Kind)).Err(err).Msg("stackwalk failed")
		return res
	}

	if format != FormatJSON {
		res.Text = string(out.Stdout)
		return res
	}

	data, err := decodeJSON(out.Stdout)
	if err != nil {
		msg := fmt.Sprintf("Failed to parse JSON output: %v", err)
		if out.StdoutTruncated {
			msg += " (output was truncated; raise max_output)"
		}
		res.Failure = &Failure{Kind: ParseFailure, Message: msg, RawOutput: string(out.Stdout), Err: err}
		return res
	}
	res.Data = data

	p.Log.Debug().Str("tool", Stackwalk.Name).Str("minidump", dump).Dur("elapsed", out.Duration).Msg("stackwalk complete")
	return res
}

// StackwalkArgs builds the minidump-stackwalk argument vector. Paths are
// expected to be absolute already.
func StackwalkArgs(minidump, symbols, format string) []string {
	var args []string
	if format == FormatJSON {
		args = append(args, "--json")
	}
	args = append(args, minidump)
	if symbols != "" {
		args = append(args, "--symbols-path", symbols)
	}
	return args
}

// decodeJSON decodes a single JSON value. Numbers stay json.Number so
// 64-bit addresses and ids survive re-encoding.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after the JSON value")
	}
	return v, nil
}

func checkMinidump(path string) *Failure {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failf(NotFound, "Minidump file not found: %s", path)
		}
		return failf(InvalidInput, "Cannot access minidump file %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		return failf(InvalidInput, "Path is not a file: %s", path)
	}
	return nil
}

func checkSymbolsDir(path string) *Failure {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failf(NotFound, "Symbols directory not found or not a directory: %s", path)
		}
		return failf(InvalidInput, "Cannot access symbols directory %s: %v", path, err)
	}
	if !info.IsDir() {
		return failf(InvalidInput, "Symbols directory not found or not a directory: %s", path)
	}
	return nil
}

// asFailure returns err as a *Failure, wrapping unknown errors as Unexpected.
func asFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return unexpected(err)
}

func commandLine(bin string, args []string) string {
	return strings.Join(append([]string{bin}, args...), " ")
}
