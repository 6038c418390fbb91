package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/deixis/minidump-mcp/internal/runner"
)

// ModuleInfo identifies one build of a binary for symbol lookup.
type ModuleInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// SymbolsRequest holds the inputs of an extract_symbols call.
type SymbolsRequest struct {
	BinaryPath string
	OutputDir  string // optional; see Provider.SymbolsDir
}

// SymbolsResult is the outcome of one dump_syms run.
type SymbolsResult struct {
	Command    string
	SymbolFile string
	Module     ModuleInfo
	Size       int64 // bytes written
	Failure    *Failure
}

// OK reports whether the extraction succeeded.
func (r *SymbolsResult) OK() bool { return r.Failure == nil }

// SymbolsEnvelope is the wire shape of a SymbolsResult.
type SymbolsEnvelope struct {
	Success    bool        `json:"success"`
	SymbolFile string      `json:"symbol_file,omitempty"`
	ModuleInfo *ModuleInfo `json:"module_info,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  Kind        `json:"error_kind,omitempty"`
}

// Envelope renders r for callers that expect a flat success/error mapping.
func (r *SymbolsResult) Envelope() SymbolsEnvelope {
	if f := r.Failure; f != nil {
		return SymbolsEnvelope{Error: f.Message, ErrorKind: f.Kind}
	}
	m := r.Module
	return SymbolsEnvelope{Success: true, SymbolFile: r.SymbolFile, ModuleInfo: &m}
}

// ExtractSymbols runs dump_syms on a binary and stores the output in the
// Breakpad layout <output_dir>/<name>/<id>/<name>.sym. An existing symbol
// file for the same module and id is replaced. No timeout is applied; ctx
// cancellation still kills the process. Output is streamed to disk, so the
// runner's size cap does not apply to it.
func (p *Provider) ExtractSymbols(ctx context.Context, req SymbolsRequest) (res *SymbolsResult) {
	res = &SymbolsResult{}
	defer recoverFailure(&res.Failure)

	if req.BinaryPath == "" {
		res.Failure = failf(InvalidInput, "binary_path is required")
		return res
	}
	binary, err := p.absPath(req.BinaryPath)
	if err != nil {
		res.Failure = unexpected(err)
		return res
	}
	if _, err := os.Stat(binary); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Failure = failf(NotFound, "Binary file not found: %s", binary)
		} else {
			res.Failure = failf(InvalidInput, "Cannot access binary file %s: %v", binary, err)
		}
		return res
	}

	outDir, f := p.outputDir(req.OutputDir)
	if f != nil {
		res.Failure = f
		return res
	}

	bin, err := p.Resolver.Resolve(DumpSyms)
	if err != nil {
		res.Failure = asFailure(err)
		return res
	}

	args := []string{binary}
	res.Command = commandLine(bin, args)

	// The temp file lives in the output root so the final rename stays on
	// one filesystem.
	tmp, err := os.CreateTemp(outDir, ".dump_syms-*.tmp")
	if err != nil {
		res.Failure = &Failure{Kind: Unexpected, Message: fmt.Sprintf("Failed to write symbol file: %v", err), Err: err}
		return res
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	defer tmp.Close()

	if _, err := p.Runner.Run(ctx, runner.Request{Path: bin, Args: args, Stdout: tmp}); err != nil {
		f := executionFailure(DumpSyms.Name, err)
		f.Message = fmt.Sprintf("%s execution failed: %v", DumpSyms.Name, err)
		res.Failure = f
		return res
	}

	size, head, err := readHead(tmp)
	if err != nil {
		res.Failure = &Failure{Kind: Unexpected, Message: fmt.Sprintf("Failed to read %s output: %v", DumpSyms.Name, err), Err: err}
		return res
	}
	if strings.TrimSpace(head) == "" {
		res.Failure = failf(ParseFailure, "%s produced no output", DumpSyms.Name)
		return res
	}

	header := firstLine(head)
	module, err := ParseModuleHeader(header)
	if err != nil {
		res.Failure = &Failure{Kind: ParseFailure, Message: headerMessage(err), RawOutput: header, Err: err}
		return res
	}

	path, err := installSymbolFile(tmp, outDir, module)
	if err != nil {
		res.Failure = &Failure{Kind: Unexpected, Message: fmt.Sprintf("Failed to write symbol file: %v", err), Err: err}
		return res
	}

	res.SymbolFile = path
	res.Module = module
	res.Size = size

	p.Log.Info().Str("tool", DumpSyms.Name).Str("module", module.Name).Str("id", module.ID).
		Str("size", humanize.Bytes(uint64(res.Size))).Str("symbol_file", path).Msg("symbols extracted")
	return res
}

// DefaultOutputDir returns the absolute directory extract_symbols writes to
// when the caller names none. It does not create it.
func (p *Provider) DefaultOutputDir() (string, *Failure) {
	return p.resolveOutputDir("")
}

func (p *Provider) resolveOutputDir(requested string) (string, *Failure) {
	dir := requested
	if dir == "" {
		dir = p.SymbolsDir
	}
	if dir == "" {
		wd, err := p.getwd()
		if err != nil {
			return "", unexpected(err)
		}
		dir = filepath.Join(wd, "symbols")
	}
	abs, err := p.absPath(dir)
	if err != nil {
		return "", unexpected(err)
	}
	return abs, nil
}

// outputDir resolves and creates the directory symbol trees are written to.
func (p *Provider) outputDir(requested string) (string, *Failure) {
	dir, f := p.resolveOutputDir(requested)
	if f != nil {
		return "", f
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", failf(InvalidInput, "Cannot create output directory %s: %v", dir, err)
	}
	return dir, nil
}

// HeaderError reports a first line that is not a usable MODULE record.
type HeaderError struct {
	Line string
	Elem string // offending path element, if that was the problem
}

func (e *HeaderError) Error() string {
	if e.Elem != "" {
		return fmt.Sprintf("invalid symbol header %q: %q is not a valid path element", e.Line, e.Elem)
	}
	return fmt.Sprintf("invalid symbol header %q", e.Line)
}

// headerMessage renders a header error for tool callers.
func headerMessage(err error) string {
	var he *HeaderError
	if !errors.As(err, &he) {
		return err.Error()
	}
	if he.Elem != "" {
		return fmt.Sprintf("Invalid symbol header: %s (%q is not a valid path element)", he.Line, he.Elem)
	}
	return "Invalid symbol header: " + he.Line
}

// ParseModuleHeader parses the first line of a Breakpad symbol file:
//
//	MODULE <os> <arch> <id> <name>
//
// Exactly five whitespace-separated tokens are required. Name and id become
// path elements, so they must not contain separators or be "." or "..".
// Errors are of type *HeaderError.
func ParseModuleHeader(line string) (ModuleInfo, error) {
	line = strings.TrimRight(line, "\r")
	parts := strings.Fields(line)
	if len(parts) != 5 || parts[0] != "MODULE" {
		return ModuleInfo{}, &HeaderError{Line: line}
	}
	m := ModuleInfo{OS: parts[1], Arch: parts[2], ID: parts[3], Name: parts[4]}
	for _, elem := range []string{m.ID, m.Name} {
		if elem == "." || elem == ".." || strings.ContainsAny(elem, `/\`) {
			return ModuleInfo{}, &HeaderError{Line: line, Elem: elem}
		}
	}
	return m, nil
}

// SymbolPath returns the Breakpad location of a module's symbol file.
func SymbolPath(root string, m ModuleInfo) string {
	return filepath.Join(root, m.Name, m.ID, m.Name+".sym")
}

// headSize bounds how much of the output is read back to find the header.
const headSize = 64 << 10

// readHead returns the size of f and up to headSize bytes from its start.
func readHead(f *os.File) (int64, string, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, "", err
	}
	buf := make([]byte, min(info.Size(), headSize))
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, "", err
	}
	return info.Size(), string(buf[:n]), nil
}

// installSymbolFile moves the finished temp file into the Breakpad layout
// under root. Concurrent extractions of the same module never leave a torn
// file; the last rename wins.
func installSymbolFile(tmp *os.File, root string, m ModuleInfo) (string, error) {
	path := SymbolPath(root, m)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimRight(line, "\r")
}
