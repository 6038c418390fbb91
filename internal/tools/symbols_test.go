package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/deixis/minidump-mcp/internal/runner"
)

const sampleSym = "MODULE windows x86_64 5A9832E5287241C1838ED98914E9B7FF1 app.pdb\n" +
	"FILE 0 c:\\src\\app\\main.cpp\n" +
	"FUNC 1000 2f 0 crash\n"

func TestParseModuleHeader(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    ModuleInfo
		wantErr bool
	}{
		{
			name: "windows pdb",
			line: "MODULE windows x86_64 5A9832E5287241C1838ED98914E9B7FF1 app.pdb",
			want: ModuleInfo{OS: "windows", Arch: "x86_64", ID: "5A9832E5287241C1838ED98914E9B7FF1", Name: "app.pdb"},
		},
		{
			name: "trailing carriage return",
			line: "MODULE Linux x86_64 0123456789ABCDEF0 libfoo.so\r",
			want: ModuleInfo{OS: "Linux", Arch: "x86_64", ID: "0123456789ABCDEF0", Name: "libfoo.so"},
		},
		{name: "too few tokens", line: "MODULE Linux x86_64 ABC", wantErr: true},
		{name: "too many tokens", line: "MODULE mac arm64 ABC My App", wantErr: true},
		{name: "not a module line", line: "INFO CODE_ID 1234 app.exe extra", wantErr: true},
		{name: "empty", line: "", wantErr: true},
		{name: "name traversal", line: "MODULE Linux x86_64 ABC ..", wantErr: true},
		{name: "id with separator", line: "MODULE Linux x86_64 ../../etc passwd", wantErr: true},
		{name: "backslash in name", line: `MODULE windows x86 ABC a\b.pdb`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModuleHeader(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseModuleHeader(%q) = %+v, want error", tt.line, got)
				}
				var he *HeaderError
				if !errors.As(err, &he) {
					t.Fatalf("error = %T, want *HeaderError", err)
				}
				if !strings.HasPrefix(err.Error(), "invalid symbol header") {
					t.Errorf("error = %q, want lower-case message", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModuleHeader: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseModuleHeader = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractSymbols_BreakpadLayout(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(sampleSym)}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")
	out := t.TempDir()

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}

	want := filepath.Join(out, "app.pdb", "5A9832E5287241C1838ED98914E9B7FF1", "app.pdb.sym")
	if res.SymbolFile != want {
		t.Errorf("SymbolFile = %q, want %q", res.SymbolFile, want)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("reading symbol file: %v", err)
	}
	if string(got) != sampleSym {
		t.Errorf("symbol file content differs from dump_syms output")
	}
	if res.Module.Name != "app.pdb" || res.Module.OS != "windows" || res.Module.Arch != "x86_64" {
		t.Errorf("Module = %+v", res.Module)
	}
	if args := fr.Calls[0].Args; len(args) != 1 || args[0] != binary {
		t.Errorf("Args = %q, want [%s]", args, binary)
	}
	if fr.Calls[0].Timeout != 0 {
		t.Errorf("Timeout = %s, want none", fr.Calls[0].Timeout)
	}

	env := res.Envelope()
	if !env.Success || env.ModuleInfo == nil || env.ModuleInfo.ID != res.Module.ID {
		t.Errorf("Envelope = %+v", env)
	}

	entries, _ := os.ReadDir(filepath.Dir(want))
	if len(entries) != 1 {
		t.Errorf("module directory has %d entries, want only the .sym file", len(entries))
	}
}

func TestExtractSymbols_Overwrites(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(sampleSym)}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")
	out := t.TempDir()

	first := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
	if !first.OK() {
		t.Fatalf("first: %+v", first.Failure)
	}
	updated := sampleSym + "PUBLIC 2000 0 main\n"
	fr.Results[dumpSymsBin] = &runner.Result{Stdout: []byte(updated)}

	second := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
	if !second.OK() {
		t.Fatalf("second: %+v", second.Failure)
	}
	got, _ := os.ReadFile(second.SymbolFile)
	if string(got) != updated {
		t.Error("second extraction did not replace the symbol file")
	}
}

func TestExtractSymbols_ConcurrentSameModule(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(sampleSym)}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")
	out := t.TempDir()

	var wg sync.WaitGroup
	results := make([]*SymbolsResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if !res.OK() {
			t.Fatalf("result %d: %+v", i, res.Failure)
		}
	}
	got, err := os.ReadFile(results[0].SymbolFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != sampleSym {
		t.Error("symbol file is torn")
	}
}

func TestExtractSymbols_DefaultOutputDir(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(sampleSym)}}}
	p := newTestProvider(t, fr)
	wd := t.TempDir()
	p.Getwd = func() (string, error) { return wd, nil }
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	if !strings.HasPrefix(res.SymbolFile, filepath.Join(wd, "symbols")+string(filepath.Separator)) {
		t.Errorf("SymbolFile = %q, want under %s/symbols", res.SymbolFile, wd)
	}
}

func TestExtractSymbols_ConfiguredSymbolsDir(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(sampleSym)}}}
	p := newTestProvider(t, fr)
	p.SymbolsDir = filepath.Join(t.TempDir(), "store")
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	if !strings.HasPrefix(res.SymbolFile, p.SymbolsDir) {
		t.Errorf("SymbolFile = %q, want under %s", res.SymbolFile, p.SymbolsDir)
	}
}

func TestExtractSymbols_MissingBinary(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: "/nonexistent/app.exe", OutputDir: t.TempDir()})
	if res.OK() || res.Failure.Kind != NotFound {
		t.Fatalf("Failure = %+v, want not_found", res.Failure)
	}
	if !strings.Contains(res.Failure.Message, "Binary file not found") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestExtractSymbols_ToolMissing(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)
	if err := os.Remove(filepath.Join(p.Resolver.BinDir, dumpSymsBin)); err != nil {
		t.Fatal(err)
	}
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: t.TempDir()})
	if res.OK() || res.Failure.Kind != NotFound {
		t.Fatalf("Failure = %+v, want not_found", res.Failure)
	}
	if !strings.Contains(res.Failure.Message, "cargo install dump_syms") {
		t.Errorf("Message = %q, want install instructions", res.Failure.Message)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestExtractSymbols_EmptyOutput(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte("  \n")}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")
	out := t.TempDir()

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
	if res.OK() || res.Failure.Message != "dump_syms produced no output" {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Errorf("output dir has %d entries, want nothing written", len(entries))
	}
}

func TestExtractSymbols_InvalidHeader(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte("garbage line\nFUNC 1 2 3 x\n")}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")
	out := t.TempDir()

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
	if res.OK() || res.Failure.Kind != ParseFailure {
		t.Fatalf("Failure = %+v, want parse_failure", res.Failure)
	}
	if !strings.Contains(res.Failure.Message, "Invalid symbol header: garbage line") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Errorf("output dir has %d entries, want nothing written", len(entries))
	}
}

func TestExtractSymbols_ExecutionFailed(t *testing.T) {
	fr := &fakeRunner{Err: map[string]error{
		dumpSymsBin: &runner.Error{Kind: runner.NonZeroExit, Path: "/bin/" + dumpSymsBin, ExitCode: 1, Stderr: []byte("unsupported format")},
	}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: t.TempDir()})
	if res.OK() || res.Failure.Kind != ExecutionFailure {
		t.Fatalf("Failure = %+v, want execution_failure", res.Failure)
	}
	if !strings.HasPrefix(res.Failure.Message, "dump_syms execution failed: ") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	if !strings.Contains(res.Failure.Message, "unsupported format") {
		t.Errorf("Message = %q, want stderr detail", res.Failure.Message)
	}
}

func TestExtractSymbols_RealScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script")
	}
	p := newTestProvider(t, &runner.Runner{})
	script := filepath.Join(p.Resolver.BinDir, dumpSymsBin)
	body := "#!/bin/sh\necho \"MODULE Linux x86_64 ABCDEF0123 $(basename \"$1\")\"\necho 'FUNC 10 4 0 main'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	binary := writeFile(t, t.TempDir(), "libcrash.so", "ELF")
	out := t.TempDir()

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: out})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	want := filepath.Join(out, "libcrash.so", "ABCDEF0123", "libcrash.so.sym")
	if res.SymbolFile != want {
		t.Errorf("SymbolFile = %q, want %q", res.SymbolFile, want)
	}
	info, err := os.Stat(want)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestExtractSymbols_PathElementMessage(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte("MODULE Linux x86_64 ABC ..\n")}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: t.TempDir()})
	if res.OK() || res.Failure.Kind != ParseFailure {
		t.Fatalf("Failure = %+v, want parse_failure", res.Failure)
	}
	want := `Invalid symbol header: MODULE Linux x86_64 ABC .. (".." is not a valid path element)`
	if res.Failure.Message != want {
		t.Errorf("Message = %q, want %q", res.Failure.Message, want)
	}
}

func TestExtractSymbols_EmptyBinaryPath(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{OutputDir: t.TempDir()})
	if res.OK() || res.Failure.Kind != InvalidInput {
		t.Fatalf("Failure = %+v, want invalid_input", res.Failure)
	}
	if res.Failure.Message != "binary_path is required" {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	if env := res.Envelope(); env.Success || env.ErrorKind != InvalidInput {
		t.Errorf("Envelope = %+v", env)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestExtractSymbols_RelativePathsUseWorkdir(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(sampleSym)}}}
	p := newTestProvider(t, fr)
	wd := t.TempDir()
	p.Getwd = func() (string, error) { return wd, nil }
	binary := writeFile(t, wd, "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: "app.pdb", OutputDir: "out"})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	if args := fr.Calls[0].Args; len(args) != 1 || args[0] != binary {
		t.Errorf("Args = %q, want [%s]", args, binary)
	}
	want := filepath.Join(wd, "out", "app.pdb", "5A9832E5287241C1838ED98914E9B7FF1", "app.pdb.sym")
	if res.SymbolFile != want {
		t.Errorf("SymbolFile = %q, want %q", res.SymbolFile, want)
	}
}

func TestExtractSymbols_LargeOutput(t *testing.T) {
	var b strings.Builder
	b.WriteString(sampleSym)
	for b.Len() < 4*headSize {
		b.WriteString("PUBLIC 2000 0 some_long_symbol_name_for_padding\n")
	}
	fr := &fakeRunner{Results: map[string]*runner.Result{dumpSymsBin: {Stdout: []byte(b.String())}}}
	p := newTestProvider(t, fr)
	binary := writeFile(t, t.TempDir(), "app.pdb", "PDB")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: t.TempDir()})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	if res.Size != int64(b.Len()) {
		t.Errorf("Size = %d, want %d", res.Size, b.Len())
	}
	got, err := os.ReadFile(res.SymbolFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != b.String() {
		t.Errorf("symbol file has %d bytes, want %d", len(got), b.Len())
	}
}

func TestExtractSymbols_OutputBeyondRunnerCap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script")
	}
	p := newTestProvider(t, &runner.Runner{MaxOutput: 1024})
	script := filepath.Join(p.Resolver.BinDir, dumpSymsBin)
	body := "#!/bin/sh\n" +
		"echo 'MODULE Linux x86_64 ABCDEF0123 libbig.so'\n" +
		"i=0; while [ $i -lt 200 ]; do echo \"PUBLIC $i 0 padding_symbol_$i\"; i=$((i+1)); done\n" +
		"head -c 4096 /dev/zero >&2\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	binary := writeFile(t, t.TempDir(), "libbig.so", "ELF")

	res := p.ExtractSymbols(context.Background(), SymbolsRequest{BinaryPath: binary, OutputDir: t.TempDir()})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	if res.Size <= 1024 {
		t.Fatalf("Size = %d, want more than the runner cap", res.Size)
	}
	got, err := os.ReadFile(res.SymbolFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(got), "PUBLIC 199 0 padding_symbol_199\n") {
		t.Error("symbol file is missing its tail")
	}
	if entries, _ := os.ReadDir(filepath.Dir(filepath.Dir(filepath.Dir(res.SymbolFile)))); len(entries) != 1 {
		t.Errorf("output root has %d entries, want only the module directory", len(entries))
	}
}
