package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/deixis/minidump-mcp/internal/runner"
)

const sampleStackwalkJSON = `{
  "status": "OK",
  "crash_info": {"type": "EXCEPTION_ACCESS_VIOLATION_READ", "address": "0x0", "crashing_thread": 0},
  "crashing_thread": {"frames": [{"frame": 0, "module": "app.exe", "function": "crash"}]}
}`

func TestStackwalk_MissingMinidump(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: "/nonexistent/crash.dmp"})
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Failure.Kind != NotFound {
		t.Errorf("Kind = %q, want %q", res.Failure.Kind, NotFound)
	}
	if !strings.Contains(res.Failure.Message, "/nonexistent/crash.dmp") {
		t.Errorf("Message = %q, want the path", res.Failure.Message)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestStackwalk_MinidumpIsDirectory(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: t.TempDir()})
	if res.OK() || res.Failure.Kind != InvalidInput {
		t.Fatalf("Failure = %+v, want invalid_input", res.Failure)
	}
	if !strings.HasPrefix(res.Failure.Message, "Path is not a file") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestStackwalk_BadSymbolsPath(t *testing.T) {
	dir := t.TempDir()
	dump := writeFile(t, dir, "crash.dmp", "MDMP")
	notDir := writeFile(t, dir, "symbols.txt", "")

	tests := []struct {
		name    string
		symbols string
		want    Kind
	}{
		{"missing", filepath.Join(dir, "nope"), NotFound},
		{"file", notDir, InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRunner{}
			p := newTestProvider(t, fr)
			res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump, SymbolsPath: tt.symbols})
			if res.OK() || res.Failure.Kind != tt.want {
				t.Fatalf("Failure = %+v, want %q", res.Failure, tt.want)
			}
			if !strings.Contains(res.Failure.Message, "Symbols directory not found or not a directory") {
				t.Errorf("Message = %q", res.Failure.Message)
			}
			if fr.calls() != 0 {
				t.Errorf("runner called %d times, want 0", fr.calls())
			}
		})
	}
}

func TestStackwalk_BinaryMissing(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)
	if err := os.Remove(filepath.Join(p.Resolver.BinDir, stackwalkBin)); err != nil {
		t.Fatal(err)
	}
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if res.OK() || res.Failure.Kind != NotFound {
		t.Fatalf("Failure = %+v, want not_found", res.Failure)
	}
	if !strings.Contains(res.Failure.Message, "cargo install minidump-stackwalk") {
		t.Errorf("Message = %q, want install instructions", res.Failure.Message)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestStackwalk_JSON(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		stackwalkBin: {Stdout: []byte(sampleStackwalkJSON)},
	}}
	p := newTestProvider(t, fr)
	dir := t.TempDir()
	dump := writeFile(t, dir, "crash.dmp", "MDMP")
	symbols := filepath.Join(dir, "symbols")
	if err := os.Mkdir(symbols, 0o755); err != nil {
		t.Fatal(err)
	}

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump, SymbolsPath: symbols})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}

	if fr.calls() != 1 {
		t.Fatalf("runner called %d times, want 1", fr.calls())
	}
	req := fr.Calls[0]
	want := []string{"--json", dump, "--symbols-path", symbols}
	if strings.Join(req.Args, " ") != strings.Join(want, " ") {
		t.Errorf("Args = %q, want %q", req.Args, want)
	}
	if req.Timeout != DefaultStackwalkTimeout {
		t.Errorf("Timeout = %s, want %s", req.Timeout, DefaultStackwalkTimeout)
	}

	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data = %T, want map", res.Data)
	}
	if data["status"] != "OK" {
		t.Errorf("status = %v, want OK", data["status"])
	}
	if !strings.HasPrefix(res.Command, filepath.Join(p.Resolver.BinDir, stackwalkBin)+" --json ") {
		t.Errorf("Command = %q", res.Command)
	}

	env := res.Envelope()
	if !env.Success || env.Data == nil || env.Error != "" {
		t.Errorf("Envelope = %+v, want success with data", env)
	}
}

func TestStackwalk_EmptyMinidumpPath(t *testing.T) {
	fr := &fakeRunner{}
	p := newTestProvider(t, fr)

	res := p.Stackwalk(context.Background(), StackwalkRequest{})
	if res.OK() || res.Failure.Kind != InvalidInput || res.Failure.Message != "minidump_path is required" {
		t.Fatalf("Failure = %+v, want invalid_input", res.Failure)
	}
	if fr.calls() != 0 {
		t.Errorf("runner called %d times, want 0", fr.calls())
	}
}

func TestStackwalk_RelativePathsUseWorkdir(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		stackwalkBin: {Stdout: []byte(sampleStackwalkJSON)},
	}}
	p := newTestProvider(t, fr)
	wd := t.TempDir()
	p.Getwd = func() (string, error) { return wd, nil }
	dump := writeFile(t, wd, "crash.dmp", "MDMP")
	symbols := filepath.Join(wd, "symbols")
	if err := os.Mkdir(symbols, 0o755); err != nil {
		t.Fatal(err)
	}

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: "crash.dmp", SymbolsPath: "./symbols"})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	want := []string{"--json", dump, "--symbols-path", symbols}
	if got := fr.Calls[0].Args; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Args = %q, want %q", got, want)
	}
}

func TestStackwalk_LargeIntegersKeepPrecision(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		stackwalkBin: {Stdout: []byte(`{"crash_info": {"address": 18446744073709551615}, "pid": 9007199254740993}`)},
	}}
	p := newTestProvider(t, fr)
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	out, err := json.Marshal(res.Envelope())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"address":18446744073709551615`, `"pid":9007199254740993`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("envelope %s missing %s", out, want)
		}
	}
}

func TestStackwalk_TrailingData(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		stackwalkBin: {Stdout: []byte(`{"status": "OK"} {"status": "OK"}`)},
	}}
	p := newTestProvider(t, fr)
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if res.OK() || res.Failure.Kind != ParseFailure {
		t.Fatalf("Failure = %+v, want parse_failure", res.Failure)
	}
}

func TestStackwalk_TextFormat(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		stackwalkBin: {Stdout: []byte("Operating system: Windows NT\nThread 0 (crashed)\n")},
	}}
	p := newTestProvider(t, fr)
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump, Format: "text"})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	for _, arg := range fr.Calls[0].Args {
		if arg == "--json" {
			t.Error("--json passed for text format")
		}
	}
	if !strings.Contains(res.Text, "Thread 0 (crashed)") {
		t.Errorf("Text = %q", res.Text)
	}
	if env := res.Envelope(); env.Data != res.Text {
		t.Errorf("Envelope().Data = %v, want the raw text", env.Data)
	}
}

func TestStackwalk_InvalidJSON(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{
		stackwalkBin: {Stdout: []byte("not json at all")},
	}}
	p := newTestProvider(t, fr)
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if res.OK() || res.Failure.Kind != ParseFailure {
		t.Fatalf("Failure = %+v, want parse_failure", res.Failure)
	}
	if !strings.HasPrefix(res.Failure.Message, "Failed to parse JSON output") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	if res.Failure.RawOutput != "not json at all" {
		t.Errorf("RawOutput = %q", res.Failure.RawOutput)
	}
	if env := res.Envelope(); env.RawOutput != "not json at all" || env.Success {
		t.Errorf("Envelope = %+v", env)
	}
}

func TestStackwalk_NonZeroExit(t *testing.T) {
	fr := &fakeRunner{Err: map[string]error{
		stackwalkBin: &runner.Error{
			Kind:     runner.NonZeroExit,
			Path:     "/bin/" + stackwalkBin,
			ExitCode: 1,
			Stdout:   []byte("partial"),
			Stderr:   []byte("minidump is corrupt"),
		},
	}}
	p := newTestProvider(t, fr)
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if res.OK() || res.Failure.Kind != ExecutionFailure {
		t.Fatalf("Failure = %+v, want execution_failure", res.Failure)
	}
	if !strings.HasPrefix(res.Failure.Message, "minidump-stackwalk execution failed") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
	env := res.Envelope()
	if env.ExitCode != 1 || env.Stdout != "partial" || env.Stderr != "minidump is corrupt" {
		t.Errorf("Envelope = %+v, want exit code and output", env)
	}
}

func TestStackwalk_CustomTimeout(t *testing.T) {
	fr := &fakeRunner{Results: map[string]*runner.Result{stackwalkBin: {Stdout: []byte("{}")}}}
	p := newTestProvider(t, fr)
	p.StackwalkTimeout = 5 * time.Second
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if got := fr.Calls[0].Timeout; got != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", got)
	}
}

func TestStackwalk_PanicBecomesUnexpected(t *testing.T) {
	fr := &fakeRunner{Panic: "runner blew up"}
	p := newTestProvider(t, fr)
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if res.OK() || res.Failure.Kind != Unexpected {
		t.Fatalf("Failure = %+v, want unexpected", res.Failure)
	}
	if !strings.HasPrefix(res.Failure.Message, "Unexpected error: ") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
}

func TestStackwalk_EnvelopeJSON(t *testing.T) {
	res := &StackwalkResult{Failure: failf(NotFound, "Minidump file not found: /x")}
	b, err := json.Marshal(res.Envelope())
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if !strings.Contains(got, `"success":false`) || !strings.Contains(got, `"error":"Minidump file not found: /x"`) {
		t.Errorf("envelope JSON = %s", got)
	}
	if strings.Contains(got, `"data"`) {
		t.Errorf("failure envelope carries data: %s", got)
	}
}

// A real process that outlives the timeout is killed and reported.
func TestStackwalk_TimeoutKillsProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script")
	}
	p := newTestProvider(t, &runner.Runner{})
	script := filepath.Join(p.Resolver.BinDir, stackwalkBin)
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 10\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	p.StackwalkTimeout = 200 * time.Millisecond
	dump := writeFile(t, t.TempDir(), "crash.dmp", "MDMP")

	start := time.Now()
	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stackwalk took %s, want prompt return after timeout", elapsed)
	}
	if res.OK() || res.Failure.Kind != Timeout {
		t.Fatalf("Failure = %+v, want timeout", res.Failure)
	}
	if !strings.Contains(res.Failure.Message, "timed out") {
		t.Errorf("Message = %q", res.Failure.Message)
	}
}

func TestStackwalk_RealJSONScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script")
	}
	p := newTestProvider(t, &runner.Runner{})
	script := filepath.Join(p.Resolver.BinDir, stackwalkBin)
	body := "#!/bin/sh\n[ \"$1\" = --json ] || exit 9\necho '{\"status\":\"OK\",\"argc\":'$#'}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	dump := writeFile(t, t.TempDir(), "crash with spaces.dmp", "MDMP")

	res := p.Stackwalk(context.Background(), StackwalkRequest{MinidumpPath: dump})
	if !res.OK() {
		t.Fatalf("Failure = %+v", res.Failure)
	}
	data := res.Data.(map[string]any)
	if data["argc"] != float64(2) {
		t.Errorf("argc = %v, want 2 (path with spaces is one argument)", data["argc"])
	}
}
