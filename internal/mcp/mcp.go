// Package mcp provides the minidump MCP server: it registers the stackwalk,
// symbol extraction and drill-down tools plus the analysis prompts, and
// publishes model instructions.
package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	minidumpmcp "github.com/deixis/minidump-mcp"
	"github.com/deixis/minidump-mcp/internal/report"
	"github.com/deixis/minidump-mcp/internal/tools"
)

//go:embed instructions.md
var Instructions string

// Name is the server name announced to clients.
const Name = "minidump-mcp"

// handler holds shared dependencies for all tool handlers.
type handler struct {
	provider *tools.Provider
	store    report.Store // nil disables run history
	log      zerolog.Logger

	mu   sync.Mutex
	root string // first file root reported by the client
}

// NewServer creates an MCP server with every tool and prompt registered.
// A nil store disables run IDs and inspect_minidump drill-down.
func NewServer(p *tools.Provider, store report.Store, log zerolog.Logger) *mcp.Server {
	h := &handler{provider: p, store: store, log: log}
	if p.Getwd == nil {
		p.Getwd = h.workdir
	}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools:   &mcp.ToolCapabilities{ListChanged: false},
			Prompts: &mcp.PromptCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateRootFromClient(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: Name, Version: minidumpmcp.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "stackwalk_minidump",
		Description: `Analyze a minidump crash file with minidump-stackwalk.

Returns {success, data, command} where data is the full stackwalk JSON (crash_info, crashing_thread,
threads, modules, system_info), or {success:false, error, error_kind} on failure. Pass symbols_path to
symbolicate frames from a Breakpad symbol directory (see extract_symbols). Successful JSON runs carry a
run_id for drill-down with inspect_minidump. The walk is limited to 30 seconds.`,
	}, h.stackwalkHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "extract_symbols",
		Description: `Convert native debug information (PDB, DWARF, dSYM) to Breakpad format with dump_syms.

Writes <output_dir>/<module>/<id>/<module>.sym, replacing any previous file for the same module and id,
and returns the path with the module name, id, OS and architecture. Use output_dir as symbols_path
for stackwalk_minidump.`,
	}, h.symbolsHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "inspect_minidump",
		Description: `Drill into a stored stackwalk_minidump result without re-running the walk.

With only run_id: a crash summary (exception, address, top frames of the crashing thread, modules
missing symbols). With path (e.g. crash_info, threads/3/frames/0): that part of the JSON. With module
(file name or debug file, e.g. kernel32.dll): that module's entry.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "tool_status",
		Description: "Report the host platform and where minidump-stackwalk and dump_syms resolve, with install hints for anything missing.",
	}, h.statusHandler)

	registerPrompts(s, h)

	return s
}

// updateRootFromClient asks the client for its roots. A file root becomes
// the base for the default symbols directory.
func (h *handler) updateRootFromClient(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}
	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	dir := filepath.FromSlash(u.Path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}

	h.mu.Lock()
	h.root = dir
	h.mu.Unlock()
	h.log.Debug().Str("root", dir).Msg("using client root")
}

func (h *handler) workdir() (string, error) {
	h.mu.Lock()
	root := h.root
	h.mu.Unlock()
	if root != "" {
		return root, nil
	}
	return os.Getwd()
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

// jsonResult renders v as the text content of a tool result.
func jsonResult(v any, isError bool) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult("Unexpected error: " + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: isError,
	}, nil, nil
}
