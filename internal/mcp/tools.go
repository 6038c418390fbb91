package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/minidump-mcp/internal/report"
	"github.com/deixis/minidump-mcp/internal/tools"
)

type stackwalkParams struct {
	MinidumpPath string `json:"minidump_path" jsonschema:"path to the minidump (.dmp) file"`
	SymbolsPath  string `json:"symbols_path,omitempty" jsonschema:"Breakpad symbol directory laid out as <module>/<id>/<module>.sym"`
	OutputFormat string `json:"output_format,omitempty" jsonschema:"json (default) for structured data or text for the human-readable report"`
}

func (h *handler) stackwalkHandler(ctx context.Context, req *mcp.CallToolRequest, params stackwalkParams) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	res := h.provider.Stackwalk(ctx, tools.StackwalkRequest{
		MinidumpPath: params.MinidumpPath,
		SymbolsPath:  params.SymbolsPath,
		Format:       params.OutputFormat,
	})
	env := res.Envelope()

	if res.OK() && res.Format == tools.FormatJSON && h.store != nil {
		run := report.NewRun(params.MinidumpPath, params.SymbolsPath, res.Command, res.Data)
		if err := h.store.Save(run); err != nil {
			h.log.Warn().Err(err).Msg("storing stackwalk run")
		} else {
			env.RunID = run.ID
		}
	}

	h.logCall("stackwalk_minidump", start, res.Failure)
	return jsonResult(env, !env.Success)
}

type symbolsParams struct {
	BinaryPath string `json:"binary_path" jsonschema:"PDB, DWARF binary or dSYM to convert"`
	OutputDir  string `json:"output_dir,omitempty" jsonschema:"root of the Breakpad symbol tree (default: ./symbols)"`
}

func (h *handler) symbolsHandler(ctx context.Context, req *mcp.CallToolRequest, params symbolsParams) (*mcp.CallToolResult, any, error) {
	start := time.Now()

	res := h.provider.ExtractSymbols(ctx, tools.SymbolsRequest{
		BinaryPath: params.BinaryPath,
		OutputDir:  params.OutputDir,
	})

	h.logCall("extract_symbols", start, res.Failure)
	env := res.Envelope()
	return jsonResult(env, !env.Success)
}

func (h *handler) logCall(tool string, start time.Time, f *tools.Failure) {
	ev := h.log.Info()
	if f != nil {
		ev = h.log.Warn().Str("error_kind", string(f.Kind)).Str("error", f.Message)
	}
	ev.Str("tool", tool).Dur("elapsed", time.Since(start)).Bool("success", f == nil).Msg("tool call")
}
