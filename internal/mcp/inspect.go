package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/minidump-mcp/internal/report"
)

// defaultSummaryFrames is how many crashing-thread frames a summary shows.
const defaultSummaryFrames = 10

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run_id from a stackwalk_minidump result"`
	Path   string `json:"path,omitempty" jsonschema:"JSON path into the result, e.g. crash_info or threads/3/frames/0"`
	Module string `json:"module,omitempty" jsonschema:"module file name or debug file, e.g. kernel32.dll"`
	Frames int    `json:"frames,omitempty" jsonschema:"frames of the crashing thread to include in the summary (default 10)"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if h.store == nil {
		return errorResult("Run history is disabled on this server; call stackwalk_minidump again instead.")
	}

	run, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("Run %s not found. Run IDs are only kept for recent stackwalk_minidump calls.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	if err := run.Expect(report.Stackwalk); err != nil {
		return errorResult(err.Error())
	}

	switch {
	case params.Module != "":
		mod, err := report.FindModule(run.Data, params.Module)
		if err != nil {
			return errorResult(err.Error())
		}
		return indentedResult(mod)
	case params.Path != "":
		v, err := report.Select(run.Data, params.Path)
		if err != nil {
			return errorResult(err.Error())
		}
		return indentedResult(v)
	}

	frames := params.Frames
	if frames <= 0 {
		frames = defaultSummaryFrames
	}
	return textResult(report.FormatSummary(run, report.Summarize(run.Data, frames)))
}

func indentedResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Unexpected error: " + err.Error())
	}
	return textResult(string(data))
}
