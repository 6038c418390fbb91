package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type statusParams struct{}

func (h *handler) statusHandler(ctx context.Context, req *mcp.CallToolRequest, _ statusParams) (*mcp.CallToolResult, any, error) {
	var b strings.Builder
	p := h.provider

	fmt.Fprintf(&b, "Platform: %s\n", p.Resolver.Platform)
	fmt.Fprintf(&b, "Bundled binaries: %s\n", p.Resolver.BinDir)
	if dir, f := p.DefaultOutputDir(); f == nil {
		fmt.Fprintf(&b, "Default symbols directory: %s\n", dir)
	}
	fmt.Fprintf(&b, "Run history: %t\n", h.store != nil)
	fmt.Fprintln(&b)

	for _, st := range p.Status() {
		if st.Err != nil {
			fmt.Fprintf(&b, "%s: unavailable\n", st.Tool.Name)
			for _, line := range strings.Split(st.Err.Error(), "\n") {
				fmt.Fprintf(&b, "  %s\n", line)
			}
			continue
		}
		source := "PATH"
		if st.Path == st.Bundled {
			source = "bundled"
		}
		fmt.Fprintf(&b, "%s: %s (%s)\n", st.Tool.Name, st.Path, source)
	}

	return textResult(b.String())
}
