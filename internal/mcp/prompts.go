package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/minidump-mcp/internal/prompts"
)

func registerPrompts(s *mcp.Server, h *handler) {
	for _, p := range prompts.All() {
		s.AddPrompt(promptDef(p), h.promptHandler(p))
	}
}

func promptDef(p prompts.Prompt) *mcp.Prompt {
	def := &mcp.Prompt{Name: p.Name, Description: p.Description}
	for _, a := range p.Args {
		desc := a.Description
		if a.Default != "" {
			desc += " (default: " + a.Default + ")"
		}
		def.Arguments = append(def.Arguments, &mcp.PromptArgument{
			Name:        a.Name,
			Description: desc,
			Required:    a.Required,
		})
	}
	return def
}

func (h *handler) promptHandler(p prompts.Prompt) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var args map[string]string
		if req.Params != nil {
			args = req.Params.Arguments
		}
		text, err := p.Render(args)
		if err != nil {
			h.log.Warn().Str("prompt", p.Name).Err(err).Msg("prompt rejected")
			return nil, err
		}
		h.log.Debug().Str("prompt", p.Name).Int("bytes", len(text)).Msg("prompt rendered")
		return &mcp.GetPromptResult{
			Description: p.Description,
			Messages: []*mcp.PromptMessage{
				{Role: "user", Content: &mcp.TextContent{Text: text}},
			},
		}, nil
	}
}
