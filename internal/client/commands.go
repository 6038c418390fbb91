package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListTools prints the server's tools. The short form is a table of names
// and first description lines; detailed adds each parameter.
func (c *Client) ListTools(ctx context.Context, detailed bool) error {
	tools, err := c.tools(ctx)
	if err != nil {
		return err
	}
	if !detailed {
		rows := make([][2]string, len(tools))
		for i, t := range tools {
			rows[i] = [2]string{t.Name, summaryLine(t.Description)}
		}
		return writeTable(c.out, rows)
	}
	for _, t := range tools {
		fmt.Fprintln(c.out)
		writeTool(c.out, t)
	}
	return nil
}

// ListPrompts prints the server's prompts.
func (c *Client) ListPrompts(ctx context.Context, detailed bool) error {
	prompts, err := c.prompts(ctx)
	if err != nil {
		return err
	}
	if !detailed {
		rows := make([][2]string, len(prompts))
		for i, p := range prompts {
			rows[i] = [2]string{p.Name, summaryLine(p.Description)}
		}
		return writeTable(c.out, rows)
	}
	for _, p := range prompts {
		fmt.Fprintln(c.out)
		writePrompt(c.out, p)
	}
	return nil
}

// DescribeTool prints one tool with its parameters.
func (c *Client) DescribeTool(ctx context.Context, name string) error {
	t, err := c.findTool(ctx, name)
	if err != nil {
		return err
	}
	writeTool(c.out, t)
	return nil
}

// DescribePrompt prints one prompt with its arguments.
func (c *Client) DescribePrompt(ctx context.Context, name string) error {
	p, err := c.findPrompt(ctx, name)
	if err != nil {
		return err
	}
	writePrompt(c.out, p)
	return nil
}

// CallTool calls a tool and prints its text content, indenting JSON.
// It returns ErrToolFailed when the server flags the result as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.log.Debug().Str("tool", name).Int("args", len(args)).Msg("calling tool")
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("calling tool %s: %w", name, err)
	}
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			fmt.Fprintln(c.out, prettyJSON(tc.Text))
		}
	}
	if res.IsError {
		return ErrToolFailed
	}
	return nil
}

// CallPrompt renders a prompt and prints the text of its messages.
func (c *Client) CallPrompt(ctx context.Context, name string, args map[string]string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.log.Debug().Str("prompt", name).Int("args", len(args)).Msg("getting prompt")
	res, err := c.session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("getting prompt %s: %w", name, err)
	}
	var parts []string
	for _, m := range res.Messages {
		if tc, ok := m.Content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	fmt.Fprintln(c.out, strings.Join(parts, "\n\n"))
	return nil
}

func writeTool(w io.Writer, t *mcp.Tool) {
	fmt.Fprintln(w, t.Name)
	fmt.Fprintf(w, "Description: %s\n", orNone(t.Description))
	s := decodeSchema(t.InputSchema)
	if len(s.Properties) == 0 {
		return
	}
	fmt.Fprintln(w, "Parameters:")
	for _, name := range s.order() {
		p := s.Properties[name]
		need := "optional"
		if s.required(name) {
			need = "required"
		}
		fmt.Fprintf(w, "  - %s (%s, %s)", name, p.typeName(), need)
		if p.Description != "" {
			fmt.Fprintf(w, ": %s", p.Description)
		}
		fmt.Fprintln(w)
	}
}

func writePrompt(w io.Writer, p *mcp.Prompt) {
	fmt.Fprintln(w, p.Name)
	fmt.Fprintf(w, "Description: %s\n", orNone(p.Description))
	if len(p.Arguments) == 0 {
		return
	}
	fmt.Fprintln(w, "Arguments:")
	for _, a := range p.Arguments {
		need := "optional"
		if a.Required {
			need = "required"
		}
		fmt.Fprintf(w, "  - %s (%s)", a.Name, need)
		if a.Description != "" {
			fmt.Fprintf(w, ": %s", a.Description)
		}
		fmt.Fprintln(w)
	}
}

func writeTable(w io.Writer, rows [][2]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

// summaryLine returns the first line of a description without its
// trailing period.
func summaryLine(desc string) string {
	line, _, _ := strings.Cut(desc, "\n")
	return strings.TrimSuffix(strings.TrimSpace(line), ".")
}

func orNone(s string) string {
	if s == "" {
		return "No description"
	}
	return s
}

func prettyJSON(text string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
		return text
	}
	return buf.String()
}

// schema is the subset of a tool's JSON input schema the client reads.
type schema struct {
	Properties map[string]property `json:"properties"`
	Required   []string            `json:"required"`
}

type property struct {
	Type        any    `json:"type"` // a name, or a list such as ["null","string"]
	Description string `json:"description"`
}

// decodeSchema reads an input schema of any decoded shape. Unreadable
// schemas yield no properties.
func decodeSchema(v any) schema {
	var s schema
	if v == nil {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return s
	}
	_ = json.Unmarshal(data, &s)
	return s
}

func (s schema) required(name string) bool {
	return slices.Contains(s.Required, name)
}

// order lists required properties first, each group by name.
func (s schema) order() []string {
	names := slices.Sorted(maps.Keys(s.Properties))
	slices.SortStableFunc(names, func(a, b string) int {
		ra, rb := s.required(a), s.required(b)
		switch {
		case ra && !rb:
			return -1
		case rb && !ra:
			return 1
		}
		return 0
	})
	return names
}

func (p property) typeName() string {
	switch t := p.Type.(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}
