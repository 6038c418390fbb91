// Package client is a command-line MCP client for the minidump server. It
// lists, describes and calls the server's tools and prompts over any of the
// supported transports.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	minidumpmcp "github.com/deixis/minidump-mcp"
	"github.com/deixis/minidump-mcp/internal/config"
)

// ErrToolFailed is returned by CallTool when the server marks the result
// as an error. The result has already been printed.
var ErrToolFailed = errors.New("tool reported an error")

// NotFoundError reports an unknown tool or prompt name.
type NotFoundError struct {
	Kind string // "tool" or "prompt"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Client wraps a connected MCP session and prints results to Out.
type Client struct {
	session *mcp.ClientSession
	timeout time.Duration
	out     io.Writer
	log     zerolog.Logger
}

// Transport builds the client transport described by cfg. The stdio
// transport starts the configured server command, or this executable's
// serve command when none is set.
func Transport(cfg *config.Config) (mcp.Transport, error) {
	switch cfg.ClientTransport() {
	case config.Stdio:
		argv := cfg.Client.Command
		if len(argv) == 0 {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("locating server executable: %w", err)
			}
			argv = []string{exe, "serve"}
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stderr = os.Stderr
		return &mcp.CommandTransport{Command: cmd}, nil
	case config.SSE:
		return &mcp.SSEClientTransport{Endpoint: cfg.ClientURL()}, nil
	default:
		return &mcp.StreamableClientTransport{Endpoint: cfg.ClientURL()}, nil
	}
}

// Dial connects to the server described by cfg.
func Dial(ctx context.Context, cfg *config.Config, out io.Writer, log zerolog.Logger) (*Client, error) {
	t, err := Transport(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("transport", string(cfg.ClientTransport())).
		Str("url", cfg.ClientURL()).
		Msg("connecting")
	return Connect(ctx, t, cfg.ClientTimeout(), out, log)
}

// Connect opens a session over t. Every request is bounded by timeout.
func Connect(ctx context.Context, t mcp.Transport, timeout time.Duration, out io.Writer, log zerolog.Logger) (*Client, error) {
	impl := &mcp.Implementation{Name: "minidump-mcp-client", Version: minidumpmcp.Version}
	session, err := mcp.NewClient(impl, nil).Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	if timeout <= 0 {
		timeout = config.DefaultClientTimeout
	}
	return &Client{session: session, timeout: timeout, out: out, log: log}, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) tools(ctx context.Context) ([]*mcp.Tool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var all []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			return all, nil
		}
		params.Cursor = res.NextCursor
	}
}

func (c *Client) prompts(ctx context.Context) ([]*mcp.Prompt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var all []*mcp.Prompt
	params := &mcp.ListPromptsParams{}
	for {
		res, err := c.session.ListPrompts(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("listing prompts: %w", err)
		}
		all = append(all, res.Prompts...)
		if res.NextCursor == "" {
			return all, nil
		}
		params.Cursor = res.NextCursor
	}
}

func (c *Client) findTool(ctx context.Context, name string) (*mcp.Tool, error) {
	tools, err := c.tools(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, &NotFoundError{Kind: "tool", Name: name}
}

func (c *Client) findPrompt(ctx context.Context, name string) (*mcp.Prompt, error) {
	prompts, err := c.prompts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range prompts {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &NotFoundError{Kind: "prompt", Name: name}
}
