// Package config loads and validates the optional .minidump-mcp file and
// applies environment overrides on top of it.
//
// Precedence, highest first: command-line flags (applied by the caller),
// environment variables, the config file, built-in defaults.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileBase is the config file name without extension.
const FileBase = ".minidump-mcp"

// Default values.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8000
	DefaultPath          = "/mcp"
	DefaultClientURL     = "http://localhost:8000/mcp"
	DefaultClientTimeout = 30 * time.Second
	MinClientTimeout     = 100 * time.Millisecond
	DefaultHistorySize   = 16
	DefaultMaxOutput     = 64 << 20 // 64 MB
)

// Transport names the MCP transport used by the server or client.
type Transport string

const (
	Stdio          Transport = "stdio"
	StreamableHTTP Transport = "streamable-http"
	SSE            Transport = "sse"
)

// ParseTransport validates a transport name.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case Stdio, StreamableHTTP, SSE:
		return t, nil
	}
	return "", &Error{
		Field:      "transport",
		Value:      s,
		Reason:     "unknown transport",
		Suggestion: "use one of: stdio, streamable-http, sse",
	}
}

// Config holds the parsed configuration. All fields are optional; zero
// values represent defaults.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Client  ClientConfig  `yaml:"client" toml:"client"`
	Tools   ToolsConfig   `yaml:"tools" toml:"tools"`
	History HistoryConfig `yaml:"history" toml:"history"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// ServerConfig controls how the MCP server is exposed.
type ServerConfig struct {
	Transport    string `yaml:"transport" toml:"transport"` // stdio (default), streamable-http, sse
	Host         string `yaml:"host" toml:"host"`
	Port         int    `yaml:"port" toml:"port"`
	Path         string `yaml:"path" toml:"path"`             // HTTP mount path, e.g. /mcp
	RawMaxOutput int    `yaml:"max_output" toml:"max_output"` // bytes per captured stream
}

// ClientConfig controls how the client connects to a server.
type ClientConfig struct {
	URL        string   `yaml:"url" toml:"url"`
	Transport  string   `yaml:"transport" toml:"transport"` // streamable-http (default), sse, stdio
	RawTimeout string   `yaml:"timeout" toml:"timeout"`     // "30s", "1m", or seconds as a number
	Command    []string `yaml:"command" toml:"command"`     // server argv for the stdio transport
}

// ToolsConfig locates the external binaries and their outputs.
type ToolsConfig struct {
	BinDir     string `yaml:"bin_dir" toml:"bin_dir"`         // bundled binaries; default <executable dir>/bin
	SymbolsDir string `yaml:"symbols_dir" toml:"symbols_dir"` // default extract_symbols output dir
}

// HistoryConfig controls the stackwalk run store.
type HistoryConfig struct {
	Size     int    `yaml:"size" toml:"size"`         // in-memory LRU capacity
	Database string `yaml:"database" toml:"database"` // SQLite path; empty keeps runs in a temp dir
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // trace, debug, info (default), warn, error, disabled
	Format string `yaml:"format" toml:"format"` // auto (default), console, json
}

// ServerTransport returns the configured server transport, defaulting to stdio.
// Validate reports unknown values; here they fall back to the default.
func (c *Config) ServerTransport() Transport {
	if t, err := ParseTransport(c.Server.Transport); err == nil {
		return t
	}
	return Stdio
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	host := c.Server.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Server.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// HTTPPath returns the mount path for HTTP transports.
func (c *Config) HTTPPath() string {
	p := c.Server.Path
	if p == "" {
		return DefaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.Server.RawMaxOutput > 0 {
		return c.Server.RawMaxOutput
	}
	return DefaultMaxOutput
}

// ClientTransport returns the configured client transport, defaulting to
// streamable-http.
func (c *Config) ClientTransport() Transport {
	if t, err := ParseTransport(c.Client.Transport); err == nil {
		return t
	}
	return StreamableHTTP
}

// ClientURL returns the server URL used by HTTP client transports.
func (c *Config) ClientURL() string {
	if c.Client.URL != "" {
		return c.Client.URL
	}
	return DefaultClientURL
}

// ClientTimeout returns the configured request timeout or the default.
func (c *Config) ClientTimeout() time.Duration {
	if c.Client.RawTimeout != "" {
		if d, err := parseTimeout(c.Client.RawTimeout); err == nil && d >= MinClientTimeout {
			return d
		}
	}
	return DefaultClientTimeout
}

// BinDir returns the bundled binary directory. The default is a bin
// directory next to the running executable.
func (c *Config) BinDir() string {
	if c.Tools.BinDir != "" {
		return c.Tools.BinDir
	}
	exe, err := os.Executable()
	if err != nil {
		return "bin"
	}
	return filepath.Join(filepath.Dir(exe), "bin")
}

// HistorySize returns the in-memory run store capacity.
func (c *Config) HistorySize() int {
	if c.History.Size > 0 {
		return c.History.Size
	}
	return DefaultHistorySize
}

// Validate checks every field that has a closed set of values.
func (c *Config) Validate() error {
	if c.Server.Transport != "" {
		if _, err := ParseTransport(c.Server.Transport); err != nil {
			e := err.(*Error)
			e.Field = "server.transport"
			return e
		}
	}
	if c.Client.Transport != "" {
		if _, err := ParseTransport(c.Client.Transport); err != nil {
			e := err.(*Error)
			e.Field = "client.transport"
			return e
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &Error{
			Field:      "server.port",
			Value:      strconv.Itoa(c.Server.Port),
			Reason:     "port out of range",
			Suggestion: "use a port between 1 and 65535",
		}
	}
	if c.Client.RawTimeout != "" {
		d, err := parseTimeout(c.Client.RawTimeout)
		if err != nil {
			return &Error{
				Field:      "client.timeout",
				Value:      c.Client.RawTimeout,
				Reason:     "not a duration",
				Suggestion: `use seconds (e.g. 60) or a Go duration (e.g. "90s")`,
			}
		}
		if d < MinClientTimeout {
			return &Error{
				Field:      "client.timeout",
				Value:      c.Client.RawTimeout,
				Reason:     fmt.Sprintf("must be at least %s", MinClientTimeout),
				Suggestion: "increase the timeout",
			}
		}
	}
	if c.History.Size < 0 {
		return &Error{
			Field:  "history.size",
			Value:  strconv.Itoa(c.History.Size),
			Reason: "must not be negative",
		}
	}
	return nil
}

// parseTimeout accepts a Go duration or a number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Error describes an invalid setting with an actionable suggestion.
type Error struct {
	Field      string
	Value      string
	Reason     string
	Suggestion string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// LoadResult holds the parsed config and the file it came from.
type LoadResult struct {
	Config *Config
	Path   string // empty when no file was found
}

// searchNames are tried in order when no explicit path is given.
var searchNames = []string{FileBase + ".yaml", FileBase + ".yml", FileBase + ".toml"}

// Load reads the config file. An explicit path must exist; otherwise dir is
// searched for .minidump-mcp.{yaml,yml,toml}. If no file exists, a default
// Config is returned.
func Load(dir, explicit string) (*LoadResult, error) {
	if explicit != "" {
		cfg, err := readFile(explicit)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file %s does not exist", explicit)
			}
			return nil, err
		}
		return &LoadResult{Config: cfg, Path: explicit}, nil
	}

	for _, name := range searchNames {
		path := filepath.Join(dir, name)
		cfg, err := readFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return &LoadResult{Config: cfg, Path: path}, nil
	}
	return &LoadResult{Config: &Config{}}, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return cfg, nil
}
