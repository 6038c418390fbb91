// Package logging configures the zerolog logger shared by the server, the
// client, and the tool providers. Logs always go to stderr: stdout carries
// the stdio transport.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deixis/minidump-mcp/internal/config"
)

// Output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger writing to w. The "auto" format picks the console
// writer when w is a terminal and JSON otherwise. The returned logger also
// becomes the global zerolog logger.
func New(app string, cfg config.LogConfig, w io.Writer) zerolog.Logger {
	out := w
	if useConsole(cfg.Format, w) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		}
	}
	logger := zerolog.New(out).Level(ParseLevel(cfg.Level)).
		With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// Stderr is New writing to os.Stderr.
func Stderr(app string, cfg config.LogConfig) zerolog.Logger {
	return New(app, cfg, os.Stderr)
}

// ParseLevel maps a level name to a zerolog level. Unknown or empty names
// mean info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func useConsole(format string, w io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatConsole:
		return true
	case FormatJSON:
		return false
	default:
		return isTerminal(w)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
