// Command minidump-mcp analyzes minidump crash files and extracts Breakpad
// symbols, either as an MCP server or directly from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	minidumpmcp "github.com/deixis/minidump-mcp"
	"github.com/deixis/minidump-mcp/internal/config"
	"github.com/deixis/minidump-mcp/internal/logging"
	mdmcp "github.com/deixis/minidump-mcp/internal/mcp"
	"github.com/deixis/minidump-mcp/internal/report"
	"github.com/deixis/minidump-mcp/internal/runner"
	"github.com/deixis/minidump-mcp/internal/tools"
)

const appName = "minidump-mcp"

func main() {
	log.SetFlags(0)
	log.SetPrefix(appName + ": ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = serveMain(args)
	case "stackwalk":
		err = stackwalkMain(args)
	case "extract-symbols":
		err = symbolsMain(args)
	case "client":
		err = clientMain(args)
	case "version":
		fmt.Println(minidumpmcp.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: minidump-mcp <command> [flags] [args]

Commands:
  serve            Start the MCP server (stdio, streamable-http or sse)
  stackwalk        Analyze a minidump with minidump-stackwalk
  extract-symbols  Convert debug information to a Breakpad .sym file
  client           Talk to a running server (list-tools, call-tool, ...)
  version          Print the version
  help             Show this help

Use "minidump-mcp <command> -h" for command-specific flags.`)
}

// --- shared ---

// common holds the flags every command accepts.
type common struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default: "+config.FileBase+".{yaml,yml,toml} in the working directory)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")
	fs.StringVar(&c.logFormat, "log-format", "", "log format: auto, console, json")
}

// load resolves the configuration: file, then environment, then the flags
// applied by override. It returns the validated config and a stderr logger.
func (c *common) load(override func(*config.Config)) (*config.Config, zerolog.Logger, error) {
	nop := zerolog.Nop()
	wd, err := os.Getwd()
	if err != nil {
		return nil, nop, fmt.Errorf("determining working directory: %w", err)
	}
	loaded, err := config.Load(wd, c.configPath)
	if err != nil {
		return nil, nop, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, nop, err
	}

	setString(&cfg.Log.Level, c.logLevel)
	setString(&cfg.Log.Format, c.logFormat)
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nop, err
	}

	logger := logging.Stderr(appName, cfg.Log)
	if loaded.Path != "" {
		logger.Debug().Str("path", loaded.Path).Msg("config loaded")
	}
	return cfg, logger, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func newProvider(cfg *config.Config, logger zerolog.Logger) (*tools.Provider, error) {
	r := &runner.Runner{MaxOutput: cfg.MaxOutputBytes(), Log: logger}
	p, err := tools.New(r, cfg.BinDir(), logger)
	if err != nil {
		return nil, err
	}
	p.SymbolsDir = cfg.Tools.SymbolsDir
	return p, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- serve ---

func serveMain(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	transport := fs.String("transport", "", "transport: stdio (default), streamable-http, sse")
	host := fs.String("host", "", "HTTP listen host (default "+config.DefaultHost+")")
	port := fs.Int("port", 0, fmt.Sprintf("HTTP listen port (default %d)", config.DefaultPort))
	path := fs.String("path", "", "HTTP mount path (default "+config.DefaultPath+")")
	binDir := fs.String("bin-dir", "", "directory of bundled tool binaries (default <executable dir>/bin)")
	symbolsDir := fs.String("symbols-dir", "", "default output directory for extract_symbols")
	historyDB := fs.String("history-db", "", "SQLite file for stackwalk run history (default: temp directory)")
	historySize := fs.Int("history-size", 0, fmt.Sprintf("runs kept in memory (default %d)", config.DefaultHistorySize))
	noHistory := fs.Bool("no-history", false, "disable run IDs and inspect_minidump")
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(mdmcp.Instructions)
		return nil
	}

	cfg, logger, err := c.load(func(cfg *config.Config) {
		setString(&cfg.Server.Transport, *transport)
		setString(&cfg.Server.Host, *host)
		setString(&cfg.Server.Path, *path)
		setString(&cfg.Tools.BinDir, *binDir)
		setString(&cfg.Tools.SymbolsDir, *symbolsDir)
		setString(&cfg.History.Database, *historyDB)
		if *port != 0 {
			cfg.Server.Port = *port
		}
		if *historySize != 0 {
			cfg.History.Size = *historySize
		}
	})
	if err != nil {
		return err
	}

	p, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	var store report.Store
	if !*noHistory {
		s, closeStore, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		store = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := mdmcp.NewServer(p, store, logger)
	logger.Info().
		Str("version", minidumpmcp.Version).
		Str("transport", string(cfg.ServerTransport())).
		Str("platform", p.Resolver.Platform.String()).
		Bool("history", store != nil).
		Msg("starting server")

	if cfg.ServerTransport() == config.Stdio {
		return server.Run(ctx, &mcpsdk.StdioTransport{})
	}
	return serveHTTP(ctx, server, cfg, logger)
}

// openStore builds the run store: an LRU cache over SQLite when a database
// is configured, over JSON files in a temp directory otherwise.
func openStore(cfg *config.Config, logger zerolog.Logger) (report.Store, func(), error) {
	if cfg.History.Database != "" {
		db, err := report.OpenSQLiteStore(cfg.History.Database)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug().Str("database", cfg.History.Database).Msg("run history in sqlite")
		return report.NewLRUStore(cfg.HistorySize(), db), func() { _ = db.Close() }, nil
	}
	return report.NewLRUStore(cfg.HistorySize(), report.NewDiskStore("")), func() {}, nil
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, cfg *config.Config, logger zerolog.Logger) error {
	getServer := func(_ *http.Request) *mcpsdk.Server { return server }

	var handler http.Handler
	if cfg.ServerTransport() == config.SSE {
		handler = mcpsdk.NewSSEHandler(getServer, nil)
	} else {
		handler = mcpsdk.NewStreamableHTTPHandler(getServer, nil)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.HTTPPath(), handler)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info().Str("addr", cfg.Addr()).Str("path", cfg.HTTPPath()).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- stackwalk ---

func stackwalkMain(args []string) error {
	fs := flag.NewFlagSet("stackwalk", flag.ExitOnError)
	var c common
	c.register(fs)
	symbols := fs.String("symbols", "", "Breakpad symbol directory")
	format := fs.String("format", tools.FormatJSON, "minidump-stackwalk output: json or text")
	jsonFlag := fs.Bool("json", false, "print the result envelope as JSON")
	frames := fs.Int("frames", 10, "crashing-thread frames in the summary")
	timeout := fs.Duration("timeout", 0, fmt.Sprintf("override the stackwalk timeout (default %s)", tools.DefaultStackwalkTimeout))
	binDir := fs.String("bin-dir", "", "directory of bundled tool binaries")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: minidump-mcp stackwalk [flags] <minidump>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, logger, err := c.load(func(cfg *config.Config) {
		setString(&cfg.Tools.BinDir, *binDir)
	})
	if err != nil {
		return err
	}
	p, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	p.StackwalkTimeout = *timeout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res := p.Stackwalk(ctx, tools.StackwalkRequest{
		MinidumpPath: fs.Arg(0),
		SymbolsPath:  *symbols,
		Format:       *format,
	})

	switch {
	case *jsonFlag:
		if err := printJSON(res.Envelope()); err != nil {
			return err
		}
	case !res.OK():
		printFailure(res.Failure)
	case res.Format == tools.FormatJSON:
		run := &report.Run{Minidump: fs.Arg(0), Symbols: *symbols, Command: res.Command}
		fmt.Print(report.FormatSummary(run, report.Summarize(res.Data, *frames)))
	default:
		fmt.Print(res.Text)
	}

	if !res.OK() {
		os.Exit(1)
	}
	return nil
}

func printFailure(f *tools.Failure) {
	fmt.Fprintf(os.Stderr, "FAIL (%s)\n\n%s\n", f.Kind, f.Message)
	if f.Stderr != "" {
		fmt.Fprintf(os.Stderr, "\nstderr:\n%s\n", f.Stderr)
	}
}

// --- extract-symbols ---

func symbolsMain(args []string) error {
	fs := flag.NewFlagSet("extract-symbols", flag.ExitOnError)
	var c common
	c.register(fs)
	outputDir := fs.String("o", "", "output directory (default: symbols_dir from config, or ./symbols)")
	jsonFlag := fs.Bool("json", false, "print the result envelope as JSON")
	binDir := fs.String("bin-dir", "", "directory of bundled tool binaries")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: minidump-mcp extract-symbols [flags] <binary>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, logger, err := c.load(func(cfg *config.Config) {
		setString(&cfg.Tools.BinDir, *binDir)
	})
	if err != nil {
		return err
	}
	p, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res := p.ExtractSymbols(ctx, tools.SymbolsRequest{BinaryPath: fs.Arg(0), OutputDir: *outputDir})

	switch {
	case *jsonFlag:
		if err := printJSON(res.Envelope()); err != nil {
			return err
		}
	case !res.OK():
		printFailure(res.Failure)
	default:
		m := res.Module
		fmt.Printf("Wrote %s (%s)\n", res.SymbolFile, humanize.IBytes(uint64(res.Size)))
		fmt.Printf("Module: %s %s (%s, %s)\n", m.Name, m.ID, m.OS, m.Arch)
	}

	if !res.OK() {
		os.Exit(1)
	}
	return nil
}
