package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/deixis/minidump-mcp/internal/client"
	"github.com/deixis/minidump-mcp/internal/config"
)

// clientCommands maps each client subcommand to whether it takes a name.
var clientCommands = map[string]bool{
	"list-tools":      false,
	"list-prompts":    false,
	"describe-tool":   true,
	"describe-prompt": true,
	"call-tool":       true,
	"call-prompt":     true,
	"interactive":     false,
}

func clientUsage() {
	fmt.Fprintln(os.Stderr, `Usage: minidump-mcp client <command> [name] [flags]

Commands:
  list-tools                List the server's tools (-detailed for parameters)
  list-prompts              List the server's prompts (-detailed for arguments)
  describe-tool <name>      Show one tool and its parameters
  describe-prompt <name>    Show one prompt and its arguments
  call-tool <name> -p k=v   Call a tool; values are JSON or plain strings
  call-prompt <name> -p k=v Render a prompt
  interactive               Menu-driven session

Example:
  minidump-mcp client call-tool stackwalk_minidump \
      -p minidump_path=/path/to/crash.dmp -p symbols_path=/path/to/symbols`)
}

// paramList collects repeated -p key=value flags.
type paramList []string

func (p *paramList) String() string { return strings.Join(*p, ",") }

func (p *paramList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func clientMain(args []string) error {
	if len(args) == 0 {
		clientUsage()
		os.Exit(2)
	}
	sub, args := args[0], args[1:]
	needsName, ok := clientCommands[sub]
	if !ok {
		if sub == "help" || sub == "-h" || sub == "--help" {
			clientUsage()
			return nil
		}
		fmt.Fprintf(os.Stderr, "%s: unknown client command %q\n", appName, sub)
		clientUsage()
		os.Exit(2)
	}

	// The name may come before the flags, as in the usage text.
	var name string
	if needsName && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("client "+sub, flag.ExitOnError)
	var c common
	c.register(fs)
	url := fs.String("url", "", "server URL (default "+config.DefaultClientURL+")")
	transport := fs.String("transport", "", "transport: streamable-http (default), sse, stdio")
	timeout := fs.String("timeout", "", fmt.Sprintf("request timeout in seconds or as a duration (default %s)", config.DefaultClientTimeout))
	detailed := fs.Bool("detailed", false, "show parameters and arguments")
	var params paramList
	fs.Var(&params, "p", "parameter as key=value (repeatable)")
	fs.Var(&params, "param", "same as -p")
	_ = fs.Parse(args)

	if needsName && name == "" {
		name = fs.Arg(0)
	}
	if needsName && name == "" {
		return fmt.Errorf("client %s: a name is required", sub)
	}

	var parsed map[string]any
	if sub == "call-tool" || sub == "call-prompt" {
		var err error
		if parsed, err = client.ParseParams(params); err != nil {
			return err
		}
	}

	cfg, logger, err := c.load(func(cfg *config.Config) {
		setString(&cfg.Client.URL, *url)
		setString(&cfg.Client.Transport, *transport)
		setString(&cfg.Client.RawTimeout, *timeout)
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cl, err := client.Dial(ctx, cfg, os.Stdout, logger)
	if err != nil {
		return err
	}
	defer cl.Close()

	switch sub {
	case "list-tools":
		return cl.ListTools(ctx, *detailed)
	case "list-prompts":
		return cl.ListPrompts(ctx, *detailed)
	case "describe-tool":
		return cl.DescribeTool(ctx, name)
	case "describe-prompt":
		return cl.DescribePrompt(ctx, name)
	case "call-tool":
		return cl.CallTool(ctx, name, parsed)
	case "call-prompt":
		promptArgs, err := client.PromptArgs(parsed)
		if err != nil {
			return err
		}
		return cl.CallPrompt(ctx, name, promptArgs)
	default:
		return cl.Interactive(ctx, os.Stdin)
	}
}
