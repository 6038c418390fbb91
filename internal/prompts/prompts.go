// Package prompts builds the crash analysis prompts offered to MCP clients.
// Each prompt is a markdown template followed by the caller's data.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"slices"
	"strings"
)

//go:embed templates/*.md
var templates embed.FS

// Arg describes one prompt argument. Prompt arguments always arrive as
// strings; Enum lists the accepted values when the argument is a choice.
type Arg struct {
	Name        string
	Description string
	Required    bool
	Default     string
	Enum        []string
}

// Prompt is a named prompt with its arguments and renderer.
type Prompt struct {
	Name        string
	Description string
	Args        []Arg

	template string
	render   func(tmpl string, args map[string]string) (string, error)
}

// ArgError reports a missing or invalid prompt argument.
type ArgError struct {
	Prompt string
	Arg    string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("prompt %s: argument %s: %s", e.Prompt, e.Arg, e.Reason)
}

// Render validates args, fills defaults and returns the prompt text.
// Unknown arguments are ignored.
func (p Prompt) Render(args map[string]string) (string, error) {
	resolved := make(map[string]string, len(p.Args))
	for _, a := range p.Args {
		v := strings.TrimSpace(args[a.Name])
		if v == "" {
			if a.Required {
				return "", &ArgError{Prompt: p.Name, Arg: a.Name, Reason: "is required"}
			}
			v = a.Default
		}
		if v != "" && len(a.Enum) > 0 && !slices.Contains(a.Enum, v) {
			return "", &ArgError{
				Prompt: p.Name,
				Arg:    a.Name,
				Reason: fmt.Sprintf("%q is not one of %s", v, strings.Join(a.Enum, ", ")),
			}
		}
		resolved[a.Name] = v
	}

	tmpl, err := templates.ReadFile("templates/" + p.template)
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", p.Name, err)
	}
	body, err := p.render(string(tmpl), resolved)
	if err != nil {
		var ae *ArgError
		if errors.As(err, &ae) && ae.Prompt == "" {
			ae.Prompt = p.Name
		}
		return "", err
	}
	return body, nil
}

// All returns every prompt in registration order.
func All() []Prompt {
	return []Prompt{
		crashAnalyzer,
		stackInterpreter,
		exceptionDecoder,
		symbolAdvisor,
		analyzeCrashEndToEnd,
		prepareSymbolsForAnalysis,
	}
}

// Lookup returns the prompt with the given name.
func Lookup(name string) (Prompt, bool) {
	for _, p := range All() {
		if p.Name == name {
			return p, true
		}
	}
	return Prompt{}, false
}

const analysisDataDesc = "Complete JSON output from the stackwalk_minidump tool"

var crashAnalyzer = Prompt{
	Name:        "crash_analyzer",
	Description: "Analyze crash dump data and explain the crash: exception, faulting code path and likely root cause.",
	Args: []Arg{
		{Name: "analysis_data", Description: analysisDataDesc, Required: true},
		{Name: "analysis_depth", Description: "Analysis depth level", Default: "detailed", Enum: []string{"basic", "detailed", "comprehensive"}},
		{Name: "focus_area", Description: "Specific focus area for analysis", Default: "all", Enum: []string{"memory", "threading", "logic", "all"}},
	},
	template: "crash_analyzer.md",
	render:   renderCrashAnalyzer,
}

var stackInterpreter = Prompt{
	Name:        "stack_interpreter",
	Description: "Interpret stack frames: call patterns, execution flow and where it failed.",
	Args: []Arg{
		{Name: "analysis_data", Description: analysisDataDesc, Required: true},
		{Name: "frame_limit", Description: fmt.Sprintf("Maximum number of frames to analyze (max: %d)", maxFrameLimit), Default: "20"},
		{Name: "focus_thread", Description: "Which thread to analyze", Default: "crashing", Enum: []string{"crashing", "all"}},
	},
	template: "stack_interpreter.md",
	render:   renderStackInterpreter,
}

var exceptionDecoder = Prompt{
	Name:        "exception_decoder",
	Description: "Decode the crash exception type and faulting address.",
	Args: []Arg{
		{Name: "analysis_data", Description: analysisDataDesc, Required: true},
		{Name: "focus_type", Description: "Focus on a specific exception aspect", Default: "all", Enum: []string{"address_pattern", "exception_type", "all"}},
	},
	template: "exception_decoder.md",
	render:   renderExceptionDecoder,
}

var symbolAdvisor = Prompt{
	Name:        "symbol_advisor",
	Description: "Evaluate symbol coverage and advise how to improve analysis accuracy.",
	Args: []Arg{
		{Name: "analysis_data", Description: analysisDataDesc, Required: true},
		{Name: "focus_area", Description: "Focus on a specific symbol aspect", Default: "all", Enum: []string{"application_modules", "system_modules", "all"}},
	},
	template: "symbol_advisor.md",
	render:   renderSymbolAdvisor,
}

var analyzeCrashEndToEnd = Prompt{
	Name:        "analyze_crash_end_to_end",
	Description: "Guide a complete crash analysis from raw dump through symbol preparation to recommendations.",
	Args: []Arg{
		{Name: "dump_path", Description: "Path to the minidump (.dmp) file", Required: true},
		{Name: "symbol_sources", Description: "Paths to PDB/DWARF files or directories, or Breakpad symbol directories (JSON array or comma-separated)"},
		{Name: "symbol_server_urls", Description: "URLs of symbol servers (JSON array or comma-separated)"},
		{Name: "executable_path", Description: "Path to the crashed executable for better unwind information"},
		{Name: "analysis_options", Description: "JSON object configuring analysis depth and focus areas"},
	},
	template: "analyze_crash_end_to_end.md",
	render:   renderEndToEnd,
}

var prepareSymbolsForAnalysis = Prompt{
	Name:        "prepare_symbols_for_analysis",
	Description: "Guide conversion of native debug symbols (PDB/DWARF/dSYM) to Breakpad format.",
	Args: []Arg{
		{Name: "symbol_sources", Description: "Symbol files or directories containing PDB/DWARF files (JSON array or comma-separated)", Required: true},
		{Name: "symbol_server_urls", Description: "Symbol server URLs to fetch symbols from (JSON array or comma-separated)"},
		{Name: "executable_paths", Description: "Executables for improved unwind quality (JSON array or comma-separated)"},
		{Name: "target_modules", Description: "Modules to prioritize (JSON array or comma-separated)"},
	},
	template: "prepare_symbols_for_analysis.md",
	render:   renderPrepareSymbols,
}
