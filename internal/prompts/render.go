package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// maxFrameLimit caps stack_interpreter frames per thread.
const maxFrameLimit = 50

func renderCrashAnalyzer(tmpl string, args map[string]string) (string, error) {
	data, err := parseAnalysisData(args["analysis_data"])
	if err != nil {
		return "", err
	}
	b := task(tmpl)
	fmt.Fprintf(b, "**Analysis Data:**\n%s\n", jsonBlock(data))
	fmt.Fprintf(b, "**Analysis Depth:** %s\n", args["analysis_depth"])
	fmt.Fprintf(b, "**Focus Area:** %s\n\n", args["focus_area"])
	b.WriteString("Please analyze this crash dump data and provide your structured JSON response according to the format specified above.")
	return b.String(), nil
}

func renderStackInterpreter(tmpl string, args map[string]string) (string, error) {
	data, err := parseAnalysisData(args["analysis_data"])
	if err != nil {
		return "", err
	}
	limit, err := cast.ToIntE(args["frame_limit"])
	if err != nil || limit < 1 {
		return "", &ArgError{Arg: "frame_limit", Reason: fmt.Sprintf("%q is not a positive integer", args["frame_limit"])}
	}
	limit = min(limit, maxFrameLimit)

	b := task(tmpl)
	if args["focus_thread"] == "all" {
		threads, _ := data["threads"].([]any)
		var out []map[string]any
		for i, th := range threads {
			m, _ := th.(map[string]any)
			frames, _ := m["frames"].([]any)
			entry := map[string]any{"thread": i, "frames": firstN(frames, limit)}
			if name, ok := m["thread_name"].(string); ok && name != "" {
				entry["thread_name"] = name
			}
			out = append(out, entry)
		}
		fmt.Fprintf(b, "**Threads:**\n%s\n", jsonBlock(out))
	} else {
		ct, _ := data["crashing_thread"].(map[string]any)
		frames, _ := ct["frames"].([]any)
		fmt.Fprintf(b, "**Stack Frames:**\n%s\n", jsonBlock(firstN(frames, limit)))
	}
	fmt.Fprintf(b, "**Frame Limit:** %d\n", limit)
	fmt.Fprintf(b, "**Focus Thread:** %s\n\n", args["focus_thread"])
	b.WriteString("Please analyze these stack frames and provide your structured JSON response.")
	return b.String(), nil
}

func renderExceptionDecoder(tmpl string, args map[string]string) (string, error) {
	data, err := parseAnalysisData(args["analysis_data"])
	if err != nil {
		return "", err
	}
	crash, _ := data["crash_info"].(map[string]any)
	system, _ := data["system_info"].(map[string]any)
	if system == nil {
		system = map[string]any{}
	}

	b := task(tmpl)
	fmt.Fprintf(b, "**Exception Type:** %s\n", stringOr(crash["type"], "UNKNOWN"))
	fmt.Fprintf(b, "**Exception Address:** %s\n", stringOr(crash["address"], "0x00000000"))
	if a, ok := crash["assertion"].(string); ok && a != "" {
		fmt.Fprintf(b, "**Assertion:** %s\n", a)
	}
	fmt.Fprintf(b, "**System Context:**\n%s\n", jsonBlock(system))
	fmt.Fprintf(b, "**Focus Type:** %s\n\n", args["focus_type"])
	b.WriteString("Please analyze this exception information and provide your structured JSON response.")
	return b.String(), nil
}

func renderSymbolAdvisor(tmpl string, args map[string]string) (string, error) {
	data, err := parseAnalysisData(args["analysis_data"])
	if err != nil {
		return "", err
	}
	modules, _ := data["modules"].([]any)
	if modules == nil {
		modules = []any{}
	}

	b := task(tmpl)
	fmt.Fprintf(b, "**Modules Information:**\n%s\n", jsonBlock(modules))
	fmt.Fprintf(b, "**Focus Area:** %s\n\n", args["focus_area"])
	b.WriteString("Please analyze the symbol information and provide your structured JSON response.")
	return b.String(), nil
}

func renderEndToEnd(tmpl string, args map[string]string) (string, error) {
	sources, err := parseList("symbol_sources", args["symbol_sources"])
	if err != nil {
		return "", err
	}
	servers, err := parseList("symbol_server_urls", args["symbol_server_urls"])
	if err != nil {
		return "", err
	}
	var options map[string]any
	if raw := args["analysis_options"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &options); err != nil {
			return "", &ArgError{Arg: "analysis_options", Reason: fmt.Sprintf("must be a JSON object: %v", err)}
		}
	}

	b := task(tmpl)
	fmt.Fprintf(b, "**Dump File:** `%s`\n\n", args["dump_path"])
	if len(sources) > 0 {
		bullets(b, "Symbol Sources", sources, true)
	} else {
		b.WriteString("**Symbol Sources:** None provided (will attempt analysis without symbols)\n\n")
	}
	bullets(b, "Symbol Server URLs", servers, false)
	if exe := args["executable_path"]; exe != "" {
		fmt.Fprintf(b, "**Executable Path:** `%s`\n\n", exe)
	}
	if len(options) > 0 {
		fmt.Fprintf(b, "**Analysis Options:**\n%s\n", jsonBlock(options))
	}
	b.WriteString("Please provide a complete workflow guide for analyzing this crash dump, " +
		"including all necessary steps from symbol preparation through final recommendations, " +
		"formatted according to the JSON structure specified above.")
	return b.String(), nil
}

func renderPrepareSymbols(tmpl string, args map[string]string) (string, error) {
	lists := map[string][]string{}
	for _, name := range []string{"symbol_sources", "symbol_server_urls", "executable_paths", "target_modules"} {
		l, err := parseList(name, args[name])
		if err != nil {
			return "", err
		}
		lists[name] = l
	}
	if len(lists["symbol_sources"]) == 0 {
		return "", &ArgError{Arg: "symbol_sources", Reason: "must name at least one path"}
	}

	b := task(tmpl)
	bullets(b, "Symbol Sources", lists["symbol_sources"], false)
	bullets(b, "Symbol Server URLs", lists["symbol_server_urls"], false)
	bullets(b, "Executable Paths", lists["executable_paths"], false)
	bullets(b, "Target Modules", lists["target_modules"], false)
	b.WriteString("Please analyze these symbol sources and provide a comprehensive preparation guide " +
		"according to the JSON format specified above.")
	return b.String(), nil
}

func task(tmpl string) *strings.Builder {
	b := &strings.Builder{}
	b.WriteString(strings.TrimRight(tmpl, "\n"))
	b.WriteString("\n\n## Analysis Task\n\n")
	return b
}

func bullets(b *strings.Builder, title string, items []string, code bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n", title)
	for _, it := range items {
		if code {
			fmt.Fprintf(b, "- `%s`\n", it)
		} else {
			fmt.Fprintf(b, "- %s\n", it)
		}
	}
	b.WriteString("\n")
}

func jsonBlock(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		out = []byte(fmt.Sprintf("%q", fmt.Sprint(v)))
	}
	return "```json\n" + string(out) + "\n```\n"
}

// parseAnalysisData decodes the stackwalk_minidump result. Both the bare
// data object and the full tool envelope ({"success":true,"data":{...}})
// are accepted.
func parseAnalysisData(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, &ArgError{Arg: "analysis_data", Reason: fmt.Sprintf("must be the JSON object returned by stackwalk_minidump: %v", err)}
	}
	if inner, ok := data["data"].(map[string]any); ok {
		if _, isEnvelope := data["success"]; isEnvelope {
			return inner, nil
		}
	}
	return data, nil
}

// parseList accepts a JSON array of strings or a comma-separated string.
func parseList(name, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var items []any
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, &ArgError{Arg: name, Reason: fmt.Sprintf("invalid JSON array: %v", err)}
		}
		out, err := cast.ToStringSliceE(items)
		if err != nil {
			return nil, &ArgError{Arg: name, Reason: err.Error()}
		}
		return compact(out), nil
	}
	return compact(strings.Split(raw, ",")), nil
}

func compact(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func firstN(frames []any, n int) []any {
	if frames == nil {
		return []any{}
	}
	return frames[:min(len(frames), n)]
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
