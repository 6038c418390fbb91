package report

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Select walks data along path. Segments are separated by "/" or "." and
// are object keys or array indexes, e.g. "threads/0/frames/1" or
// "crash_info.type". An empty path returns data itself.
func Select(data any, path string) (any, error) {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' })
	cur := data
	for i, seg := range segments {
		at := strings.Join(segments[:i], "/")
		if at == "" {
			at = "(root)"
		}
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("no key %q at %s (have: %s)", seg, at, strings.Join(keys(v), ", "))
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("%s is an array; %q is not an index", at, seg)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("index %d out of range at %s (length %d)", idx, at, len(v))
			}
			cur = v[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %s at %s", typeName(cur), at)
		}
	}
	return cur, nil
}

// FindModule returns the modules entry whose filename or debug file matches
// name. Matching ignores case and directory components.
func FindModule(data any, name string) (map[string]any, error) {
	root, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("run data is not an object")
	}
	mods, _ := root["modules"].([]any)
	want := strings.ToLower(baseName(name))
	for _, m := range mods {
		mod, ok := m.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"filename", "debug_file", "code_file"} {
			if s := str(mod, key); s != "" && strings.ToLower(baseName(s)) == want {
				return mod, nil
			}
		}
	}
	return nil, fmt.Errorf("no module named %q among %d modules", name, len(mods))
}

// Frame is one stack frame in a Summary.
type Frame struct {
	Index    int
	Module   string
	Function string
	Offset   string
	File     string
	Line     int
	Trust    string
}

// Summary is the crash overview extracted from minidump-stackwalk JSON.
type Summary struct {
	Status         string
	OS             string
	OSVersion      string
	CPU            string
	CrashType      string
	CrashAddress   string
	Assertion      string
	CrashingThread int // -1 when the dump records no crash
	Frames         []Frame
	TotalFrames    int
	ThreadCount    int
	ModuleCount    int
	MissingSymbols []string
}

// Summarize extracts the crash overview from data, keeping at most
// maxFrames frames of the crashing thread.
func Summarize(data any, maxFrames int) Summary {
	s := Summary{CrashingThread: -1}
	root, ok := data.(map[string]any)
	if !ok {
		return s
	}

	s.Status = str(root, "status")
	if sys, ok := root["system_info"].(map[string]any); ok {
		s.OS = str(sys, "os")
		s.OSVersion = str(sys, "os_ver")
		s.CPU = str(sys, "cpu_arch")
	}
	if ci, ok := root["crash_info"].(map[string]any); ok {
		s.CrashType = str(ci, "type")
		s.CrashAddress = str(ci, "address")
		s.Assertion = str(ci, "assertion")
		if n, ok := num(ci, "crashing_thread"); ok {
			s.CrashingThread = n
		}
	}

	threads, _ := root["threads"].([]any)
	s.ThreadCount = len(threads)

	var frames []any
	if ct, ok := root["crashing_thread"].(map[string]any); ok {
		frames, _ = ct["frames"].([]any)
	} else if s.CrashingThread >= 0 && s.CrashingThread < len(threads) {
		if th, ok := threads[s.CrashingThread].(map[string]any); ok {
			frames, _ = th["frames"].([]any)
		}
	}
	s.TotalFrames = len(frames)
	for i, f := range frames {
		if maxFrames > 0 && i >= maxFrames {
			break
		}
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		s.Frames = append(s.Frames, toFrame(i, fm))
	}

	mods, _ := root["modules"].([]any)
	s.ModuleCount = len(mods)
	for _, m := range mods {
		mod, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if missing, _ := mod["missing_symbols"].(bool); missing {
			s.MissingSymbols = append(s.MissingSymbols, str(mod, "filename"))
		}
	}
	return s
}

func toFrame(i int, fm map[string]any) Frame {
	fr := Frame{
		Index:    i,
		Module:   str(fm, "module"),
		Function: str(fm, "function"),
		File:     str(fm, "file"),
		Trust:    str(fm, "trust"),
	}
	if n, ok := num(fm, "frame"); ok {
		fr.Index = n
	}
	if n, ok := num(fm, "line"); ok {
		fr.Line = n
	}
	for _, key := range []string{"function_offset", "module_offset", "offset"} {
		if v := str(fm, key); v != "" {
			fr.Offset = v
			break
		}
	}
	return fr
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func num(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case float64:
		return int(v), true
	}
	return 0, false
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case json.Number, float64:
		return "a number"
	case bool:
		return "a boolean"
	}
	return fmt.Sprintf("%T", v)
}

// baseName handles both separators; Windows module paths show up in dumps
// analysed on any host.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
