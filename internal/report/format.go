package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatSummary renders a crash summary for people. The run header is
// omitted for runs that were never stored.
func FormatSummary(run *Run, s Summary) string {
	var b strings.Builder

	if run.ID != "" {
		fmt.Fprintf(&b, "Run: %s (%s, %s)\n", run.ID, run.Kind, humanize.Time(run.CreatedAt))
	}
	fmt.Fprintf(&b, "Minidump: %s\n", run.Minidump)
	if run.Symbols != "" {
		fmt.Fprintf(&b, "Symbols: %s\n", run.Symbols)
	}
	if s.OS != "" {
		sys := s.OS
		if s.OSVersion != "" {
			sys += " " + s.OSVersion
		}
		if s.CPU != "" {
			sys += " (" + s.CPU + ")"
		}
		fmt.Fprintf(&b, "System: %s\n", sys)
	}
	fmt.Fprintln(&b)

	if s.CrashType == "" {
		fmt.Fprintln(&b, "No crash recorded (the dump may have been written on request).")
	} else {
		fmt.Fprintf(&b, "Crash: %s", s.CrashType)
		if s.CrashAddress != "" {
			fmt.Fprintf(&b, " at %s", s.CrashAddress)
		}
		fmt.Fprintln(&b)
		if s.Assertion != "" {
			fmt.Fprintf(&b, "Assertion: %s\n", s.Assertion)
		}
	}

	if len(s.Frames) > 0 {
		fmt.Fprintln(&b)
		if s.CrashingThread >= 0 {
			fmt.Fprintf(&b, "Crashing thread %d (%d of %d frames):\n", s.CrashingThread, len(s.Frames), s.TotalFrames)
		} else {
			fmt.Fprintf(&b, "Frames (%d of %d):\n", len(s.Frames), s.TotalFrames)
		}
		for _, f := range s.Frames {
			fmt.Fprintf(&b, "  #%-2d %s\n", f.Index, f)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Threads: %d, modules: %d\n", s.ThreadCount, s.ModuleCount)
	if len(s.MissingSymbols) > 0 {
		fmt.Fprintf(&b, "Missing symbols (%d): %s\n", len(s.MissingSymbols), strings.Join(s.MissingSymbols, ", "))
	}
	return b.String()
}

// String formats a frame as module!function + offset [file:line] (trust).
func (f Frame) String() string {
	var b strings.Builder
	module := f.Module
	if module == "" {
		module = "???"
	}
	b.WriteString(module)
	if f.Function != "" {
		b.WriteString("!" + f.Function)
	}
	if f.Offset != "" {
		b.WriteString(" + " + f.Offset)
	}
	if f.File != "" {
		fmt.Fprintf(&b, " [%s", f.File)
		if f.Line > 0 {
			fmt.Fprintf(&b, ":%d", f.Line)
		}
		b.WriteString("]")
	}
	if f.Trust != "" {
		fmt.Fprintf(&b, " (%s)", f.Trust)
	}
	return b.String()
}
