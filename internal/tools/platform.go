package tools

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Platform is a host operating system with a known set of bundled binaries.
type Platform int

const (
	Linux Platform = iota + 1
	MacOS
	Windows
)

var platformNames = map[Platform]string{
	Linux:   "linux",
	MacOS:   "macos",
	Windows: "windows",
}

// binarySuffix is appended to a tool's bundled name for each platform.
var binarySuffix = map[Platform]string{
	Linux:   "-linux",
	MacOS:   "-macos",
	Windows: "-windows.exe",
}

var goosPlatforms = map[string]Platform{
	"linux":   Linux,
	"darwin":  MacOS,
	"windows": Windows,
}

// DetectPlatform maps a GOOS value to a Platform. It is called once at
// startup; an unknown OS is a configuration error, not something to
// discover on the first tool call.
func DetectPlatform(goos string) (Platform, error) {
	if p, ok := goosPlatforms[goos]; ok {
		return p, nil
	}
	return 0, failf(UnsupportedPlatform, "Unsupported platform: %s (supported: linux, darwin, windows)", goos)
}

func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Platform(%d)", int(p))
}

// BinaryName returns the bundled file name for a tool prefix on p,
// e.g. "dump-syms" on Windows is "dump-syms-windows.exe".
func (p Platform) BinaryName(prefix string) string {
	return prefix + binarySuffix[p]
}

// Tool describes an external executable and how to install it.
type Tool struct {
	Name      string   // display name
	Bundled   string   // bundled file prefix, completed by Platform.BinaryName
	PathNames []string // names tried on PATH, in order
	Install   string   // install command shown when the tool is missing
}

// The external tools the providers shell out to.
var (
	Stackwalk = Tool{
		Name:      "minidump-stackwalk",
		Bundled:   "minidump-stackwalk",
		PathNames: []string{"minidump-stackwalk"},
		Install:   "cargo install minidump-stackwalk",
	}
	DumpSyms = Tool{
		Name:      "dump_syms",
		Bundled:   "dump-syms",
		PathNames: []string{"dump_syms", "dump-syms"},
		Install:   "cargo install dump_syms",
	}
)

// Resolver locates tool binaries: the bundled directory first, then PATH.
type Resolver struct {
	Platform Platform
	BinDir   string
	LookPath func(string) (string, error) // nil means exec.LookPath
}

// BundledPath returns where the bundled binary for t is expected.
func (r *Resolver) BundledPath(t Tool) string {
	return filepath.Join(r.BinDir, r.Platform.BinaryName(t.Bundled))
}

// Resolve returns the executable path for t. When neither location has it,
// the error is a NotFound *Failure wrapping ErrToolUnavailable.
func (r *Resolver) Resolve(t Tool) (string, error) {
	bundled := r.BundledPath(t)
	if info, err := os.Stat(bundled); err == nil && info.Mode().IsRegular() {
		return bundled, nil
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, name := range t.PathNames {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}

	unavail := ErrToolUnavailable{Tool: t, Bundled: bundled}
	return "", &Failure{Kind: NotFound, Message: unavail.Error(), Err: unavail}
}

// ErrToolUnavailable is returned when a tool is neither bundled nor on PATH.
// It includes actionable install instructions.
type ErrToolUnavailable struct {
	Tool    Tool
	Bundled string
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s binary not found at: %s, and no %s on PATH.", e.Tool.Name, e.Bundled, strings.Join(e.Tool.PathNames, " or "))
	fmt.Fprintf(&b, "\nInstall:")
	fmt.Fprintf(&b, "\n  %s   # installs onto PATH", e.Tool.Install)
	fmt.Fprintf(&b, "\n  or copy the binary to %s", e.Bundled)
	return b.String()
}
