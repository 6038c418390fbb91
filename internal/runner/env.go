package runner

import (
	"os"
	"strings"
)

// inheritedEnv lists the variables passed through to child processes when
// no explicit environment is configured.
var inheritedEnv = []string{
	"PATH",
	"HOME",
	"TMPDIR",
	"TMP",
	"TEMP",
	"LANG",
	"LC_ALL",
	"SYSTEMROOT",
	"USERPROFILE",
}

// MinimalEnv returns the subset of the current environment that external
// tools need to start. Names are matched case-insensitively so that
// Windows spellings such as "Path" and "SystemRoot" are kept.
func MinimalEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		for _, keep := range inheritedEnv {
			if strings.EqualFold(name, keep) {
				env = append(env, kv)
				break
			}
		}
	}
	return env
}
