package config

import (
	"strconv"
	"strings"
)

// Environment variable names. Server settings use EnvPrefix, client
// settings use ClientEnvPrefix.
const (
	EnvPrefix       = "MINIDUMP_MCP_"
	ClientEnvPrefix = "MINIDUMP_MCP_CLIENT_"
)

// ApplyEnv overlays environment variables onto c. getenv is usually
// os.Getenv; tests pass a map lookup. Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	num := func(name, field string, dst *int) error {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: field, Value: v, Reason: "not an integer", Suggestion: "unset " + name + " or give a number"}
		}
		*dst = n
		return nil
	}

	str(EnvPrefix+"TRANSPORT", &c.Server.Transport)
	str(EnvPrefix+"HOST", &c.Server.Host)
	str(EnvPrefix+"PATH", &c.Server.Path)
	str(EnvPrefix+"BIN_DIR", &c.Tools.BinDir)
	str(EnvPrefix+"SYMBOLS_DIR", &c.Tools.SymbolsDir)
	str(EnvPrefix+"HISTORY_DB", &c.History.Database)
	str(EnvPrefix+"LOG_LEVEL", &c.Log.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Log.Format)
	if err := num(EnvPrefix+"PORT", "server.port", &c.Server.Port); err != nil {
		return err
	}
	if err := num(EnvPrefix+"MAX_OUTPUT", "server.max_output", &c.Server.RawMaxOutput); err != nil {
		return err
	}
	if err := num(EnvPrefix+"HISTORY_SIZE", "history.size", &c.History.Size); err != nil {
		return err
	}

	str(ClientEnvPrefix+"URL", &c.Client.URL)
	str(ClientEnvPrefix+"TRANSPORT", &c.Client.Transport)
	str(ClientEnvPrefix+"TIMEOUT", &c.Client.RawTimeout)
	if v := strings.TrimSpace(getenv(ClientEnvPrefix + "COMMAND")); v != "" {
		c.Client.Command = strings.Fields(v)
	}
	return nil
}
