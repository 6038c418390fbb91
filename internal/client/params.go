package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ParseParams parses key=value pairs. Values are decoded as JSON when
// possible and kept as plain strings otherwise, so n=5 is a number and
// path=/tmp/a.dmp a string.
func ParseParams(params []string) (map[string]any, error) {
	args := make(map[string]any, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter format: %s. Expected key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		args[key] = v
	}
	return args, nil
}

// PromptArgs converts parsed parameters to prompt arguments, which are
// strings on the wire. Arrays and objects are re-encoded as JSON.
func PromptArgs(args map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for k, v := range args {
		switch v.(type) {
		case []any, map[string]any:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding %s: %w", k, err)
			}
			out[k] = string(data)
		default:
			s, err := cast.ToStringE(v)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", k, err)
			}
			out[k] = s
		}
	}
	return out, nil
}

// Coerce converts typed input to the JSON schema type typ. On error the
// raw string is returned with the error so callers can fall back to it.
func Coerce(value, typ string) (any, error) {
	switch typ {
	case "object", "array":
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return value, fmt.Errorf("invalid JSON for %s: %w", typ, err)
		}
		return v, nil
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
		b, err := cast.ToBoolE(strings.TrimSpace(value))
		if err != nil {
			return value, err
		}
		return b, nil
	case "number":
		f, err := cast.ToFloat64E(strings.TrimSpace(value))
		if err != nil {
			return value, err
		}
		return f, nil
	case "integer":
		n, err := cast.ToIntE(strings.TrimSpace(value))
		if err != nil {
			return value, err
		}
		return n, nil
	}
	return value, nil
}
