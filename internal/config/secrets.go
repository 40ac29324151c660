package config

import (
	"maps"
	"net/url"
	"os"
	"strings"
)

// MaskSecret returns a masked version of a secret for display.
// Shows the first 3 and last 4 characters of long values.
func MaskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 12 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-4:]
}

// RedactEndpoint masks the password in a URL-style endpoint such as a
// database DSN. Values that do not parse as URLs are returned unchanged.
func RedactEndpoint(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.User == nil {
		return endpoint
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Redacted returns AllSettings with endpoint credentials masked.
func (c *Config) Redacted() map[string]any {
	settings := c.AllSettings()
	if h, ok := settings["health"].(map[string]any); ok {
		h = maps.Clone(h)
		for _, k := range []string{"api", "web", "database"} {
			if s, ok := h[k].(string); ok {
				h[k] = RedactEndpoint(os.ExpandEnv(s))
			}
		}
		settings["health"] = h
	}
	return settings
}

// ValueSource represents where an effective value came from.
type ValueSource string

const (
	SourceEnv     ValueSource = "environment"
	SourceFile    ValueSource = "config_file"
	SourceDefault ValueSource = "default"
	SourceNone    ValueSource = "none"
)

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Source returns where the effective value of key was sourced from.
func (c *Config) Source(key string) ValueSource {
	if _, ok := os.LookupEnv(EnvKey(key)); ok {
		return SourceEnv
	}
	if c.v == nil {
		return SourceNone
	}
	if c.v.InConfig(key) {
		return SourceFile
	}
	if c.v.IsSet(key) {
		return SourceDefault
	}
	return SourceNone
}
