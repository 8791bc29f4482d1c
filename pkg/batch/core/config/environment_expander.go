package config

import (
	"os"
	"strings"
)

// EnvironmentExpander replaces environment placeholders in raw configuration.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands ${VAR}, $VAR and ${VAR:-default} from the process environment.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander creates an expander reading os.LookupEnv.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

// Expand never fails; unset variables without a default expand to the empty string.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	out := os.Expand(string(input), func(name string) string {
		key, def, hasDefault := strings.Cut(name, ":-")
		if v, ok := e.lookup(key); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
	return []byte(out), nil
}
