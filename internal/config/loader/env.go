package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	lookup  func(string) (string, bool)
	mapping map[string]string // env var -> config path
}

// NewEnvLoader creates a loader for the default CLANGFMT_ variables.
func NewEnvLoader() *EnvLoader {
	return NewEnvLoaderWithMapping(DefaultEnvMapping())
}

// NewEnvLoaderWithMapping creates a loader with custom environment variable mappings.
func NewEnvLoaderWithMapping(mapping map[string]string) *EnvLoader {
	return &EnvLoader{
		lookup:  os.LookupEnv,
		mapping: mapping,
	}
}

// DefaultEnvMapping returns the default environment variable mappings.
func DefaultEnvMapping() map[string]string {
	return map[string]string{
		"CLANGFMT_EXECUTABLE":     "executable",
		"CLANGFMT_STYLE":          "style",
		"CLANGFMT_FALLBACK_STYLE": "fallbackStyle",
		"CLANGFMT_EXTRA_ARGS":     "extraArgs",
		"CLANGFMT_UNIT":           "unit",
		"CLANGFMT_LOG_LEVEL":      "logLevel",
		"CLANGFMT_MAX_PROCESSES":  "maxProcesses",
		"CLANGFMT_STYLE_SCRIPT":   "styleScript",
	}
}

// WithLookup replaces the environment lookup, mainly for tests.
func (l *EnvLoader) WithLookup(fn func(string) (string, bool)) *EnvLoader {
	l.lookup = fn
	return l
}

// Load reads the mapped environment variables into a configuration map.
// Empty values are treated as set. Returns nil when no variable is set.
func (l *EnvLoader) Load() (map[string]any, error) {
	var config map[string]any
	for env, path := range l.mapping {
		val, ok := l.lookup(env)
		if !ok {
			continue
		}
		if config == nil {
			config = make(map[string]any)
		}
		setByPath(config, path, parseValue(val))
	}
	return config, nil
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// parseValue attempts to parse the string value into an appropriate type.
// Styles are free-form strings, so only unambiguous forms are converted.
func parseValue(s string) any {
	if s == "" {
		return s
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	// JSON arrays, for argument lists.
	if strings.HasPrefix(s, "[") {
		var v []any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}

	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[part] = next
			current = next
		}
	}

	current[parts[len(parts)-1]] = value
}
