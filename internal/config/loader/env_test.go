package loader

import (
	"reflect"
	"strings"
	"testing"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestEnvLoader_Load(t *testing.T) {
	loader := NewEnvLoader().WithLookup(fakeEnv(map[string]string{
		"CLANGFMT_STYLE":         "{BasedOnStyle: LLVM}",
		"CLANGFMT_LOG_LEVEL":     "debug",
		"CLANGFMT_MAX_PROCESSES": "4",
		"CLANGFMT_EXTRA_ARGS":    `["--sort-includes", "-Werror"]`,
		"CLANGFMT_UNRELATED":     "x",
	}))

	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if val, ok := getByPath(config, "style"); !ok || val != "{BasedOnStyle: LLVM}" {
		t.Errorf("style = %v, want '{BasedOnStyle: LLVM}'", val)
	}
	if val, ok := getByPath(config, "logLevel"); !ok || val != "debug" {
		t.Errorf("logLevel = %v, want 'debug'", val)
	}
	if val, ok := getByPath(config, "maxProcesses"); !ok || val != int64(4) {
		t.Errorf("maxProcesses = %v (%T), want 4", val, val)
	}
	if val, ok := getByPath(config, "extraArgs"); !ok || !reflect.DeepEqual(val, []any{"--sort-includes", "-Werror"}) {
		t.Errorf("extraArgs = %v, want [--sort-includes -Werror]", val)
	}
	if len(config) != 4 {
		t.Errorf("expected only mapped variables, got %v", config)
	}
}

func TestEnvLoader_LoadNothingSet(t *testing.T) {
	config, err := NewEnvLoader().WithLookup(fakeEnv(nil)).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config != nil {
		t.Errorf("expected nil config, got %v", config)
	}
}

func TestEnvLoader_EmptyValueIsSet(t *testing.T) {
	config, _ := NewEnvLoader().WithLookup(fakeEnv(map[string]string{"CLANGFMT_FALLBACK_STYLE": ""})).Load()
	if val, ok := getByPath(config, "fallbackStyle"); !ok || val != "" {
		t.Errorf("fallbackStyle = %v (set %v), want empty string", val, ok)
	}
}

func TestEnvLoader_AddMapping(t *testing.T) {
	loader := NewEnvLoaderWithMapping(nil).WithLookup(fakeEnv(map[string]string{"CPP_STYLE": "Google"}))
	loader.AddMapping("CPP_STYLE", "languages.cpp.style")

	config, _ := loader.Load()
	if val, ok := getByPath(config, "languages.cpp.style"); !ok || val != "Google" {
		t.Errorf("languages.cpp.style = %v, want 'Google'", val)
	}
}

func TestEnvLoader_parseValue(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"", ""},
		{"true", true},
		{"FALSE", false},
		{"1", int64(1)},
		{"-3", int64(-3)},
		{"file", "file"},
		{"on", "on"},
		{"none", "none"},
		{"1.5", "1.5"},
		{"[1, 2]", []any{float64(1), float64(2)}},
		{"[not json", "[not json"},
		{"{BasedOnStyle: Google}", "{BasedOnStyle: Google}"},
	}

	for _, tt := range tests {
		got := parseValue(tt.input)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tt.input, got, got, tt.expected, tt.expected)
		}
	}
}

func TestSetByPath(t *testing.T) {
	data := map[string]any{"languages": "scalar"}
	setByPath(data, "languages.c.enable", false)
	setByPath(data, "languages.c.style", "LLVM")

	if val, ok := getByPath(data, "languages.c.enable"); !ok || val != false {
		t.Errorf("languages.c.enable = %v, want false", val)
	}
	if val, ok := getByPath(data, "languages.c.style"); !ok || val != "LLVM" {
		t.Errorf("languages.c.style = %v, want 'LLVM'", val)
	}
}

// Helper to get value by path
func getByPath(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[part]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}
