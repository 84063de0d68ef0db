package loader

import (
	"strings"
	"testing"
)

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"style": "file",
		"languages": map[string]any{
			"cpp": map[string]any{"enable": true, "style": "LLVM"},
		},
	}
	src := map[string]any{
		"style": "Google",
		"languages": map[string]any{
			"cpp":  map[string]any{"style": "Chromium"},
			"java": map[string]any{"enable": false},
		},
	}

	got := DeepMerge(dst, src)

	if got["style"] != "Google" {
		t.Errorf("style = %v, want 'Google'", got["style"])
	}
	if val, _ := getByPath(got, "languages.cpp.style"); val != "Chromium" {
		t.Errorf("languages.cpp.style = %v, want 'Chromium'", val)
	}
	if val, _ := getByPath(got, "languages.cpp.enable"); val != true {
		t.Errorf("languages.cpp.enable = %v, want true", val)
	}
	if val, _ := getByPath(got, "languages.java.enable"); val != false {
		t.Errorf("languages.java.enable = %v, want false", val)
	}
}

func TestDeepMerge_Nil(t *testing.T) {
	if got := DeepMerge(nil, map[string]any{"a": 1}); got["a"] != 1 {
		t.Errorf("expected src copied into new map, got %v", got)
	}
	dst := map[string]any{"a": 1}
	if got := DeepMerge(dst, nil); got["a"] != 1 {
		t.Errorf("expected dst unchanged, got %v", got)
	}
}

func TestLoadWithIncludes(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/proj/.clangfmt.toml", `
"@include" = ["base.yaml"]
style = "Google"
`)
	memfs.AddFile("/proj/base.yaml", `
style: LLVM
fallbackStyle: Mozilla
`)

	config, err := LoadWithIncludes(memfs, "/proj/.clangfmt.toml", 5)
	if err != nil {
		t.Fatalf("LoadWithIncludes failed: %v", err)
	}
	if config["style"] != "Google" {
		t.Errorf("style = %v, want 'Google' (should override included)", config["style"])
	}
	if config["fallbackStyle"] != "Mozilla" {
		t.Errorf("fallbackStyle = %v, want 'Mozilla' (from included file)", config["fallbackStyle"])
	}
	if _, ok := config[IncludeKey]; ok {
		t.Error("expected include directive to be removed")
	}
}

func TestLoadWithIncludes_DepthExceeded(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/a.toml", `"@include" = "b.toml"`)
	memfs.AddFile("/b.toml", `"@include" = ["c.toml"]`)
	memfs.AddFile("/c.toml", `"@include" = ["d.toml"]`)
	memfs.AddFile("/d.toml", `style = "WebKit"`)

	_, err := LoadWithIncludes(memfs, "/a.toml", 2)
	if err == nil || !strings.Contains(err.Error(), "depth exceeded") {
		t.Fatalf("expected 'depth exceeded' error, got: %v", err)
	}

	config, err := LoadWithIncludes(memfs, "/a.toml", 5)
	if err != nil {
		t.Fatalf("expected success with depth 5, got: %v", err)
	}
	if config["style"] != "WebKit" {
		t.Errorf("style = %v, want 'WebKit'", config["style"])
	}
}

func TestLoadWithIncludes_BadDirective(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/a.toml", `"@include" = 3`)

	if _, err := LoadWithIncludes(memfs, "/a.toml", 5); err == nil {
		t.Error("expected error for non-string include")
	}
}

func TestLoadWithIncludes_Cycle(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/a.toml", `"@include" = "b.yaml"`)
	memfs.AddFile("/b.yaml", `"@include": a.toml`)

	_, err := LoadWithIncludes(memfs, "/a.toml", 10)
	if err == nil || !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected include cycle error, got: %v", err)
	}
}

func TestLoadWithIncludes_MissingInclude(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/a.toml", "\"@include\" = \"gone.toml\"\nstyle = \"LLVM\"\n")

	config, err := LoadWithIncludes(memfs, "/a.toml", 5)
	if err != nil {
		t.Fatalf("missing include should be skipped, got %v", err)
	}
	if config["style"] != "LLVM" {
		t.Errorf("style = %v, want 'LLVM'", config["style"])
	}
}
