package config

import (
	"path/filepath"
	"strings"
)

// languageAliases maps alternative language IDs to the configured ID.
var languageAliases = map[string]string{
	"proto3":   "proto",
	"cuda-cpp": "cuda",
	"objc":     "objective-c",
	"objcpp":   "objective-cpp",
	"c++":      "cpp",
	"js":       "javascript",
	"ts":       "typescript",
	"cs":       "csharp",
}

// extensions maps lowercase file extensions to language IDs.
var extensions = map[string]string{
	".c":         "c",
	".cc":        "cpp",
	".cpp":       "cpp",
	".cxx":       "cpp",
	".c++":       "cpp",
	".cp":        "cpp",
	".h":         "cpp",
	".hh":        "cpp",
	".hpp":       "cpp",
	".hxx":       "cpp",
	".h++":       "cpp",
	".inc":       "cpp",
	".inl":       "cpp",
	".ipp":       "cpp",
	".ixx":       "cpp",
	".cppm":      "cpp",
	".tpp":       "cpp",
	".cs":        "csharp",
	".m":         "objective-c",
	".mm":        "objective-cpp",
	".java":      "java",
	".js":        "javascript",
	".mjs":       "javascript",
	".cjs":       "javascript",
	".jsx":       "javascript",
	".ts":        "typescript",
	".mts":       "typescript",
	".cts":       "typescript",
	".tsx":       "typescript",
	".json":      "json",
	".proto":     "proto",
	".textproto": "textproto",
	".textpb":    "textproto",
	".txtpb":     "textproto",
	".pbtxt":     "textproto",
	".cu":        "cuda",
	".cuh":       "cuda",
	".glsl":      "glsl",
	".vert":      "glsl",
	".frag":      "glsl",
	".geom":      "glsl",
	".comp":      "glsl",
	".tesc":      "glsl",
	".tese":      "glsl",
	".hlsl":      "hlsl",
	".metal":     "metal",
	".cls":       "apex",
	".trigger":   "apex",
}

// CanonicalLanguage resolves a language alias.
func CanonicalLanguage(id string) string {
	id = strings.ToLower(id)
	if canon, ok := languageAliases[id]; ok {
		return canon
	}
	return id
}

// LanguageForFile infers the language ID from a file name.
// It returns "" when the extension is not recognised.
func LanguageForFile(filename string) string {
	return extensions[strings.ToLower(filepath.Ext(filename))]
}
