package loader

import (
	"fmt"
	"path/filepath"
	"slices"
)

// IncludeKey names the directive that layers other files beneath a file.
const IncludeKey = "@include"

// LoadWithIncludes loads path and resolves its @include directive. The
// directive holds one path or a list of paths relative to the including
// file; included settings lie beneath the including file's own. Nesting is
// limited to maxDepth levels and cycles are rejected.
func LoadWithIncludes(fsys FileSystem, path string, maxDepth int) (map[string]any, error) {
	return loadIncluding(fsys, path, maxDepth, nil)
}

func loadIncluding(fsys FileSystem, path string, depth int, chain []string) (map[string]any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("include depth exceeded for %s", path)
	}
	clean := filepath.Clean(path)
	if slices.Contains(chain, clean) {
		return nil, fmt.Errorf("include cycle: %s", clean)
	}
	chain = append(chain, clean)

	f, err := NewFile(fsys, path)
	if err != nil {
		return nil, err
	}
	config, err := f.Load()
	if err != nil || config == nil {
		return config, err
	}

	includes, err := includePaths(config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	delete(config, IncludeKey)

	base := make(map[string]any)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		m, err := loadIncluding(fsys, inc, depth-1, chain)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", inc, err)
		}
		base = DeepMerge(base, m)
	}
	return DeepMerge(base, config), nil
}

func includePaths(config map[string]any) ([]string, error) {
	switch v := config[IncludeKey].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", IncludeKey, item)
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("%s must be a string or a list of strings, got %T", IncludeKey, v)
	}
}

// DeepMerge merges src into dst and returns dst. Nested maps merge
// key by key; any other src value replaces the dst value.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
