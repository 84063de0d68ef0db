package config

import (
	"os"
	"strings"
)

// Vars holds the values substituted for placeholders in settings.
type Vars struct {
	// WorkspaceRoot replaces ${workspaceRoot} and ${workspaceFolder}.
	WorkspaceRoot string

	// Cwd replaces ${cwd}.
	Cwd string

	// Getenv looks up ${env:NAME} and $NAME. Defaults to os.Getenv.
	Getenv func(string) string
}

// Expand substitutes placeholders in s. ${workspaceRoot},
// ${workspaceFolder}, ${cwd} and ${env:NAME} are replaced first, then
// remaining $NAME and ${NAME} references are expanded from the environment.
// Unknown variables expand to the empty string.
func (v Vars) Expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	getenv := v.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	return os.Expand(s, func(name string) string {
		switch {
		case name == "workspaceRoot" || name == "workspaceFolder":
			return v.WorkspaceRoot
		case name == "cwd":
			return v.Cwd
		case strings.HasPrefix(name, "env:"):
			return getenv(strings.TrimPrefix(name, "env:"))
		default:
			return getenv(name)
		}
	})
}

// ExpandAll applies Expand to each element of args.
func (v Vars) ExpandAll(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = v.Expand(a)
	}
	return out
}
