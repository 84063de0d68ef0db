package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultScriptTimeout bounds one call of the style function.
const DefaultScriptTimeout = time.Second

// styleFunc is the global the style script must define.
const styleFunc = "style"

// StyleScript is a loaded Lua style hook.
//
// The script runs in a state with only the base, table, string and math
// libraries. It must define
//
//	function style(filename, language, default) ... end
//
// returning a style string, or nil to keep the default.
//
// gopher-lua states are not goroutine-safe; calls are serialized.
type StyleScript struct {
	path    string
	timeout time.Duration

	mu sync.Mutex
	L  *lua.LState
}

// LoadStyleScript loads and runs the script at path.
func LoadStyleScript(path string) (*StyleScript, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	s := &StyleScript{path: path, timeout: DefaultScriptTimeout, L: L}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := doWithRecovery(func() error { return L.DoFile(path) }); err != nil {
		L.Close()
		return nil, &ScriptError{Path: path, Err: err}
	}
	if fn := L.GetGlobal(styleFunc); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, &ScriptError{Path: path, Err: fmt.Errorf("%q is not a function (got %s)", styleFunc, fn.Type())}
	}
	return s, nil
}

// openSafeLibraries opens only the Lua libraries without host access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Path returns the script path.
func (s *StyleScript) Path() string {
	return s.path
}

// Style calls style(filename, language, def). A nil result returns def.
func (s *StyleScript) Style(filename, language, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.L == nil {
		return def, &ScriptError{Path: s.path, Err: fmt.Errorf("script closed")}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.L.SetContext(ctx)

	top := s.L.GetTop()
	err := doWithRecovery(func() error {
		return s.L.CallByParam(lua.P{
			Fn:      s.L.GetGlobal(styleFunc),
			NRet:    1,
			Protect: true,
		}, lua.LString(filename), lua.LString(language), lua.LString(def))
	})
	if err != nil {
		s.L.SetTop(top)
		return def, &ScriptError{Path: s.path, Err: err}
	}

	ret := s.L.Get(-1)
	s.L.SetTop(top)

	switch v := ret.(type) {
	case *lua.LNilType:
		return def, nil
	case lua.LString:
		return string(v), nil
	default:
		return def, &ScriptError{Path: s.path, Err: fmt.Errorf("style() returned %s, expected string or nil", ret.Type())}
	}
}

// Close releases the Lua state.
func (s *StyleScript) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}
