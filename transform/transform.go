// Package transform implements the sandboxed transformer collaborator: an
// opaque, CPU-only function f(state, data) -> (state', data') compiled
// from a Lua script supplied at operator construction time and run inside
// a restricted global environment.
package transform

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Transformer wraps a compiled Lua chunk run inside a restricted
// environment (no io, os, package, debug, or load globals). A single
// *lua.LState is not safe for concurrent calls, so Transform serializes
// invocations per instance — consistent with the collaborator's
// "CPU-only, no I/O, no retained references" contract, which gives no
// reason to run multiple scripts against one state concurrently.
type Transformer struct {
	mu sync.Mutex
	ls *lua.LState
	fn *lua.LFunction
}

// Compile loads script as a Lua chunk evaluated inside a sandboxed global
// table, and extracts the top-level function it must return.
func Compile(script string) (*Transformer, error) {
	ls := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := ls.CallByParam(lua.P{Fn: ls.NewFunction(pair.fn), NRet: 0, Protect: true}, lua.LString(pair.name)); err != nil {
			ls.Close()
			return nil, fmt.Errorf("transform: open lib %s: %w", pair.name, err)
		}
	}

	// Remove dangerous globals that OpenBase exposes (dofile, loadfile,
	// load) even without the io/os/package libraries installed.
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage"} {
		ls.SetGlobal(name, lua.LNil)
	}

	if err := ls.DoString(script); err != nil {
		ls.Close()
		return nil, fmt.Errorf("transform: compile script: %w", err)
	}

	ret := ls.Get(-1)
	fn, ok := ret.(*lua.LFunction)
	if !ok {
		ls.Close()
		return nil, fmt.Errorf("transform: script must leave a function on the stack, got %T", ret)
	}
	ls.Pop(1)

	return &Transformer{ls: ls, fn: fn}, nil
}

// Transform invokes the compiled function with (state, data) converted to
// Lua values and returns the converted-back (state', data').
func (t *Transformer) Transform(state, data any) (newState, newData any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	luaState := goToLua(t.ls, state)
	luaData := goToLua(t.ls, data)

	if err := t.ls.CallByParam(lua.P{Fn: t.fn, NRet: 2, Protect: true}, luaState, luaData); err != nil {
		return nil, nil, fmt.Errorf("transform: script error: %w", err)
	}

	retData := t.ls.Get(-1)
	retState := t.ls.Get(-2)
	t.ls.Pop(2)

	return luaToGo(retState), luaToGo(retData), nil
}

// Close releases the underlying Lua state.
func (t *Transformer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ls.Close()
}

// goToLua converts Go values (map[string]any, []any, scalars, nil) into
// Lua values. Maps with all-integer sequential keys are left as LTable
// maps too — array-vs-map distinction for the reverse direction is
// decided structurally in luaToGo.
func goToLua(ls *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case map[string]any:
		tbl := ls.NewTable()
		for k, val := range t {
			tbl.RawSetString(k, goToLua(ls, val))
		}
		return tbl
	case []any:
		tbl := ls.NewTable()
		for i, val := range t {
			tbl.RawSetInt(i+1, goToLua(ls, val))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(t))
	}
}

// luaToGo converts a Lua value back into Go's map[string]any/[]any/scalar
// representation. A table with contiguous integer keys 1..N and no
// string keys converts to []any; otherwise to map[string]any.
func luaToGo(v lua.LValue) any {
	switch t := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(t)
	case lua.LString:
		return string(t)
	case lua.LNumber:
		return float64(t)
	case *lua.LTable:
		if isArray(t) {
			out := make([]any, 0, t.Len())
			t.ForEach(func(_, val lua.LValue) {
				out = append(out, luaToGo(val))
			})
			return out
		}
		out := make(map[string]any)
		t.ForEach(func(key, val lua.LValue) {
			out[key.String()] = luaToGo(val)
		})
		return out
	default:
		return nil
	}
}

func isArray(t *lua.LTable) bool {
	n := t.Len()
	if n == 0 {
		return t.Len() == 0 && isEmptyTable(t)
	}
	count := 0
	arrayOK := true
	t.ForEach(func(key, _ lua.LValue) {
		count++
		if _, ok := key.(lua.LNumber); !ok {
			arrayOK = false
		}
	})
	return arrayOK && count == n
}

func isEmptyTable(t *lua.LTable) bool {
	empty := true
	t.ForEach(func(_, _ lua.LValue) { empty = false })
	return empty
}
