package sandbox

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// maxConvertDepth bounds table recursion during conversion so cyclic
// or adversarially deep structures cannot exhaust the stack.
const maxConvertDepth = 32

// goToLua converts a Go value into its Lua representation. Unsupported
// kinds become their string form rather than failing.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(goToLua(L, item))
		}
		return t
	case []map[string]any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(goToLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, goToLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value into plain Go data suitable for JSON
// serialization. Conversion never fails: values that cannot be
// represented become a descriptive placeholder string.
func luaToGo(v lua.LValue) any {
	return luaToGoDepth(v, 0, map[*lua.LTable]bool{})
}

func luaToGoDepth(v lua.LValue, depth int, seen map[*lua.LTable]bool) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if depth >= maxConvertDepth {
			return "<table: max depth exceeded>"
		}
		if seen[val] {
			return "<table: cycle>"
		}
		seen[val] = true
		defer delete(seen, val)
		return tableToGo(val, depth, seen)
	case *lua.LFunction:
		return "<function>"
	case *lua.LUserData:
		return fmt.Sprintf("<%T object>", val.Value)
	default:
		return fmt.Sprintf("<%s>", val.Type().String())
	}
}

// tableToGo renders a pure 1..n array part as a slice and everything
// else as a string-keyed map.
func tableToGo(t *lua.LTable, depth int, seen map[*lua.LTable]bool) any {
	n := t.Len()
	entries := 0
	arrayOnly := true
	t.ForEach(func(k, _ lua.LValue) {
		entries++
		if num, ok := k.(lua.LNumber); ok {
			f := float64(num)
			if f != math.Trunc(f) || f < 1 || int(f) > n {
				arrayOnly = false
			}
			return
		}
		arrayOnly = false
	})

	if arrayOnly && entries == n {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			arr = append(arr, luaToGoDepth(t.RawGetInt(i), depth+1, seen))
		}
		return arr
	}

	m := make(map[string]any, entries)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			key = fmt.Sprintf("<%s>", kv.Type().String())
		}
		m[key] = luaToGoDepth(v, depth+1, seen)
	})
	return m
}
