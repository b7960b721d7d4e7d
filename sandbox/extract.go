package sandbox

import (
	lua "github.com/yuin/gopher-lua"
)

// ExtractVariables collects user-defined globals after a run. Names
// that existed before the user code ran are excluded; names listed in
// requested are force-included even when the baseline covers them.
// Extraction never fails: unconvertible values degrade to descriptive
// placeholders via luaToGo.
func ExtractVariables(env *Environment, requested []string) map[string]any {
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	vars := make(map[string]any)
	env.L.G.Global.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		s := string(name)
		if env.IsBaseline(s) && !want[s] {
			return
		}
		if _, isFn := v.(*lua.LFunction); isFn && !want[s] {
			// user-defined helper functions are noise unless asked for
			return
		}
		vars[s] = luaToGo(v)
	})

	// requested names that were never assigned come back as nil so the
	// caller can tell "absent" from "silently dropped"
	for name := range want {
		if _, ok := vars[name]; !ok {
			vars[name] = luaToGo(env.L.GetGlobal(name))
		}
	}
	return vars
}
