package sandbox

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/BaSui01/sandflow/types"
)

// DefaultMaxOutputBytes caps captured script output per execution.
const DefaultMaxOutputBytes = 64 * 1024

// strippedBuiltins are removed from the base library after it loads.
// Everything here either loads code, reaches the garbage collector,
// or bypasses metatable protection on the degraded proxies.
var strippedBuiltins = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"collectgarbage", "rawset", "rawget", "rawequal", "rawlen",
	"getfenv", "setfenv", "getmetatable", "setmetatable", "newproxy",
}

// EnvConfig describes one environment build.
type EnvConfig struct {
	Identity       string
	Registry       *Registry
	CaptureOutput  bool
	MaxOutputBytes int
	// Data is an optional prefetched row set bound as the `data` global.
	Data []map[string]any
	// Bindings are extra globals (store and tools facades) built into
	// the state after the module set.
	Bindings map[string]ModuleBuilder
}

// Environment owns one interpreter state prepared for a single
// execution. It is never shared and never reused; Close discards it.
type Environment struct {
	L        *lua.LState
	avail    *Availability
	baseline map[string]bool
	capture  bool
	maxOut   int

	out       strings.Builder
	truncated bool
}

// NewEnvironment builds a fresh capability environment: a bare state
// with only the safe base libraries, the module set, the configured
// bindings, and a recorded baseline of global names for the
// extractor.
func NewEnvironment(cfg EnvConfig) (*Environment, error) {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	env := &Environment{
		L:       L,
		avail:   snapshotAvailability(cfg.Registry),
		capture: cfg.CaptureOutput,
		maxOut:  cfg.MaxOutputBytes,
	}

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		if err := L.PCall(1, 0, nil); err != nil {
			L.Close()
			return nil, types.NewErrorf(types.ErrInternalError, "opening %s library", lib.name).WithCause(err)
		}
	}

	for _, name := range strippedBuiltins {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(env.luaPrint))

	for name, build := range builtinModules {
		L.SetGlobal(name, build(L))
	}
	for _, name := range optionalModules {
		if build, ok := cfg.Registry.builder(name); ok {
			L.SetGlobal(name, build(L))
		} else {
			L.SetGlobal(name, degradedProxy(L, name, env.avail))
		}
	}

	for name, build := range cfg.Bindings {
		L.SetGlobal(name, build(L))
	}

	L.SetGlobal("current_user", lua.LString(cfg.Identity))
	L.SetGlobal("capabilities", L.NewFunction(env.luaCapabilities))

	if cfg.Data != nil {
		L.SetGlobal("data", goToLua(L, cfg.Data))
	}

	env.baseline = snapshotGlobals(L)
	return env, nil
}

// luaPrint is the per-state replacement for print. Output accumulates
// into the environment's own buffer, so concurrent executions never
// share a stream.
func (e *Environment) luaPrint(L *lua.LState) int {
	if !e.capture {
		return 0
	}
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	e.write(strings.Join(parts, "\t") + "\n")
	return 0
}

func (e *Environment) luaCapabilities(L *lua.LState) int {
	t := L.NewTable()
	for _, name := range e.avail.Available() {
		t.RawSetString(name, lua.LTrue)
	}
	for _, name := range e.avail.Missing() {
		t.RawSetString(name, lua.LFalse)
	}
	L.Push(t)
	return 1
}

func (e *Environment) write(s string) {
	remaining := e.maxOut - e.out.Len()
	if remaining <= 0 {
		e.truncated = true
		return
	}
	if len(s) > remaining {
		s = s[:remaining]
		e.truncated = true
	}
	e.out.WriteString(s)
}

// Output returns everything the script printed so far.
func (e *Environment) Output() string {
	return e.out.String()
}

// Truncated reports whether the output cap was hit.
func (e *Environment) Truncated() bool {
	return e.truncated
}

// Availability returns the module availability snapshot.
func (e *Environment) Availability() *Availability {
	return e.avail
}

// IsBaseline reports whether a global name existed before user code ran.
func (e *Environment) IsBaseline(name string) bool {
	return e.baseline[name]
}

// Close discards the interpreter state. The environment must not be
// used afterwards.
func (e *Environment) Close() {
	e.L.Close()
}

// snapshotGlobals records the current global names of a state.
func snapshotGlobals(L *lua.LState) map[string]bool {
	names := make(map[string]bool)
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			names[string(s)] = true
		}
	})
	return names
}
