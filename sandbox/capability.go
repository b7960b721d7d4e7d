package sandbox

import (
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ModuleBuilder constructs a capability module table inside a state.
type ModuleBuilder func(L *lua.LState) *lua.LTable

// unavailableMarker prefixes errors raised by degraded proxies so the
// executor can classify them without parsing tracebacks.
const unavailableMarker = "capability unavailable:"

// optionalModules are capability names every environment exposes.
// Names without a registered provider are bound as degraded proxies
// that fail with a structured error on first use instead of an
// undefined-variable fault.
var optionalModules = []string{"dataframe", "plot", "charts", "hypothesis"}

// Registry holds providers for optional capability modules. Builders
// registered here replace the degraded proxy for their name.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ModuleBuilder
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]ModuleBuilder)}
}

// Register installs a provider for an optional capability module.
func (r *Registry) Register(name string, builder ModuleBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// builder returns the provider for name, if any.
func (r *Registry) builder(name string) (ModuleBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	return b, ok
}

// Availability is the per-environment snapshot of which capability
// modules are real and which are degraded. It is computed once at
// environment build time and drives remediation text.
type Availability struct {
	modules map[string]bool
}

// snapshotAvailability captures module availability for one build.
func snapshotAvailability(registry *Registry) *Availability {
	a := &Availability{modules: make(map[string]bool)}
	for name := range builtinModules {
		a.modules[name] = true
	}
	for _, name := range []string{"math", "string", "table"} {
		a.modules[name] = true
	}
	for _, name := range optionalModules {
		_, ok := registry.builder(name)
		a.modules[name] = ok
	}
	return a
}

// Has reports whether a module is actually available.
func (a *Availability) Has(name string) bool {
	return a.modules[name]
}

// Available lists usable module names, sorted.
func (a *Availability) Available() []string {
	names := make([]string, 0, len(a.modules))
	for name, ok := range a.modules {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Missing lists degraded module names, sorted.
func (a *Availability) Missing() []string {
	var names []string
	for name, ok := range a.modules {
		if !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// degradedProxy builds a placeholder module whose every access raises
// a structured error naming the capability and what is available.
func degradedProxy(L *lua.LState, name string, avail *Availability) *lua.LTable {
	proxy := L.NewTable()
	mt := L.NewTable()
	raise := L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s module '%s' is not available in this deployment; available modules: %s",
			unavailableMarker, name, strings.Join(avail.Available(), ", "))
		return 0
	})
	mt.RawSetString("__index", raise)
	mt.RawSetString("__call", raise)
	mt.RawSetString("__newindex", raise)
	L.SetMetatable(proxy, mt)
	return proxy
}
