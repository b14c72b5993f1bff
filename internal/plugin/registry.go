// Package plugin exposes the completion source to Lua scripts.
//
// Scripts load the API with:
//
//	local regcomp = require("regcomp")
//	local items = regcomp.reg.gather({ registers = "ab" }, "")
//
// Each API area is a Module registered under a _regcomp_<name> global and
// collected into the "regcomp" table by the module loader.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// APIVersion is reported to scripts as regcomp.api_version.
const APIVersion = 1

const globalPrefix = "_regcomp_"

// Module is a Lua API module.
type Module interface {
	// Name returns the module name, e.g. "reg".
	Name() string

	// Register installs the module table as the _regcomp_<name> global.
	Register(L *lua.LState) error
}

// Registry manages API modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module.
func (r *Registry) Register(mod Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[mod.Name()]; exists {
		return fmt.Errorf("module %q already registered", mod.Name())
	}
	r.modules[mod.Name()] = mod
	return nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[name]
	return mod, ok
}

// List returns the registered module names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InjectAll registers every module into L and makes require("regcomp")
// return them.
func (r *Registry) InjectAll(L *lua.LState) error {
	names := r.List()
	for _, name := range names {
		mod, _ := r.Get(name)
		if err := mod.Register(L); err != nil {
			return fmt.Errorf("failed to register module %q: %w", name, err)
		}
	}
	installLoader(L, names)
	return nil
}

// installLoader moves the _regcomp_* globals into the preloaded "regcomp"
// module.
func installLoader(L *lua.LState, names []string) {
	root := L.NewTable()
	for _, name := range names {
		global := globalPrefix + name
		if val := L.GetGlobal(global); val != lua.LNil {
			L.SetField(root, name, val)
			L.SetGlobal(global, lua.LNil)
		}
	}
	L.SetField(root, "api_version", lua.LNumber(APIVersion))

	L.PreloadModule("regcomp", func(L *lua.LState) int {
		L.Push(root)
		return 1
	})
}
