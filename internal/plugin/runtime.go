package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds a single script execution.
const DefaultTimeout = 5 * time.Second

// ErrRuntimeClosed is returned by a Runtime after Close.
var ErrRuntimeClosed = errors.New("lua runtime closed")

// Runtime is a restricted Lua state with the regcomp modules installed.
//
// The underlying LState is not goroutine-safe; the mutex serializes Go
// callers.
type Runtime struct {
	L       *lua.LState
	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithTimeout sets the per-execution timeout. Zero disables it.
func WithTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// NewRuntime creates a state with the safe standard libraries and every
// module of reg injected.
func NewRuntime(reg *Registry, opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	restrictRequire(L)

	if err := reg.InjectAll(L); err != nil {
		L.Close()
		return nil, err
	}
	r.L = L
	return r, nil
}

func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os and debug stay closed.
}

// restrictRequire clears the search paths so require only resolves
// preloaded modules and the opened standard libraries.
func restrictRequire(L *lua.LState) {
	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	L.SetField(pkg, "path", lua.LString(""))
	L.SetField(pkg, "cpath", lua.LString(""))

	allowed := map[string]bool{"regcomp": true, "string": true, "table": true, "math": true}
	require := L.GetGlobal("require")
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !allowed[name] {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		L.Push(require)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}

// DoString executes a chunk.
func (r *Runtime) DoString(code string) error {
	return r.do(func() error { return r.L.DoString(code) })
}

// DoFile executes a script file.
func (r *Runtime) DoFile(path string) error {
	return r.do(func() error { return r.L.DoFile(path) })
}

func (r *Runtime) do(fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}

	if r.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.L.SetContext(ctx)
		defer r.L.RemoveContext()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("lua panic: %v", p)
		}
	}()
	return fn()
}

// Close releases the state. Closing twice is a no-op.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.L.Close()
}
