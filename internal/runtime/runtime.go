// Package runtime owns the embedded Lua interpreter and its module-loading
// machinery. Importing goes through an ordered chain of resolvers: directory
// resolvers cover packages installed on the search path, and backends may
// hook additional resolvers (the in-memory mock registry does) so that an
// import succeeds without any file existing.
package runtime

import (
	"fmt"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
)

// Resolver is one entry in the module search chain.
type Resolver interface {
	// CanResolve reports whether this resolver can load the dotted name.
	CanResolve(name string) bool
	// Materialize populates mod, which is already bound into the module
	// cache, with the module body for name.
	Materialize(L *lua.LState, name string, mod *lua.LTable) error
}

// cacheInvalidator is implemented by resolvers that memoize lookups.
type cacheInvalidator interface {
	InvalidateCaches()
}

// Runtime wraps a single Lua state and the resolver chain consulted on
// import. It is not safe for concurrent use; callers drive it from one
// goroutine.
type Runtime struct {
	state     *lua.LState
	resolvers []Resolver
	loaded    *lua.LTable
}

// New creates a runtime with the base libraries opened and a require()
// function installed that delegates to Import.
func New() *Runtime {
	L := lua.NewState()

	r := &Runtime{
		state:  L,
		loaded: L.NewTable(),
	}

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	r.registerRequire()

	return r
}

// State exposes the underlying Lua state.
func (r *Runtime) State() *lua.LState {
	return r.state
}

// Close tears down the Lua state.
func (r *Runtime) Close() {
	r.state.Close()
}

// AddResolver appends a resolver to the search chain. Adding the same
// resolver value twice is a no-op, so hooks can register idempotently.
func (r *Runtime) AddResolver(res Resolver) {
	if r.hasResolver(res) {
		return
	}
	r.resolvers = append(r.resolvers, res)
}

// PrependResolver puts a resolver at the front of the search chain, ahead
// of every directory. The in-memory mock backend registers this way so its
// modules shadow same-named persisted ones. Idempotent like AddResolver.
func (r *Runtime) PrependResolver(res Resolver) {
	if r.hasResolver(res) {
		return
	}
	r.resolvers = append([]Resolver{res}, r.resolvers...)
}

func (r *Runtime) hasResolver(res Resolver) bool {
	for _, existing := range r.resolvers {
		if existing == res {
			return true
		}
	}
	return false
}

// AddDirectory appends a directory resolver for dir. Paths are cleaned
// first, and a directory already on the chain is not added again.
func (r *Runtime) AddDirectory(dir string) {
	dir = filepath.Clean(dir)
	for _, existing := range r.resolvers {
		if d, ok := existing.(*DirResolver); ok && d.Dir() == dir {
			return
		}
	}
	r.resolvers = append(r.resolvers, NewDirResolver(dir))
}

// Directories returns the directories currently on the search chain, in
// chain order. The distribution index scans these for dist-info entries.
func (r *Runtime) Directories() []string {
	var dirs []string
	for _, res := range r.resolvers {
		if d, ok := res.(*DirResolver); ok {
			dirs = append(dirs, d.Dir())
		}
	}
	return dirs
}

// InvalidateCaches drops memoized lookups in every resolver so that a
// freshly installed distribution is visible to the next import.
func (r *Runtime) InvalidateCaches() {
	for _, res := range r.resolvers {
		if c, ok := res.(cacheInvalidator); ok {
			c.InvalidateCaches()
		}
	}
}

// Loaded returns the cached module table for name, if it was imported.
func (r *Runtime) Loaded(name string) (*lua.LTable, bool) {
	if tbl, ok := r.state.GetField(r.loaded, name).(*lua.LTable); ok {
		return tbl, true
	}
	return nil, false
}

// Unload drops name from the module cache. A later import re-materializes
// the module from whichever resolver claims it.
func (r *Runtime) Unload(name string) {
	r.state.SetField(r.loaded, name, lua.LNil)
}

// Import loads the module with the given dotted name and returns its table.
// The fresh table is bound into the module cache before the body runs, so
// self-referential and circular imports observe the partially initialized
// module instead of recursing forever.
func (r *Runtime) Import(name string) (*lua.LTable, error) {
	L := r.state

	if cached, ok := L.GetField(r.loaded, name).(*lua.LTable); ok {
		return cached, nil
	}

	res := r.findResolver(name)
	if res == nil {
		return nil, fmt.Errorf("importing %s: no module found on the search path", name)
	}

	mod := r.newModuleTable(name)
	L.SetField(r.loaded, name, mod)

	if err := res.Materialize(L, name, mod); err != nil {
		// Unbind so a later attempt can retry.
		L.SetField(r.loaded, name, lua.LNil)
		return nil, fmt.Errorf("importing %s: %w", name, err)
	}

	return mod, nil
}

func (r *Runtime) findResolver(name string) Resolver {
	for _, res := range r.resolvers {
		if res.CanResolve(name) {
			return res
		}
	}
	return nil
}

// newModuleTable creates an empty module whose missing names fall back to
// the globals, so module bodies can call print and the base library without
// qualifying anything.
func (r *Runtime) newModuleTable(name string) *lua.LTable {
	L := r.state
	mod := L.NewTable()
	L.SetField(mod, "_NAME", lua.LString(name))

	mt := L.NewTable()
	L.SetField(mt, "__index", L.G.Global)
	L.SetMetatable(mod, mt)
	return mod
}

// ExecSource compiles src and runs it with mod as its environment, so that
// top-level assignments become module attributes.
func ExecSource(L *lua.LState, mod *lua.LTable, name, src string) error {
	fn, err := L.LoadString(src)
	if err != nil {
		return fmt.Errorf("compiling module %s: %w", name, err)
	}
	L.SetFEnv(fn, mod)
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		return fmt.Errorf("executing module %s: %w", name, err)
	}
	return nil
}

// registerRequire installs a require() visible to Lua code that delegates to
// Import, and exposes the module cache as package.loaded. Mock module bodies
// can therefore import each other like any real module would.
func (r *Runtime) registerRequire() {
	L := r.state

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		mod, err := r.Import(name)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(mod)
		return 1
	}))

	pkg := L.NewTable()
	L.SetField(pkg, "loaded", r.loaded)
	L.SetGlobal("package", pkg)
}
