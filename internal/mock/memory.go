package mock

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/ryanking13/micropip/internal/dist"
	"github.com/ryanking13/micropip/internal/index"
	"github.com/ryanking13/micropip/internal/metadata"
	"github.com/ryanking13/micropip/internal/runtime"
)

// registry is the in-memory backend: a table of registered distributions
// and a table mapping each declared module name to its spec. It doubles as
// an index.Provider, so registered distributions appear in global listings,
// and as a runtime.Resolver, so importing a registered module succeeds with
// no file on disk.
//
// State is process-wide and unsynchronized; concurrent adds and removes are
// not a supported usage pattern.
type registry struct {
	dists   map[string]*memoryDistribution
	order   []string
	modules map[string]dist.ModuleSpec
}

func newRegistry() *registry {
	return &registry{
		dists:   make(map[string]*memoryDistribution),
		modules: make(map[string]dist.ModuleSpec),
	}
}

// add registers rec and hooks the registry into the runtime's resolver
// chain. The hook is installed at most once; a resolver already on the
// chain is left where it is.
func (r *registry) add(rt *runtime.Runtime, rec *dist.Record) error {
	if _, exists := r.dists[rec.Name]; exists {
		return fmt.Errorf("adding %s: %w", rec.Name, ErrConflict)
	}

	d := &memoryDistribution{
		name:      rec.Name,
		version:   rec.Version,
		meta:      metadata.Render(rec),
		installer: string(rec.Installer),
	}
	for _, m := range rec.Modules {
		d.modules = append(d.modules, m.Name)
		r.modules[m.Name] = m.Spec
	}

	r.dists[rec.Name] = d
	r.order = append(r.order, rec.Name)

	// Ahead of the directory resolvers: an in-memory mock shadows a
	// persisted distribution of the same name.
	rt.PrependResolver(r)
	return nil
}

// remove unregisters the distribution and its modules. The resolver hook
// stays resident on the chain; an empty registry simply resolves nothing.
func (r *registry) remove(name string) {
	d, exists := r.dists[name]
	if !exists {
		return
	}
	for _, mod := range d.modules {
		delete(r.modules, mod)
	}
	delete(r.dists, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Distributions implements index.Provider.
func (r *registry) Distributions() []index.Distribution {
	dists := make([]index.Distribution, 0, len(r.order))
	for _, name := range r.order {
		dists = append(dists, r.dists[name])
	}
	return dists
}

// CanResolve implements runtime.Resolver.
func (r *registry) CanResolve(name string) bool {
	_, ok := r.modules[name]
	return ok
}

// Materialize implements runtime.Resolver. The module table is already
// bound into the import cache; a source spec executes with the table as its
// environment, an init spec is invoked with the table, and an empty spec
// leaves it empty.
func (r *registry) Materialize(L *lua.LState, name string, mod *lua.LTable) error {
	spec, ok := r.modules[name]
	if !ok {
		return fmt.Errorf("module %s is not registered", name)
	}

	if spec.Init != nil {
		return spec.Init(L, mod)
	}
	if spec.Source == "" {
		return nil
	}
	return runtime.ExecSource(L, mod, name, dist.Dedent(spec.Source))
}

// memoryDistribution exposes a registered distribution through the same
// query surface as a persisted one. It owns no files.
type memoryDistribution struct {
	name      string
	version   string
	meta      string
	installer string
	modules   []string
}

func (d *memoryDistribution) Name() string    { return d.name }
func (d *memoryDistribution) Version() string { return d.version }

func (d *memoryDistribution) ReadText(key string) (string, bool) {
	switch key {
	case metadata.MetadataFile:
		return d.meta, true
	case metadata.InstallerFile:
		return d.installer, true
	}
	return "", false
}

func (d *memoryDistribution) Files() []string {
	return nil
}
