// Package mock creates, lists and removes mock distributions: synthetic
// packages that satisfy dependency checks without any real code being
// fetched. A mock lives either durably on the module search path or
// transiently in the process registry; from the caller's point of view the
// two backends behave the same.
package mock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ryanking13/micropip/internal/dist"
	"github.com/ryanking13/micropip/internal/index"
	"github.com/ryanking13/micropip/internal/metadata"
	"github.com/ryanking13/micropip/internal/runtime"
)

var (
	// ErrConflict is returned when a persistent add finds its dist-info
	// directory already present, or an in-memory add reuses a name.
	ErrConflict = errors.New("distribution already exists")
	// ErrNotFound is returned when a remove target is unknown.
	ErrNotFound = errors.New("distribution not found")
	// ErrNotAMock is returned when a remove target exists but was not
	// created by this tool. It guards real packages against deletion.
	ErrNotAMock = errors.New("not a micropip mock")
)

// Manager is the front door of the mock subsystem. It is not safe for
// concurrent use; like the runtime it belongs to, it is driven from one
// goroutine.
type Manager struct {
	rt       *runtime.Runtime
	idx      *index.Index
	root     string
	registry *registry
}

// NewManager wires a manager to a runtime and a user-scoped search root.
// The in-memory registry is registered with the distribution index up
// front, so in-memory mocks show up in listings the moment they are added.
func NewManager(rt *runtime.Runtime, root string) *Manager {
	m := &Manager{
		rt:       rt,
		idx:      index.New(rt.Directories),
		root:     root,
		registry: newRegistry(),
	}
	m.idx.AddProvider(m.registry)
	return m
}

// Index exposes the distribution query facility the manager consults.
func (m *Manager) Index() *index.Index {
	return m.idx
}

// Root returns the search root used by the persistent backend.
func (m *Manager) Root() string {
	return m.root
}

// Add creates a mock distribution. With no modules declared, a single empty
// module named after the package is installed. When persistent is true the
// distribution is written under the search root and survives the process;
// otherwise it lives in the registry only and no file is touched. Either
// way, Add returns only after the new distribution is visible to imports
// and queries.
func (m *Manager) Add(name, version string, modules map[string]dist.ModuleSpec, persistent bool) error {
	rec, err := dist.NewRecord(name, version, modules, persistent)
	if err != nil {
		return err
	}

	if persistent {
		err = m.addPersistent(rec)
	} else {
		err = m.registry.add(m.rt, rec)
	}
	if err != nil {
		return err
	}

	m.rt.InvalidateCaches()
	return nil
}

// List returns the names of every distribution created by this tool, in
// enumeration order. Ordinary installed distributions are filtered out by
// their INSTALLER text.
func (m *Manager) List() ([]string, error) {
	dists, err := m.idx.Enumerate()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, d := range dists {
		installer, ok := d.ReadText(metadata.InstallerFile)
		if ok && dist.IsMockTag(strings.TrimSpace(installer)) {
			names = append(names, d.Name())
		}
	}
	return names, nil
}

// Remove deletes the mock distribution with the given name, dispatching to
// whichever backend its installer marker names. A distribution without a
// recognized marker is refused, never deleted.
func (m *Manager) Remove(name string) error {
	d, found, err := m.idx.Lookup(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("removing %s: %w", name, ErrNotFound)
	}

	installer, ok := d.ReadText(metadata.InstallerFile)
	if ok {
		installer = strings.TrimSpace(installer)
	}

	switch {
	case ok && installer == string(dist.TagMemory):
		m.registry.remove(d.Name())
	case ok && installer == string(dist.TagPersistent):
		if err := m.removePersistent(d); err != nil {
			return err
		}
	default:
		return fmt.Errorf("removing %s: %w: was it installed with micropip?", name, ErrNotAMock)
	}

	// Resolvers may hold a positive lookup for a file that is now gone.
	m.rt.InvalidateCaches()
	return nil
}
