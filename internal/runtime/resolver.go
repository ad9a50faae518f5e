package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// DirResolver loads modules from one directory on the search path. A dotted
// name maps to nested package directories with an init.lua entry file at the
// leaf: "foo.bar" resolves to <dir>/foo/bar/init.lua.
type DirResolver struct {
	dir string
	// located memoizes lookups; "" records a known miss. Installing a
	// distribution afterwards must go through InvalidateCaches.
	located map[string]string
}

// NewDirResolver creates a resolver rooted at dir.
func NewDirResolver(dir string) *DirResolver {
	return &DirResolver{
		dir:     dir,
		located: make(map[string]string),
	}
}

// Dir returns the resolver's root directory.
func (d *DirResolver) Dir() string {
	return d.dir
}

// InitFile returns the entry file path a dotted module name would occupy
// under this resolver's directory.
func (d *DirResolver) InitFile(name string) string {
	parts := strings.Split(name, ".")
	return filepath.Join(append([]string{d.dir}, append(parts, "init.lua")...)...)
}

func (d *DirResolver) locate(name string) string {
	if path, ok := d.located[name]; ok {
		return path
	}
	path := d.InitFile(name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		path = ""
	}
	d.located[name] = path
	return path
}

// CanResolve reports whether the entry file for name exists.
func (d *DirResolver) CanResolve(name string) bool {
	return d.locate(name) != ""
}

// Materialize reads the entry file and executes it with mod as environment.
func (d *DirResolver) Materialize(L *lua.LState, name string, mod *lua.LTable) error {
	path := d.locate(name)
	if path == "" {
		return fmt.Errorf("module %s not found under %s", name, d.dir)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return ExecSource(L, mod, name, string(src))
}

// InvalidateCaches drops memoized lookups, including recorded misses.
func (d *DirResolver) InvalidateCaches() {
	d.located = make(map[string]string)
}
