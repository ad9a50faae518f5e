package dist

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Tag identifies which backend created a mock distribution. The value is
// written verbatim as the INSTALLER text of the distribution, which is how
// mocks are later told apart from genuinely installed packages.
type Tag string

const (
	// TagMemory marks distributions held only in the process registry.
	TagMemory Tag = "micropip in-memory mock package"
	// TagPersistent marks distributions written to the search path on disk.
	TagPersistent Tag = "micropip mock package"
)

// IsMockTag reports whether an INSTALLER text belongs to this tool.
func IsMockTag(s string) bool {
	return s == string(TagMemory) || s == string(TagPersistent)
}

// InitFunc initializes a freshly created module table. It may mutate the
// table arbitrarily, the way a loader would populate a module namespace.
type InitFunc func(L *lua.LState, mod *lua.LTable) error

// ModuleSpec describes the body of one mock module: either Lua source text
// executed with the module table as its environment, or an init function
// invoked with the table. The zero value is an empty module. Init specs are
// only usable with the in-memory backend.
type ModuleSpec struct {
	Source string
	Init   InitFunc
}

// SourceModule returns a spec whose body is the given Lua source.
func SourceModule(src string) ModuleSpec {
	return ModuleSpec{Source: src}
}

// InitModule returns a spec initialized by fn instead of source text.
func InitModule(fn InitFunc) ModuleSpec {
	return ModuleSpec{Init: fn}
}

// EmptyModule returns a spec with no body.
func EmptyModule() ModuleSpec {
	return ModuleSpec{}
}

// Module is one named module declared by a distribution. Dotted names
// ("foo.bar") map to nested package directories on disk.
type Module struct {
	Name string
	Spec ModuleSpec
}

// Record is the normalized metadata for one mock distribution. Records are
// built by NewRecord and handed to a backend; the builder itself touches no
// shared state and performs no I/O.
type Record struct {
	Name      string
	Version   string
	Modules   []Module
	Installer Tag
}

// NewRecord builds a Record from user input. When modules is empty, a single
// empty module named after the package is declared, matching the behavior of
// installing a stub package. Module order is made deterministic by sorting
// names, since Go map iteration order is not.
func NewRecord(name, version string, modules map[string]ModuleSpec, persistent bool) (*Record, error) {
	if name == "" {
		return nil, fmt.Errorf("building record: name must not be empty")
	}

	tag := TagMemory
	if persistent {
		tag = TagPersistent
	}

	rec := &Record{
		Name:      name,
		Version:   version,
		Installer: tag,
	}

	if len(modules) == 0 {
		rec.Modules = []Module{{Name: name}}
		return rec, nil
	}

	names := make([]string, 0, len(modules))
	for n := range modules {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		spec := modules[n]
		if persistent && spec.Init != nil {
			return nil, fmt.Errorf("building record: module %s uses an init function, which only the in-memory backend supports", n)
		}
		rec.Modules = append(rec.Modules, Module{Name: n, Spec: spec})
	}

	return rec, nil
}

// DistInfoDir returns the standard dist-info directory name for the record.
func (r *Record) DistInfoDir() string {
	return r.Name + "-" + r.Version + ".dist-info"
}

var canonicalRe = regexp.MustCompile(`[-_.]+`)

// CanonicalName normalizes a distribution name for comparison, PEP 503
// style: runs of dash, underscore and dot collapse to a single dash and the
// result is lowercased.
func CanonicalName(name string) string {
	return strings.ToLower(canonicalRe.ReplaceAllString(name, "-"))
}

// Dedent strips the longest common leading whitespace from the non-blank
// lines of s. Module source is usually written as an indented literal in
// calling code; the stored module body should start at column zero.
func Dedent(s string) string {
	lines := strings.Split(s, "\n")

	margin := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			margin = indent
			first = false
			continue
		}
		for !strings.HasPrefix(line, margin) {
			margin = margin[:len(margin)-1]
		}
	}

	for i, line := range lines {
		// Whitespace-only lines normalize to empty, like the margin never
		// applied to them.
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, margin)
	}
	return strings.Join(lines, "\n")
}
