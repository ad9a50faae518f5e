// Package mockfile parses declarative mock sets: a YAML file listing mock
// distributions to add in one go, typically checked into a test fixture
// directory.
package mockfile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ryanking13/micropip/internal/dist"
)

// Entry declares one mock distribution.
type Entry struct {
	Name       string            `yaml:"name"`
	Version    string            `yaml:"version"`
	Persistent bool              `yaml:"persistent"`
	// Modules maps dotted module names to source text. Empty or omitted
	// source declares an empty module; an omitted map declares the default
	// single module named after the package.
	Modules map[string]string `yaml:"modules"`
}

// File is a parsed mockfile.
type File struct {
	Mocks []Entry `yaml:"mocks"`
}

// Parse reads a mockfile and validates it: every entry needs a name, and a
// name+version pair may appear only once.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading mockfile: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing mockfile: %w", err)
	}

	seen := make(map[string]bool)
	for i, e := range f.Mocks {
		if e.Name == "" {
			return nil, fmt.Errorf("parsing mockfile: entry %d has no name", i+1)
		}
		key := e.Name + "-" + e.Version
		if seen[key] {
			return nil, fmt.Errorf("parsing mockfile: duplicate entry %s %s", e.Name, e.Version)
		}
		seen[key] = true
	}

	return &f, nil
}

// ParseFile is Parse over a file path.
func ParseFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mockfile: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// ModuleSpecs converts an entry's module map to builder input.
func (e Entry) ModuleSpecs() map[string]dist.ModuleSpec {
	if e.Modules == nil {
		return nil
	}
	specs := make(map[string]dist.ModuleSpec, len(e.Modules))
	for name, src := range e.Modules {
		specs[name] = dist.SourceModule(src)
	}
	return specs
}
