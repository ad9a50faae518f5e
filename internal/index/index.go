// Package index is the runtime-wide distribution query facility. It answers
// "which distributions are installed" by scanning every search-path
// directory for dist-info entries and by consulting registered providers,
// which is how in-memory mock distributions appear in listings identically
// to persisted ones.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanking13/micropip/internal/dist"
	"github.com/ryanking13/micropip/internal/metadata"
)

// Distribution is the uniform view of one installed distribution.
type Distribution interface {
	Name() string
	Version() string
	// ReadText returns the text of a metadata file (METADATA, INSTALLER,
	// RECORD) owned by the distribution, or false if absent.
	ReadText(key string) (string, bool)
	// Files lists every file the distribution owns, as recorded in its
	// manifest. Nil for distributions with no disk footprint.
	Files() []string
}

// Provider contributes distributions that have no dist-info directory on
// disk. The in-memory mock registry is the one implementation.
type Provider interface {
	Distributions() []Distribution
}

// Index enumerates distributions across the search path and any providers.
// The dirs function is read on every query so directories added to the
// search path later are picked up without re-wiring.
type Index struct {
	dirs      func() []string
	providers []Provider
}

// New creates an index over the directories returned by dirs.
func New(dirs func() []string) *Index {
	return &Index{dirs: dirs}
}

// AddProvider registers a provider. Registering the same provider twice is a
// no-op, mirroring the idempotent resolver hook on the import side.
func (ix *Index) AddProvider(p Provider) {
	for _, existing := range ix.providers {
		if existing == p {
			return
		}
	}
	ix.providers = append(ix.providers, p)
}

// Enumerate returns every known distribution: provider-supplied ones first,
// then dist-info directories in search-path order.
func (ix *Index) Enumerate() ([]Distribution, error) {
	var dists []Distribution

	for _, p := range ix.providers {
		dists = append(dists, p.Distributions()...)
	}

	for _, dir := range ix.dirs() {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dist-info") {
				continue
			}
			d, err := readDiskDistribution(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, err
			}
			dists = append(dists, d)
		}
	}

	return dists, nil
}

// Lookup finds a distribution by name, comparing canonical forms. Providers
// are consulted before the disk scan, so an in-memory distribution shadows a
// persisted one of the same name.
func (ix *Index) Lookup(name string) (Distribution, bool, error) {
	want := dist.CanonicalName(name)
	dists, err := ix.Enumerate()
	if err != nil {
		return nil, false, err
	}
	for _, d := range dists {
		if dist.CanonicalName(d.Name()) == want {
			return d, true, nil
		}
	}
	return nil, false, nil
}

// diskDistribution reads its metadata lazily from a dist-info directory.
type diskDistribution struct {
	infoDir string
	name    string
	version string
}

func readDiskDistribution(infoDir string) (*diskDistribution, error) {
	d := &diskDistribution{infoDir: infoDir}

	data, err := os.ReadFile(filepath.Join(infoDir, metadata.MetadataFile))
	if err == nil {
		fields, err := metadata.ParseString(string(data))
		if err != nil {
			return nil, fmt.Errorf("parsing metadata of %s: %w", infoDir, err)
		}
		d.name = fields.Get("Name")
		d.version = fields.Get("Version")
	}

	// Fall back to the directory name convention <name>-<version>.dist-info
	// when METADATA is missing or incomplete.
	if d.name == "" || d.version == "" {
		base := strings.TrimSuffix(filepath.Base(infoDir), ".dist-info")
		if idx := strings.LastIndex(base, "-"); idx > 0 {
			if d.name == "" {
				d.name = base[:idx]
			}
			if d.version == "" {
				d.version = base[idx+1:]
			}
		} else if d.name == "" {
			d.name = base
		}
	}

	return d, nil
}

func (d *diskDistribution) Name() string    { return d.name }
func (d *diskDistribution) Version() string { return d.version }

func (d *diskDistribution) ReadText(key string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(d.infoDir, key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (d *diskDistribution) Files() []string {
	text, ok := d.ReadText(metadata.RecordFile)
	if !ok {
		return nil
	}
	manifest, err := metadata.ParseManifest(strings.NewReader(text))
	if err != nil {
		return nil
	}
	return manifest.Paths()
}
