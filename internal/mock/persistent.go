package mock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanking13/micropip/internal/dist"
	"github.com/ryanking13/micropip/internal/index"
	"github.com/ryanking13/micropip/internal/metadata"
)

// addPersistent materializes rec under the search root: the dist-info
// directory with METADATA, INSTALLER and RECORD, plus one package directory
// per declared module holding its init.lua. A failure partway through
// leaves the files written so far on disk; the conflict check on the next
// attempt surfaces the leftover directory instead of silently overwriting
// it.
func (m *Manager) addPersistent(rec *dist.Record) error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("creating search root: %w", err)
	}
	// The root may not be on the search path yet when this is the first
	// install of the process.
	m.rt.AddDirectory(m.root)

	infoDir := filepath.Join(m.root, rec.DistInfoDir())
	if err := os.Mkdir(infoDir, 0o755); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("adding %s %s: %w", rec.Name, rec.Version, ErrConflict)
		}
		return fmt.Errorf("creating %s: %w", infoDir, err)
	}

	manifest := &metadata.Manifest{}

	metadataPath := filepath.Join(infoDir, metadata.MetadataFile)
	meta := metadata.Render(rec)
	if err := os.WriteFile(metadataPath, []byte(meta), 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	manifest.Append(metadataPath, int64(len(meta)))

	installerPath := filepath.Join(infoDir, metadata.InstallerFile)
	if err := os.WriteFile(installerPath, []byte(rec.Installer), 0o644); err != nil {
		return fmt.Errorf("writing installer marker: %w", err)
	}
	manifest.Append(installerPath, int64(len(rec.Installer)))

	for _, mod := range rec.Modules {
		initPath, size, err := m.writeModule(mod)
		if err != nil {
			return err
		}
		manifest.Append(initPath, size)
	}

	recordPath := filepath.Join(infoDir, metadata.RecordFile)
	f, err := os.Create(recordPath)
	if err != nil {
		return fmt.Errorf("creating record: %w", err)
	}
	defer f.Close()
	if err := manifest.Render(f, recordPath); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}

	return nil
}

// writeModule creates the package directory tree for a dotted module name
// and writes its dedented source into the leaf init.lua.
func (m *Manager) writeModule(mod dist.Module) (string, int64, error) {
	parts := strings.Split(mod.Name, ".")
	dirPath := filepath.Join(append([]string{m.root}, parts...)...)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating module directory for %s: %w", mod.Name, err)
	}

	src := dist.Dedent(mod.Spec.Source)
	initPath := filepath.Join(dirPath, "init.lua")
	if err := os.WriteFile(initPath, []byte(src), 0o644); err != nil {
		return "", 0, fmt.Errorf("writing module %s: %w", mod.Name, err)
	}
	return initPath, int64(len(src)), nil
}

// removePersistent deletes every file the distribution owns, then clears out
// the directories those files occupied. The search root itself is never
// deleted, even when it ends up empty.
func (m *Manager) removePersistent(d index.Distribution) error {
	folders := make(map[string]struct{})
	for _, file := range d.Files() {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", file, err)
		}
		folders[filepath.Dir(file)] = struct{}{}
	}

	root := filepath.Clean(m.root)
	for folder := range folders {
		if filepath.Clean(folder) == root {
			continue
		}
		if err := os.RemoveAll(folder); err != nil {
			return fmt.Errorf("removing %s: %w", folder, err)
		}
	}
	return nil
}
