// Package installer unpacks a real installable archive into a target
// directory. Archives are zip files laid out wheel-style: module trees at
// the top level next to a <name>-<version>.dist-info directory. Mock
// distributions never go through here, but they follow the same on-disk
// conventions this package produces.
package installer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Install unpacks archive bytes into the target directory. Entries in the
// metadata map are then written as files into the archive's dist-info
// directory, overriding whatever the archive shipped; installers use this to
// stamp their own INSTALLER text.
func Install(data []byte, target string, metadata map[string]string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}

	var distInfo string
	for _, file := range zr.File {
		rel, err := sanitize(file.Name)
		if err != nil {
			return err
		}
		if rel == "" {
			continue
		}

		top := strings.SplitN(rel, "/", 2)[0]
		if strings.HasSuffix(top, ".dist-info") {
			distInfo = top
		}

		dest := filepath.Join(target, filepath.FromSlash(rel))
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
			continue
		}
		if err := extractFile(file, dest); err != nil {
			return err
		}
	}

	if len(metadata) == 0 {
		return nil
	}
	if distInfo == "" {
		return fmt.Errorf("installing into %s: archive has no dist-info directory", target)
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := filepath.Join(target, distInfo, k)
		if err := os.WriteFile(path, []byte(metadata[k]), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", k, err)
		}
	}
	return nil
}

// InstallFile is Install reading the archive from disk.
func InstallFile(archivePath, target string, metadata map[string]string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	return Install(data, target, metadata)
}

func extractFile(file *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening %s in archive: %w", file.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", file.Name, err)
	}
	return out.Close()
}

// sanitize normalizes an archive entry name and rejects paths that would
// escape the target directory.
func sanitize(name string) (string, error) {
	rel := strings.TrimSuffix(strings.TrimPrefix(name, "./"), "/")
	if rel == "" || rel == "." {
		return "", nil
	}
	if strings.HasPrefix(rel, "/") || rel != filepath.ToSlash(filepath.Clean(rel)) || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("archive entry %q has an unsafe path", name)
	}
	return rel, nil
}
