package metadata

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Manifest is the RECORD file of a distribution: one line per owned file in
// the form "<path>,,<size>". The middle field is a checksum slot that mock
// distributions leave blank, since their content is never verified against a
// package index. The trailing line names the RECORD file itself with a blank
// size.
type Manifest struct {
	entries []Entry
}

// Entry is one owned file and its size in bytes.
type Entry struct {
	Path string
	Size int64
}

// Append records an owned file.
func (m *Manifest) Append(path string, size int64) {
	m.entries = append(m.entries, Entry{Path: path, Size: size})
}

// Entries returns the recorded files in append order.
func (m *Manifest) Entries() []Entry {
	return m.entries
}

// Render writes the manifest, ending with the self-referencing line for
// recordPath.
func (m *Manifest) Render(w io.Writer, recordPath string) error {
	for _, e := range m.entries {
		if _, err := fmt.Fprintf(w, "%s,,%d\n", e.Path, e.Size); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%s,,\n", recordPath); err != nil {
		return err
	}
	return nil
}

// ParseManifest reads a RECORD file back into path/size entries. Lines with
// a blank size (including the self-referencing line) get size -1; removal
// only needs the paths.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Split from the right: paths may themselves contain commas.
		idx := strings.LastIndex(line, ",")
		if idx < 0 {
			continue
		}
		sizeField := line[idx+1:]
		rest := line[:idx]
		idx = strings.LastIndex(rest, ",")
		if idx < 0 {
			continue
		}
		path := rest[:idx]

		size := int64(-1)
		if sizeField != "" {
			if _, err := fmt.Sscanf(sizeField, "%d", &size); err != nil {
				return nil, fmt.Errorf("parsing record line %q: %w", line, err)
			}
		}
		m.entries = append(m.entries, Entry{Path: path, Size: size})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return m, nil
}

// Paths returns every recorded path in order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		paths = append(paths, e.Path)
	}
	return paths
}
