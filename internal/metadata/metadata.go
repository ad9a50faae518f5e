package metadata

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ryanking13/micropip/internal/dist"
)

// Well-known file names inside a dist-info directory.
const (
	MetadataFile  = "METADATA"
	RecordFile    = "RECORD"
	InstallerFile = "INSTALLER"
)

const metadataVersion = "1.1"

// Render produces the METADATA text for a mock distribution: the standard
// key: value header block plus one Provides line per declared module.
func Render(rec *dist.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Metadata-Version: %s\n", metadataVersion)
	fmt.Fprintf(&b, "Name: %s\n", rec.Name)
	fmt.Fprintf(&b, "Version: %s\n", rec.Version)
	fmt.Fprintf(&b, "Summary: %s mock package generated by micropip\n", rec.Name)
	fmt.Fprintf(&b, "Author-email: %s@micro.pip.non-working-fake-host\n", rec.Name)
	for _, m := range rec.Modules {
		fmt.Fprintf(&b, "Provides:%s\n", m.Name)
	}
	return b.String()
}

// Fields holds parsed key: value metadata. Repeated keys (Provides) collect
// into the Values slice in file order.
type Fields struct {
	order  []string
	values map[string][]string
}

// Get returns the first value recorded for key.
func (f *Fields) Get(key string) string {
	vs := f.values[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns every value recorded for key, in file order.
func (f *Fields) Values(key string) []string {
	return f.values[key]
}

// Keys returns the distinct keys in first-seen order.
func (f *Fields) Keys() []string {
	return f.order
}

// Parse reads key: value lines until EOF or the first blank line, which in
// the METADATA format separates the header block from an optional body.
func Parse(r io.Reader) (*Fields, error) {
	f := &Fields{values: make(map[string][]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := line[:idx]
		value := strings.TrimSpace(line[idx+1:])

		if _, seen := f.values[key]; !seen {
			f.order = append(f.order, key)
		}
		f.values[key] = append(f.values[key], value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return f, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(s string) (*Fields, error) {
	return Parse(strings.NewReader(s))
}
