package index

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeDistribution is an in-memory Distribution for provider tests.
type fakeDistribution struct {
	name    string
	version string
	texts   map[string]string
}

func (d *fakeDistribution) Name() string    { return d.name }
func (d *fakeDistribution) Version() string { return d.version }
func (d *fakeDistribution) Files() []string { return nil }

func (d *fakeDistribution) ReadText(key string) (string, bool) {
	v, ok := d.texts[key]
	return v, ok
}

type fakeProvider struct {
	dists []Distribution
}

func (p *fakeProvider) Distributions() []Distribution { return p.dists }

func writeDistInfo(t *testing.T, dir, name, version string) string {
	t.Helper()
	infoDir := filepath.Join(dir, name+"-"+version+".dist-info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	meta := "Metadata-Version: 1.1\nName: " + name + "\nVersion: " + version + "\n"
	if err := os.WriteFile(filepath.Join(infoDir, "METADATA"), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	return infoDir
}

func TestEnumerate_ScansDistInfoDirs(t *testing.T) {
	dir := t.TempDir()
	writeDistInfo(t, dir, "alpha", "1.0")
	writeDistInfo(t, dir, "beta", "2.0")
	// Unrelated entries are ignored.
	if err := os.MkdirAll(filepath.Join(dir, "alpha"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix := New(func() []string { return []string{dir} })
	dists, err := ix.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}

	if len(dists) != 2 {
		t.Fatalf("got %d distributions, want 2", len(dists))
	}
	names := map[string]string{}
	for _, d := range dists {
		names[d.Name()] = d.Version()
	}
	if names["alpha"] != "1.0" || names["beta"] != "2.0" {
		t.Errorf("Enumerate() = %v", names)
	}
}

func TestEnumerate_MissingDirIsNotAnError(t *testing.T) {
	ix := New(func() []string { return []string{"/nonexistent/search/dir"} })
	dists, err := ix.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(dists) != 0 {
		t.Errorf("got %d distributions, want 0", len(dists))
	}
}

func TestEnumerate_ProvidersListedFirst(t *testing.T) {
	dir := t.TempDir()
	writeDistInfo(t, dir, "disk", "1.0")

	ix := New(func() []string { return []string{dir} })
	ix.AddProvider(&fakeProvider{dists: []Distribution{
		&fakeDistribution{name: "mem", version: "0.1"},
	}})

	dists, err := ix.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(dists) != 2 {
		t.Fatalf("got %d distributions, want 2", len(dists))
	}
	if dists[0].Name() != "mem" || dists[1].Name() != "disk" {
		t.Errorf("order = [%s %s], want provider first", dists[0].Name(), dists[1].Name())
	}
}

func TestAddProvider_Idempotent(t *testing.T) {
	p := &fakeProvider{dists: []Distribution{
		&fakeDistribution{name: "mem", version: "0.1"},
	}}
	ix := New(func() []string { return nil })
	ix.AddProvider(p)
	ix.AddProvider(p)

	dists, err := ix.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(dists) != 1 {
		t.Errorf("got %d distributions, want 1 (provider registered twice)", len(dists))
	}
}

func TestLookup_CanonicalName(t *testing.T) {
	dir := t.TempDir()
	writeDistInfo(t, dir, "My_Package", "1.0")

	ix := New(func() []string { return []string{dir} })

	d, found, err := ix.Lookup("my-package")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !found {
		t.Fatal("Lookup() did not find the canonical match")
	}
	if d.Name() != "My_Package" {
		t.Errorf("Name() = %q, want original spelling", d.Name())
	}

	if _, found, _ := ix.Lookup("absent"); found {
		t.Error("Lookup() found a distribution that does not exist")
	}
}

func TestLookup_ProviderShadowsDisk(t *testing.T) {
	dir := t.TempDir()
	writeDistInfo(t, dir, "both", "1.0")

	ix := New(func() []string { return []string{dir} })
	ix.AddProvider(&fakeProvider{dists: []Distribution{
		&fakeDistribution{name: "both", version: "9.9"},
	}})

	d, found, err := ix.Lookup("both")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}
	if d.Version() != "9.9" {
		t.Errorf("Version() = %q, want the provider entry to win", d.Version())
	}
}

func TestDiskDistribution_FilesAndTexts(t *testing.T) {
	dir := t.TempDir()
	infoDir := writeDistInfo(t, dir, "filed", "1.0")
	if err := os.WriteFile(filepath.Join(infoDir, "INSTALLER"), []byte("micropip mock package"), 0o644); err != nil {
		t.Fatal(err)
	}
	record := filepath.Join(dir, "filed", "init.lua") + ",,0\n" + filepath.Join(infoDir, "RECORD") + ",,\n"
	if err := os.WriteFile(filepath.Join(infoDir, "RECORD"), []byte(record), 0o644); err != nil {
		t.Fatal(err)
	}

	ix := New(func() []string { return []string{dir} })
	d, found, err := ix.Lookup("filed")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}

	installer, ok := d.ReadText("INSTALLER")
	if !ok || installer != "micropip mock package" {
		t.Errorf("ReadText(INSTALLER) = %q, %v", installer, ok)
	}
	if _, ok := d.ReadText("NOPE"); ok {
		t.Error("ReadText() of a missing file reported ok")
	}

	files := d.Files()
	if len(files) != 2 {
		t.Errorf("Files() = %v, want 2 entries", files)
	}
}

func TestDiskDistribution_NameFallsBackToDirName(t *testing.T) {
	dir := t.TempDir()
	// dist-info with no METADATA at all.
	if err := os.MkdirAll(filepath.Join(dir, "bare-0.5.dist-info"), 0o755); err != nil {
		t.Fatal(err)
	}

	ix := New(func() []string { return []string{dir} })
	d, found, err := ix.Lookup("bare")
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}
	if d.Name() != "bare" || d.Version() != "0.5" {
		t.Errorf("fallback parse = %s %s, want bare 0.5", d.Name(), d.Version())
	}
}
