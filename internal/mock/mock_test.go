package mock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/ryanking13/micropip/internal/dist"
	"github.com/ryanking13/micropip/internal/runtime"
)

func newTestManager(t *testing.T) (*runtime.Runtime, *Manager, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "packages")
	rt := runtime.New()
	t.Cleanup(rt.Close)
	rt.AddDirectory(root)
	return rt, NewManager(rt, root), root
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func TestAddListRemove_RoundTrip(t *testing.T) {
	for _, persistent := range []bool{false, true} {
		name := "memory"
		if persistent {
			name = "persistent"
		}
		t.Run(name, func(t *testing.T) {
			_, mgr, _ := newTestManager(t)

			if err := mgr.Add("foo", "1.0", nil, persistent); err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			names, err := mgr.List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if !contains(names, "foo") {
				t.Fatalf("List() = %v, want to contain foo", names)
			}

			if err := mgr.Remove("foo"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			names, err = mgr.List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if contains(names, "foo") {
				t.Errorf("List() after remove = %v, foo still present", names)
			}
		})
	}
}

func TestAdd_MemoryCreatesNoFiles(t *testing.T) {
	_, mgr, root := newTestManager(t)

	if err := mgr.Add("bar", "2.0", nil, false); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if _, err := os.Stat(root); !os.IsNotExist(err) {
		entries, _ := os.ReadDir(root)
		if len(entries) != 0 {
			t.Errorf("in-memory add created files: %v", entries)
		}
	}
}

func TestAdd_PersistentLayout(t *testing.T) {
	_, mgr, root := newTestManager(t)

	if err := mgr.Add("baz", "3.0", nil, true); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("reading root: %v", err)
	}
	// Exactly the dist-info directory and one directory for the default
	// module.
	if len(entries) != 2 {
		t.Fatalf("root has %d entries, want 2: %v", len(entries), entries)
	}

	infoDir := filepath.Join(root, "baz-3.0.dist-info")
	for _, file := range []string{"METADATA", "RECORD", "INSTALLER"} {
		if _, err := os.Stat(filepath.Join(infoDir, file)); err != nil {
			t.Errorf("missing %s: %v", file, err)
		}
	}

	installer, err := os.ReadFile(filepath.Join(infoDir, "INSTALLER"))
	if err != nil {
		t.Fatal(err)
	}
	if string(installer) != string(dist.TagPersistent) {
		t.Errorf("INSTALLER = %q, want %q", installer, dist.TagPersistent)
	}

	record, err := os.ReadFile(filepath.Join(infoDir, "RECORD"))
	if err != nil {
		t.Fatal(err)
	}
	// METADATA, INSTALLER, one init.lua, plus the self-referencing line.
	lines := strings.Split(strings.TrimRight(string(record), "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("RECORD has %d lines, want 4:\n%s", len(lines), record)
	}

	if _, err := os.Stat(filepath.Join(root, "baz", "init.lua")); err != nil {
		t.Errorf("missing default module init file: %v", err)
	}
}

func TestAdd_PersistentConflict(t *testing.T) {
	_, mgr, _ := newTestManager(t)

	if err := mgr.Add("dup", "1.0", nil, true); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	err := mgr.Add("dup", "1.0", nil, true)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("second Add() error = %v, want ErrConflict", err)
	}

	// A different version of the same name is a distinct distribution.
	if err := mgr.Add("dup", "2.0", nil, true); err != nil {
		t.Errorf("Add() of same name, new version: %v", err)
	}
}

func TestAdd_MemoryConflict(t *testing.T) {
	_, mgr, _ := newTestManager(t)

	if err := mgr.Add("dup", "1.0", nil, false); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	if err := mgr.Add("dup", "1.1", nil, false); !errors.Is(err, ErrConflict) {
		t.Errorf("second Add() error = %v, want ErrConflict", err)
	}
}

func TestRemove_NotFound(t *testing.T) {
	_, mgr, _ := newTestManager(t)

	if err := mgr.Remove("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}
}

func TestRemove_RefusesForeignDistribution(t *testing.T) {
	_, mgr, root := newTestManager(t)

	// Simulate a genuinely installed package: dist-info with a different
	// installer.
	infoDir := filepath.Join(root, "real-1.0.dist-info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(infoDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("METADATA", "Metadata-Version: 1.1\nName: real\nVersion: 1.0\n")
	writeFile("INSTALLER", "pip")
	writeFile("RECORD", filepath.Join(infoDir, "METADATA")+",,44\n")

	if err := mgr.Remove("real"); !errors.Is(err, ErrNotAMock) {
		t.Fatalf("Remove() error = %v, want ErrNotAMock", err)
	}

	// Nothing was deleted.
	for _, file := range []string{"METADATA", "INSTALLER", "RECORD"} {
		if _, err := os.Stat(filepath.Join(infoDir, file)); err != nil {
			t.Errorf("%s was touched: %v", file, err)
		}
	}
}

func TestRemove_NeverDeletesSearchRoot(t *testing.T) {
	_, mgr, root := newTestManager(t)

	if err := mgr.Add("solo", "1.0", nil, true); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := mgr.Remove("solo"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("search root was deleted: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("root not empty after remove: %v", entries)
	}
}

func TestAdd_ModuleMaterialization(t *testing.T) {
	for _, persistent := range []bool{false, true} {
		name := "memory"
		if persistent {
			name = "persistent"
		}
		t.Run(name, func(t *testing.T) {
			rt, mgr, _ := newTestManager(t)

			modules := map[string]dist.ModuleSpec{
				"m.sub": dist.SourceModule("X = 42"),
			}
			if err := mgr.Add("m", "1.0", modules, persistent); err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			mod, err := rt.Import("m.sub")
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			x, ok := mod.RawGetString("X").(lua.LNumber)
			if !ok || float64(x) != 42 {
				t.Errorf("m.sub attribute X = %v, want 42", mod.RawGetString("X"))
			}
		})
	}
}

func TestAdd_DefaultModuleImportable(t *testing.T) {
	rt, mgr, _ := newTestManager(t)

	if err := mgr.Add("p", "1.0", nil, false); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	mod, err := rt.Import("p")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if mod.Len() != 0 {
		t.Errorf("default module is not empty, array part length %d", mod.Len())
	}
}

func TestAdd_InitRoutine(t *testing.T) {
	rt, mgr, _ := newTestManager(t)

	called := 0
	modules := map[string]dist.ModuleSpec{
		"stub": dist.InitModule(func(L *lua.LState, mod *lua.LTable) error {
			called++
			L.SetField(mod, "WOO", lua.LString("hello"))
			return nil
		}),
	}
	if err := mgr.Add("stub", "0.1", modules, false); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	mod, err := rt.Import("stub")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := lua.LVAsString(mod.RawGetString("WOO")); got != "hello" {
		t.Errorf("stub.WOO = %q, want %q", got, "hello")
	}

	// Imports are cached; the routine runs once.
	if _, err := rt.Import("stub"); err != nil {
		t.Fatal(err)
	}
	if called != 1 {
		t.Errorf("init routine ran %d times, want 1", called)
	}
}

func TestAdd_ImportVisibleImmediately(t *testing.T) {
	rt, mgr, _ := newTestManager(t)

	// Record a miss first, then add: cache invalidation inside Add must
	// make the fresh distribution visible without further ceremony.
	if _, err := rt.Import("just.added"); err == nil {
		t.Fatal("Import() before add: expected error")
	}
	modules := map[string]dist.ModuleSpec{
		"just.added": dist.SourceModule("OK = true"),
	}
	if err := mgr.Add("just", "1.0", modules, true); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	mod, err := rt.Import("just.added")
	if err != nil {
		t.Fatalf("Import() after add: %v", err)
	}
	if mod.RawGetString("OK") != lua.LTrue {
		t.Errorf("just.added.OK = %v, want true", mod.RawGetString("OK"))
	}
}

func TestMemoryShadowsPersistentOnImport(t *testing.T) {
	rt, mgr, _ := newTestManager(t)

	if err := mgr.Add("shade", "1.0", map[string]dist.ModuleSpec{
		"shade": dist.SourceModule("WHO = 'disk'"),
	}, true); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Add("shade", "2.0", map[string]dist.ModuleSpec{
		"shade": dist.SourceModule("WHO = 'memory'"),
	}, false); err != nil {
		t.Fatal(err)
	}

	mod, err := rt.Import("shade")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := lua.LVAsString(mod.RawGetString("WHO")); got != "memory" {
		t.Errorf("shade.WHO = %q, want the in-memory mock to shadow", got)
	}
}

func TestAdd_DedentsSource(t *testing.T) {
	rt, mgr, root := newTestManager(t)

	src := `
	    X = 1
	    Y = 2
	`
	if err := mgr.Add("indented", "1.0", map[string]dist.ModuleSpec{
		"indented": dist.SourceModule(src),
	}, true); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "indented", "init.lua"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "\t") || strings.Contains(string(data), "    X") {
		t.Errorf("stored source not dedented:\n%q", data)
	}

	mod, err := rt.Import("indented")
	if err != nil {
		t.Fatal(err)
	}
	if y := mod.RawGetString("Y"); float64(y.(lua.LNumber)) != 2 {
		t.Errorf("indented.Y = %v, want 2", y)
	}
}

func TestList_SurvivesProcessRestart(t *testing.T) {
	root := filepath.Join(t.TempDir(), "packages")
	rt := runtime.New()
	rt.AddDirectory(root)
	mgr := NewManager(rt, root)

	if err := mgr.Add("durable", "1.0", nil, true); err != nil {
		t.Fatal(err)
	}
	rt.Close()

	// A fresh runtime and manager over the same root sees the persisted
	// mock; the in-memory registry starts empty.
	rt2 := runtime.New()
	defer rt2.Close()
	rt2.AddDirectory(root)
	mgr2 := NewManager(rt2, root)

	names, err := mgr2.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !contains(names, "durable") {
		t.Errorf("List() = %v, want to contain durable", names)
	}
}
