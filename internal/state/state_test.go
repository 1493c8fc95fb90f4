package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sokinpui/melt.go/internal/fs"
	"github.com/sokinpui/melt.go/model"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

// applied writes the updated side of a change set and records it.
func applied(t *testing.T, root string, m *Manager) (Entry, model.ChangeSet) {
	t.Helper()
	set := model.NewChangeSet(map[string]model.FileChange{
		"a.txt": {
			Original: model.FileSnapshot{Path: "a.txt", Contents: "old\n", Exists: true},
			Updated:  model.FileSnapshot{Path: "a.txt", Contents: "new\n", Exists: true},
		},
		"dir/b.txt": {
			Original: model.FileSnapshot{Path: "dir/b.txt"},
			Updated:  model.FileSnapshot{Path: "dir/b.txt", Contents: "created\n", Exists: true},
		},
	})
	writeFile(t, filepath.Join(root, "a.txt"), "new\n")
	writeFile(t, filepath.Join(root, "dir/b.txt"), "created\n")

	entry, err := m.Record(set, "msg", "")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	return entry, set
}

func TestUndoRedo(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	entry, _ := applied(t, root, m)
	if entry.ID == "" {
		t.Error("expected entry to have an ID")
	}

	if _, err := m.Undo(fs.OSWriter{}); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "a.txt")); got != "old\n" {
		t.Errorf("a.txt after undo = %q, want %q", got, "old\n")
	}
	if _, err := os.Stat(filepath.Join(root, "dir/b.txt")); !os.IsNotExist(err) {
		t.Errorf("dir/b.txt should be removed by undo, stat err = %v", err)
	}

	if _, err := m.Undo(fs.OSWriter{}); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}

	if _, err := m.Redo(fs.OSWriter{}); err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "a.txt")); got != "new\n" {
		t.Errorf("a.txt after redo = %q", got)
	}
	if got := readFile(t, filepath.Join(root, "dir/b.txt")); got != "created\n" {
		t.Errorf("dir/b.txt after redo = %q", got)
	}
	if _, err := m.Redo(fs.OSWriter{}); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("expected ErrNothingToRedo, got %v", err)
	}
}

func TestUndoRefusesOnDrift(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	applied(t, root, m)

	writeFile(t, filepath.Join(root, "a.txt"), "edited by hand\n")

	_, err = m.Undo(fs.OSWriter{})
	var drift *DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected *DriftError, got %v", err)
	}
	if len(drift.Paths) != 1 || drift.Paths[0] != "a.txt" {
		t.Errorf("drifted paths = %v, want [a.txt]", drift.Paths)
	}

	// Nothing may have been touched.
	if got := readFile(t, filepath.Join(root, "dir/b.txt")); got != "created\n" {
		t.Errorf("dir/b.txt changed despite drift: %q", got)
	}
	if _, idx := m.Entries(); idx != 0 {
		t.Errorf("current index = %d, want 0", idx)
	}
}

func TestHistoryPersistsAndTruncatesRedo(t *testing.T) {
	root := t.TempDir()
	m, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	applied(t, root, m)
	if _, err := m.Undo(fs.OSWriter{}); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}

	set := model.NewChangeSet(map[string]model.FileChange{
		"c.txt": {
			Original: model.FileSnapshot{Path: "c.txt"},
			Updated:  model.FileSnapshot{Path: "c.txt", Contents: "c\n", Exists: true},
		},
	})
	writeFile(t, filepath.Join(root, "c.txt"), "c\n")
	if _, err := m.Record(set, "", ""); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	reopened, err := New(root)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	entries, idx := reopened.Entries()
	if len(entries) != 1 || idx != 0 {
		t.Fatalf("got %d entries at index %d, want 1 at 0", len(entries), idx)
	}
	if paths := entries[0].Paths(); len(paths) != 1 || paths[0] != "c.txt" {
		t.Errorf("entry paths = %v, want [c.txt]", paths)
	}
	if _, err := reopened.Redo(fs.OSWriter{}); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("redo tail should be dropped, got %v", err)
	}
}

func TestEnsureDirIgnoresItself(t *testing.T) {
	root := t.TempDir()

	dir, err := EnsureDir(root)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if dir != filepath.Join(root, DirName) {
		t.Errorf("dir = %q", dir)
	}
	if got := readFile(t, filepath.Join(dir, ".gitignore")); got != "*\n" {
		t.Errorf(".gitignore = %q, want %q", got, "*\n")
	}

	// An existing ignore file is left alone.
	writeFile(t, filepath.Join(dir, ".gitignore"), "custom\n")
	if _, err := New(root); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := readFile(t, filepath.Join(dir, ".gitignore")); got != "custom\n" {
		t.Errorf(".gitignore was overwritten: %q", got)
	}
}
