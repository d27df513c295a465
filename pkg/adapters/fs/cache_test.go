package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/strata/pkg/core"
)

func TestCache_Load(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		c := newCache(t.TempDir(), ".strata")
		found, err := c.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if found {
			t.Error("expected no index")
		}
		if c.Len() != 0 {
			t.Errorf("expected empty entries, got %d", c.Len())
		}
	})

	t.Run("valid index", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, ".strata"), 0o755); err != nil {
			t.Fatal(err)
		}
		content := `{
			"version": 1,
			"next_item": 3,
			"next_location": 4,
			"locations": {"1": {"id": 1, "path": "/"}, "3": {"id": 3, "item_id": 2, "parent_id": 1, "path": "/news"}},
			"entries": {"2": {"file": "content/2.yaml", "version": 1}}
		}`
		if err := os.WriteFile(filepath.Join(dir, ".strata", "index.json"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		c := newCache(dir, ".strata")
		found, err := c.Load()
		if err != nil || !found {
			t.Fatalf("Load: found=%v err=%v", found, err)
		}
		tree := c.Tree()
		if tree.NextItem != 3 || tree.NextLocation != 4 {
			t.Errorf("unexpected counters %d/%d", tree.NextItem, tree.NextLocation)
		}
		if tree.Locations[3].Path != "/news" {
			t.Errorf("unexpected location %+v", tree.Locations[3])
		}
		if c.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", c.Len())
		}
	})

	t.Run("corrupt index", func(t *testing.T) {
		dir := t.TempDir()
		_ = os.MkdirAll(filepath.Join(dir, ".strata"), 0o755)
		_ = os.WriteFile(filepath.Join(dir, ".strata", "index.json"), []byte("{bad"), 0o644)

		_, err := newCache(dir, ".strata").Load()
		if !errors.Is(err, core.ErrRepository) {
			t.Fatalf("expected a repository error, got %v", err)
		}
	})

	t.Run("unknown version", func(t *testing.T) {
		dir := t.TempDir()
		_ = os.MkdirAll(filepath.Join(dir, ".strata"), 0o755)
		_ = os.WriteFile(filepath.Join(dir, ".strata", "index.json"), []byte(`{"version": 9}`), 0o644)

		if _, err := newCache(dir, ".strata").Load(); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestCache_SaveOnlyWhenDirty(t *testing.T) {
	dir := t.TempDir()
	c := newCache(dir, ".strata")

	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.Path); !os.IsNotExist(err) {
		t.Fatal("clean cache must not be written")
	}

	c.SetTree(2, 3, 1, map[int64]*core.Location{1: {ID: 1, Path: "/"}}, nil)
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(c.Path); err != nil {
		t.Fatalf("index not written: %v", err)
	}

	reloaded := newCache(dir, ".strata")
	if _, err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.Tree().NextLocation != 3 {
		t.Errorf("expected next location 3, got %d", reloaded.Tree().NextLocation)
	}
}

func TestCache_ChangeTracking(t *testing.T) {
	c := newCache(t.TempDir(), ".strata")

	if !c.Changed(1, []byte("a")) {
		t.Error("unknown item must count as changed")
	}
	if moved := c.Set(1, "content/1.yaml", 1, []byte("a")); moved != "" {
		t.Errorf("unexpected move from %q", moved)
	}
	if c.Changed(1, []byte("a")) {
		t.Error("identical bytes must not count as changed")
	}
	if !c.Changed(1, []byte("b")) {
		t.Error("different bytes must count as changed")
	}

	c.Remember(2, "content/old/2.json", 1, []byte("{}"))
	if moved := c.Set(2, "content/2.yaml", 2, []byte("id: 2")); moved != "content/old/2.json" {
		t.Errorf("expected move from the old file, got %q", moved)
	}

	removed := c.Prune(func(id int64) bool { return id == 2 })
	if len(removed) != 1 || removed[0] != "content/1.yaml" {
		t.Errorf("unexpected pruned files %v", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}
