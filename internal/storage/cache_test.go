package storage

import (
	"path/filepath"
	"testing"
)

func TestCache_acquireSharesHandle(t *testing.T) {
	cache := NewCache()
	defer cache.CloseAll()
	path := filepath.Join(t.TempDir(), "p1.db")

	first, err := cache.Acquire("p1", path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Acquire("p1", path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second acquire returned a different handle")
	}
	if cache.Open() != 1 {
		t.Errorf("open count = %d, want 1", cache.Open())
	}
}

func TestCache_releaseClosesHandle(t *testing.T) {
	cache := NewCache()
	defer cache.CloseAll()
	path := filepath.Join(t.TempDir(), "p1.db")

	first, err := cache.Acquire("p1", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Release("p1"); err != nil {
		t.Fatal(err)
	}
	if cache.Open() != 0 {
		t.Errorf("open count after release = %d, want 0", cache.Open())
	}

	reopened, err := cache.Acquire("p1", path)
	if err != nil {
		t.Fatal(err)
	}
	if reopened == first {
		t.Error("acquire after release returned the closed handle")
	}
}

func TestCache_releaseUnknownProject(t *testing.T) {
	cache := NewCache()
	if err := cache.Release("never-opened"); err != nil {
		t.Errorf("release of unknown project = %v, want nil", err)
	}
}

func TestCache_closeAll(t *testing.T) {
	cache := NewCache()
	dir := t.TempDir()
	for _, id := range []string{"p1", "p2", "p3"} {
		if _, err := cache.Acquire(id, filepath.Join(dir, id+".db")); err != nil {
			t.Fatal(err)
		}
	}
	if err := cache.CloseAll(); err != nil {
		t.Fatal(err)
	}
	if cache.Open() != 0 {
		t.Errorf("open count after CloseAll = %d, want 0", cache.Open())
	}
}

func TestCache_acquireBadPath(t *testing.T) {
	cache := NewCache()
	defer cache.CloseAll()

	// A directory is not a usable database file.
	if _, err := cache.Acquire("bad", t.TempDir()); err == nil {
		t.Fatal("expected error opening a directory as a database")
	}
	if cache.Open() != 0 {
		t.Error("failed open must not be cached")
	}
}
