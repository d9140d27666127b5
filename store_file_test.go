package loadcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreBasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t.TempDir(), time.Minute)
	if store.Driver() != DriverFile {
		t.Fatalf("unexpected driver: %s", store.Driver())
	}

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss: ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(body) != "v" {
		t.Fatalf("unexpected get result: ok=%v err=%v body=%s", ok, err, string(body))
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected deleted key to be gone")
	}
	// deleting a missing key is a no-op
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}

	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Set(ctx, "b", []byte("2"), 0)
	if err := store.DeleteMany(ctx, "a", "b"); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}

	_ = store.Set(ctx, "flushme", []byte("x"), 0)
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "flushme"); ok {
		t.Fatalf("expected flushed key to be gone")
	}
}

func TestFileStoreLazyExpiry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newFileStore(dir, time.Minute)

	if err := store.Set(ctx, "short", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok, err := store.Get(ctx, "short"); err != nil || ok {
		t.Fatalf("expected lazy-expired miss: ok=%v err=%v", ok, err)
	}
	// the expired record file was removed by the read
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected expired record to be removed, found %d files", len(entries))
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newFileStore(dir, time.Minute).(*fileStore)

	if err := os.WriteFile(store.path("bad"), []byte("not a record"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	_, ok, err := store.Get(ctx, "bad")
	if !errors.Is(err, errCorruptFileRecord) {
		t.Fatalf("expected corrupt record error, got ok=%v err=%v", ok, err)
	}
	// corrupt records are removed so the next read is a clean miss
	if _, ok, err := store.Get(ctx, "bad"); err != nil || ok {
		t.Fatalf("expected clean miss after corrupt record removal: ok=%v err=%v", ok, err)
	}
}

func TestFileStoreWriteFailuresCleanUpTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newFileStore(dir, time.Minute)

	origRename := renameFile
	renameFile = func(oldpath, newpath string) error { return errors.New("rename failed") }
	defer func() { renameFile = origRename }()

	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected rename failure to propagate")
	}
}

func TestFileStoreCreateTempError(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t.TempDir(), time.Minute)

	origCreate := createTempFile
	createTempFile = func(dir, pattern string) (*os.File, error) { return nil, errors.New("no temp") }
	defer func() { createTempFile = origCreate }()

	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected temp file failure to propagate")
	}
}

func TestFileStorePathIsStable(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(dir, time.Minute).(*fileStore)
	p1 := store.path("user/42")
	p2 := store.path("user/42")
	if p1 != p2 {
		t.Fatalf("expected stable paths, got %s and %s", p1, p2)
	}
	if filepath.Dir(p1) != dir {
		t.Fatalf("expected record inside store dir, got %s", p1)
	}
	if filepath.Ext(p1) != ".cache" {
		t.Fatalf("expected .cache extension, got %s", p1)
	}
}
