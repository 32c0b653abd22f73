package timewarrior

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriter_writeThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.data")
	w := NewAtomicWriter(nil)
	ensure(t, w.WriteFile(path, []byte("hello\n")))

	data := must(t, w.ReadFile(path))
	eq(t, string(data), "hello\n")
}

func TestAtomicWriter_leavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.data")
	w := NewAtomicWriter(nil)
	ensure(t, w.WriteFile(path, []byte("one")))
	ensure(t, w.WriteFile(path, []byte("two")))

	entries := must(t, os.ReadDir(dir))
	eq(t, len(entries), 1)
	eq(t, entries[0].Name(), "file.data")
}

func TestAtomicWriter_keepBackupsCompressesPriorVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.data")
	w := NewAtomicWriter(nil)
	w.KeepBackups = true

	ensure(t, w.WriteFile(path, []byte("version one")))
	ensure(t, w.WriteFile(path, []byte("version two")))

	_, err := os.Stat(path + ".prev.gz")
	ensure(t, err)

	data := must(t, w.ReadFile(path))
	eq(t, string(data), "version two")
}

func TestAtomicWriter_quarantineMovesFileAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.data")
	w := NewAtomicWriter(nil)
	ensure(t, w.WriteFile(path, []byte("not json")))

	ensure(t, w.Quarantine(path))

	_, err := os.Stat(path)
	ok(t, os.IsNotExist(err), "original path should no longer exist after quarantine")

	entries := must(t, os.ReadDir(filepath.Join(dir, "corrupt")))
	eq(t, len(entries), 1)
}
