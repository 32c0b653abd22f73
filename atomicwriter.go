package timewarrior

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/klauspost/compress/gzip"
)

// AtomicWriter is the process-wide write-temp-then-rename primitive shared
// by the Datafile, Tag Index, and Undo Journal. A failure before rename
// leaves the target untouched; the temporary file is removed.
type AtomicWriter struct {
	Logger *slog.Logger

	// KeepBackups, when true, preserves a gzip-compressed copy of the
	// file's previous contents (name + ".prev.gz") across every
	// overwrite, for forensic recovery. It never touches the documented
	// plain-text primary file.
	KeepBackups bool
}

func NewAtomicWriter(logger *slog.Logger) *AtomicWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AtomicWriter{Logger: logger}
}

// WriteFile writes data to path by creating a sibling temporary file,
// flushing it, and renaming it into place. On success, if KeepBackups is
// set, the previous contents of path (if any) are preserved compressed
// alongside it before being overwritten.
func (w *AtomicWriter) WriteFile(path string, data []byte) error {
	if w.KeepBackups {
		if err := w.backupBeforeOverwrite(path); err != nil {
			w.logger().Warn("atomic writer: backup failed, continuing without one", "path", path, "err", err)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Path: path, Cause: err}
	}

	var ok bool
	defer closeAndDeleteUnlessOK(tmp, &ok)

	if _, err := tmp.Write(data); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		return &IOError{Path: path, Cause: err}
	}
	ok = true

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &IOError{Path: path, Cause: err}
	}
	return nil
}

// backupBeforeOverwrite gzip-compresses the current contents of path (if
// it exists) into path+".prev.gz", overwriting any earlier backup.
func (w *AtomicWriter) backupBeforeOverwrite(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var buf strings.Builder
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	// The backup itself is written without a backup of its own.
	plain := *w
	plain.KeepBackups = false
	return plain.WriteFile(path+".prev.gz", []byte(buf.String()))
}

// ReadFile reads the full contents of path through a buffered reader.
func (w *AtomicWriter) ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	data, err := io.ReadAll(br)
	if err != nil {
		return nil, &IOError{Path: path, Cause: err}
	}
	return data, nil
}

// Quarantine moves a corrupted file aside into a "corrupt/" sibling
// directory rather than deleting it, so a future operator can inspect
// what went wrong. Absence of the source file is not an error.
func (w *AtomicWriter) Quarantine(path string) error {
	if path == "" {
		return fmt.Errorf("timewarrior: empty path")
	}
	trashDir := filepath.Join(filepath.Dir(path), "corrupt")
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return err
	}
	dst, err := uniqueTrashPath(filepath.Join(trashDir, filepath.Base(path)))
	if err != nil {
		return err
	}
	if err := os.Rename(path, dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			if err := copyFile(path, dst); err != nil {
				return err
			}
			return os.Remove(path)
		}
		return err
	}
	w.logger().Warn("timewarrior: quarantined corrupted file", "path", path, "dest", dst)
	return nil
}

func (w *AtomicWriter) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func uniqueTrashPath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return nextTrashPath(path)
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return path, nil
}

func nextTrashPath(path string) (string, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		if _, err := os.Stat(candidate); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", err
		}
		return candidate, nil
	}
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
