package timewarrior

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Datafile is the in-memory mirror of one month's serialized interval
// lines. It is loaded from disk at most once (on first access) and kept in
// memory thereafter; commit() flushes it back out only if dirty.
type Datafile struct {
	dir     string
	name    string
	month   Range
	writer  *AtomicWriter
	logger  *slog.Logger
	metrics *StoreMetrics

	loaded bool
	lines  []string
	dirty  bool
}

func newDatafile(dir, name string, month Range, writer *AtomicWriter, logger *slog.Logger) *Datafile {
	return &Datafile{dir: dir, name: name, month: month, writer: writer, logger: logger}
}

// Name returns the file's base name, e.g. "2018-06.data".
func (d *Datafile) Name() string { return d.name }

// RangeOf returns the Datafile's month range.
func (d *Datafile) RangeOf() Range { return d.month }

func (d *Datafile) path() string { return filepath.Join(d.dir, d.name) }

// ensureLoaded reads the file from disk on first access. A missing file is
// treated as an empty Datafile (it will be created on first commit).
func (d *Datafile) ensureLoaded() error {
	if d.loaded {
		return nil
	}
	d.loaded = true

	f, err := os.Open(d.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &InvalidFileError{Path: d.path(), Reason: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return &InvalidFileError{Path: d.path(), Reason: err}
	}
	sort.SliceStable(lines, func(i, j int) bool { return compareLines(lines[i], lines[j]) < 0 })
	d.lines = lines
	if d.logger != nil {
		d.logger.Debug("timewarrior: loaded data file", "file", d.name, "lines", len(d.lines))
	}
	if d.metrics != nil {
		d.metrics.DatafileLoad.Inc()
	}
	return nil
}

// allLines returns the ordered sequence of serialized interval lines,
// loading the file from disk on first call.
func (d *Datafile) allLines() ([]string, error) {
	if err := d.ensureLoaded(); err != nil {
		return nil, err
	}
	return d.lines, nil
}

// addInterval inserts iv's serialized line at its correct sorted position.
// The caller has already resolved that iv.Start lies within d.RangeOf().
// Returns true iff the file's contents changed (the line was not already
// present).
func (d *Datafile) addInterval(iv Interval) (bool, error) {
	if err := d.ensureLoaded(); err != nil {
		return false, err
	}
	if !iv.End.IsZero() && iv.End.Before(iv.Start) {
		return false, &InvariantViolationError{Description: fmt.Sprintf("addInterval: end %s before start %s", iv.End, iv.Start)}
	}

	line := FormatLine(iv)
	i := sort.Search(len(d.lines), func(i int) bool { return compareLines(d.lines[i], line) >= 0 })
	if i < len(d.lines) && d.lines[i] == line {
		return false, nil
	}
	d.lines = append(d.lines, "")
	copy(d.lines[i+1:], d.lines[i:])
	d.lines[i] = line
	d.dirty = true
	return true, nil
}

// deleteInterval removes the matching serialized line. Absence is
// tolerated and reported via the boolean return, not an error.
func (d *Datafile) deleteInterval(iv Interval) (bool, error) {
	if err := d.ensureLoaded(); err != nil {
		return false, err
	}
	line := FormatLine(iv)
	i := sort.Search(len(d.lines), func(i int) bool { return compareLines(d.lines[i], line) >= 0 })
	if i >= len(d.lines) || d.lines[i] != line {
		return false, nil
	}
	d.lines = append(d.lines[:i], d.lines[i+1:]...)
	d.dirty = true
	return true, nil
}

// isDirty reports whether the in-memory contents differ from disk.
func (d *Datafile) isDirty() bool { return d.dirty }

// commit writes the full line list atomically and clears the dirty flag,
// if and only if the file is dirty.
func (d *Datafile) commit() error {
	if !d.dirty {
		return nil
	}
	var buf bytes.Buffer
	for _, line := range d.lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := d.writer.WriteFile(d.path(), buf.Bytes()); err != nil {
		return err
	}
	d.dirty = false
	return nil
}

// dump renders a diagnostic string: a header line with the file name, line
// count and dirty flag, followed by its lines.
func (d *Datafile) dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s (%d lines, dirty=%v)\n", d.name, len(d.lines), d.dirty)
	for _, line := range d.lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}
