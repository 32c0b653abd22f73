package timewarrior

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Options configures a Store. It mirrors the teacher package's flat
// Options-struct convention: zero values are filled in with sensible
// defaults by Open.
type Options struct {
	// Now returns the current instant; overridable for deterministic
	// tests. Defaults to time.Now.
	Now func() time.Time

	// Logger receives structured diagnostics (tag-index rebuild notices,
	// corrupt-file quarantines, datafile loads). Defaults to slog.Default().
	Logger *slog.Logger

	// Verbose controls whether addInterval logs a notice for newly
	// introduced tags, per the "new tag" notice described in §6.
	Verbose bool

	// JournalSize bounds the undo journal: 0 means unbounded, a negative
	// value disables undo persistence entirely, per §4.4.
	JournalSize int

	// Metrics, if non-nil, receives counters/gauges for store activity.
	// Registration is the caller's responsibility (see metrics.go).
	Metrics *StoreMetrics

	// KeepBackups enables compressed prior-version backups on every
	// overwrite (see AtomicWriter.KeepBackups).
	KeepBackups bool
}

// Store is the Segmented Store: an ordered collection of Datafiles keyed
// by month, routing mutations and exposing bidirectional iteration in
// chronological and reverse-chronological order.
type Store struct {
	dir     string
	now     func() time.Time
	logger  *slog.Logger
	verbose bool
	writer  *AtomicWriter
	metrics *StoreMetrics

	files []*Datafile // sorted ascending by month

	tags    *TagIndex
	Journal *UndoJournal
}

// Open constructs a Store rooted at location, discovering existing
// Datafiles, initializing the Tag Index (rebuilding it from scratch if its
// sidecar is missing or corrupt), and the undo journal.
func Open(location string, opts Options) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, &IOError{Path: location, Cause: err}
	}

	writer := NewAtomicWriter(opts.Logger)
	writer.KeepBackups = opts.KeepBackups

	s := &Store{
		dir:     location,
		now:     opts.Now,
		logger:  opts.Logger,
		verbose: opts.Verbose,
		writer:  writer,
		metrics: opts.Metrics,
	}

	if err := s.discoverDatafiles(); err != nil {
		return nil, err
	}

	tags, err := openTagIndex(s, filepath.Join(location, "tags.data"))
	if err != nil {
		return nil, err
	}
	s.tags = tags

	journal, err := openUndoJournal(filepath.Join(location, "undo.data"), opts.JournalSize, writer, opts.Logger)
	if err != nil {
		return nil, err
	}
	s.Journal = journal

	return s, nil
}

// discoverDatafiles scans the store directory for "YYYY-MM.data" files,
// ignoring anything that doesn't match (§4.1).
func (s *Store) discoverDatafiles() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &IOError{Path: s.dir, Cause: err}
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		month, err := parseMonthName(ent.Name())
		if err != nil {
			continue
		}
		s.files = append(s.files, s.newDatafile(ent.Name(), monthRange(month)))
	}
	sort.Slice(s.files, func(i, j int) bool { return s.files[i].RangeOf().Start.Before(s.files[j].RangeOf().Start) })
	return nil
}

// findDatafile resolves the Datafile covering instant t, scanning from
// newest to oldest (§4.2's "recent-access heuristic"). If create is true
// and no Datafile covers t, a new one is created and inserted in sorted
// order; otherwise the insertion point is returned without creating
// anything.
func (s *Store) findDatafile(t time.Time, create bool) (*Datafile, int) {
	for i := len(s.files) - 1; i >= 0; i-- {
		r := s.files[i].RangeOf()
		if (Range{Start: t}).startsWithin(r) {
			return s.files[i], i
		}
		if !r.Start.After(t) {
			// s.files[i] starts at or before t but doesn't cover it (t is
			// past its end): insertion point is immediately after it.
			if !create {
				return nil, i + 1
			}
			df := s.newDatafile(monthName(t), monthRange(t))
			s.files = append(s.files, nil)
			copy(s.files[i+2:], s.files[i+1:])
			s.files[i+1] = df
			return df, i + 1
		}
	}
	if !create {
		return nil, 0
	}
	df := s.newDatafile(monthName(t), monthRange(t))
	s.files = append(s.files, nil)
	copy(s.files[1:], s.files[0:])
	s.files[0] = df
	return df, 0
}

func (s *Store) newDatafile(name string, month Range) *Datafile {
	df := newDatafile(s.dir, name, month, s.writer, s.logger)
	df.metrics = s.metrics
	return df
}

// TagChange records whether a tag was newly introduced by an AddInterval
// call, per the redesigned structured return (§9: "addInterval should
// return a structured result").
type TagChange struct {
	Tag    string
	WasNew bool
}

// AddResult is the structured outcome of AddInterval, replacing the
// original's stdout "new tag" side effect.
type AddResult struct {
	Changed    bool
	TagChanges []TagChange
}

// AddInterval routes iv to the Datafile covering iv.Start (creating one if
// necessary), increments tag counts, and appends an undo record iff the
// Datafile reported a change. When verbose or Options.Verbose is set,
// newly introduced tags are logged at Info level instead of printed to
// stdout.
func (s *Store) AddInterval(iv Interval, verbose bool) (AddResult, error) {
	result, err := s.addIntervalNoJournal(iv, verbose || s.verbose)
	if err != nil || !result.Changed {
		return result, err
	}
	if err := s.Journal.recordIntervalAction("", FormatLine(iv)); err != nil {
		return result, err
	}
	return result, nil
}

// addIntervalNoJournal performs the Datafile write and tag-count update
// without touching the undo journal, so Undo can reapply a reversed
// action without re-recording it.
func (s *Store) addIntervalNoJournal(iv Interval, verbose bool) (AddResult, error) {
	df, _ := s.findDatafile(iv.Start, true)
	changed, err := df.addInterval(iv)
	if err != nil {
		return AddResult{}, err
	}

	var result AddResult
	result.Changed = changed
	if changed {
		for _, tag := range iv.Tags {
			prev := s.tags.incrementTag(tag)
			wasNew := prev < 0
			result.TagChanges = append(result.TagChanges, TagChange{Tag: tag, WasNew: wasNew})
			if wasNew && verbose {
				s.logger.Info("timewarrior: new tag", "tag", tag)
			}
		}
		s.bump(func(m *StoreMetrics) { m.Additions.Inc() })
	}
	return result, nil
}

// DeleteInterval routes iv to the Datafile that should contain it,
// decrements tag counts, and appends an undo record. It fails with
// NotFoundError when the resolved Datafile does not actually cover
// iv.Start — per the §9 open question, this implementation validates
// presence of the covering Datafile *before* touching tag counts, so a
// failed delete never leaves counts drifted (see DESIGN.md).
func (s *Store) DeleteInterval(iv Interval) error {
	if err := s.deleteIntervalNoJournal(iv); err != nil {
		return err
	}
	return s.Journal.recordIntervalAction(FormatLine(iv), "")
}

func (s *Store) deleteIntervalNoJournal(iv Interval) error {
	df, _ := s.findDatafile(iv.Start, false)
	if df == nil {
		return &NotFoundError{Interval: iv}
	}

	removed, err := df.deleteInterval(iv)
	if err != nil {
		return err
	}
	if !removed {
		return &NotFoundError{Interval: iv}
	}

	for _, tag := range iv.Tags {
		s.tags.decrementTag(tag)
	}
	s.bump(func(m *StoreMetrics) { m.Deletions.Inc() })
	return nil
}

// ModifyInterval is semantically delete(from); add(to). An empty from
// (zero Start) means pure add; an empty to means pure delete. Both
// sub-operations share the caller's open transaction, if any (§4.2).
func (s *Store) ModifyInterval(from, to Interval, verbose bool) error {
	if !from.Start.IsZero() {
		if err := s.DeleteInterval(from); err != nil {
			return err
		}
	}
	if !to.Start.IsZero() {
		if _, err := s.AddInterval(to, verbose); err != nil {
			return err
		}
	}
	return nil
}

// StartTransaction and EndTransaction bracket a group of mutations so
// Undo reverts them as one unit. An explicit transaction is required for
// multi-record mutations (e.g. ModifyInterval's delete+add pair) to be
// undone together.
func (s *Store) StartTransaction() error { return s.Journal.startTransaction() }
func (s *Store) EndTransaction() error   { return s.Journal.endTransaction() }

// Undo pops the newest undo transaction and reapplies its records
// inverted (swap before/after), routing each back through the Datafile
// and Tag Index layers without re-recording the reversal itself.
func (s *Store) Undo() error {
	records, err := s.Journal.undo()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := s.applyUndoRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyUndoRecord(rec Record) error {
	if rec.Kind != IntervalAction {
		return &InvariantViolationError{Description: "undo of non-interval record kinds is not supported"}
	}
	switch {
	case rec.Before == "" && rec.After != "":
		// Original action was an add; undo removes it.
		iv, err := ParseLine(rec.After)
		if err != nil {
			return &InvalidFileError{Path: "undo.data", Reason: err}
		}
		return s.deleteIntervalNoJournal(iv)
	case rec.Before != "" && rec.After == "":
		// Original action was a delete; undo re-adds it.
		iv, err := ParseLine(rec.Before)
		if err != nil {
			return &InvalidFileError{Path: "undo.data", Reason: err}
		}
		_, err = s.addIntervalNoJournal(iv, false)
		return err
	default:
		return nil
	}
}

// Commit flushes every dirty Datafile, then the Tag Index iff dirty. The
// undo journal is flushed synchronously on every mutation, so Commit does
// not touch it.
func (s *Store) Commit() error {
	for _, df := range s.files {
		if err := df.commit(); err != nil {
			return err
		}
	}
	if s.tags.isModified() {
		if err := s.tags.save(); err != nil {
			return err
		}
	}
	if s.metrics != nil {
		s.metrics.TagsTracked.Set(float64(len(s.tags.tags())))
	}
	return nil
}

// Files returns a snapshot of the current Datafile names, for diagnostics.
func (s *Store) Files() []string {
	names := make([]string, len(s.files))
	for i, df := range s.files {
		names[i] = df.Name()
	}
	return names
}

// Tags returns a sorted snapshot of every tag name known to the Store,
// including tags whose count has been decremented to zero but not
// removed (§4.3's "historical presence" retention; §6's tags() query,
// the store-level surface §4.3 documents for external callers).
func (s *Store) Tags() []string { return s.tags.tags() }

// GetLatestEntry returns the first non-empty line found by forward
// (reverse-chronological) iteration, i.e. the most recently started
// interval's serialized line. It returns "" if the store is empty.
func (s *Store) GetLatestEntry() (string, error) {
	it := s.Begin()
	defer it.Close()
	if it.Next() {
		return it.Line(), it.Err()
	}
	return "", it.Err()
}

// Empty reports whether forward iteration yields no lines.
func (s *Store) Empty() (bool, error) {
	it := s.Begin()
	defer it.Close()
	has := it.Next()
	return !has, it.Err()
}

// SegmentRange splits an arbitrary range into one Range per calendar month
// it touches, clamped to month boundaries. An open end is materialized as
// the Store's current instant.
func (s *Store) SegmentRange(r Range) []Range {
	end := r.End
	if end.IsZero() {
		end = s.now()
	}
	if !r.Start.Before(end) {
		return nil
	}

	var segments []Range
	cur := time.Date(r.Start.Year(), r.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for cur.Before(end) {
		next := cur.AddDate(0, 1, 0)
		segStart, segEnd := cur, next
		if segStart.Before(r.Start) {
			segStart = r.Start
		}
		if segEnd.After(end) {
			segEnd = end
		}
		segments = append(segments, Range{Start: segStart, End: segEnd})
		cur = next
	}
	return segments
}

func (s *Store) bump(f func(*StoreMetrics)) {
	if s.metrics != nil {
		f(s.metrics)
	}
}

// RenameTag replaces oldTag with newTag on every interval currently
// carrying it, as a single undo transaction, and returns how many
// intervals were rewritten. If no interval carries oldTag, newTag is
// still registered in the Tag Index with a zero count (via TagIndex.add),
// letting an external rename command pre-declare a tag before committing
// anything tagged with it.
func (s *Store) RenameTag(oldTag, newTag string) (int, error) {
	if oldTag == newTag {
		return 0, nil
	}

	var matches []Interval
	it := s.Begin()
	for it.Next() {
		iv, err := it.Interval()
		if err != nil {
			it.Close()
			return 0, err
		}
		if iv.HasTag(oldTag) {
			matches = append(matches, iv)
		}
	}
	it.Close()
	if err := it.Err(); err != nil {
		return 0, err
	}

	if len(matches) == 0 {
		s.tags.add(newTag)
		return 0, nil
	}

	if err := s.StartTransaction(); err != nil {
		return 0, err
	}
	for _, from := range matches {
		to := from
		to.Tags = replaceTag(from.Tags, oldTag, newTag)
		if err := s.ModifyInterval(from, to, false); err != nil {
			return 0, err
		}
	}
	if err := s.EndTransaction(); err != nil {
		return 0, err
	}
	return len(matches), nil
}

func replaceTag(tags []string, oldTag, newTag string) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		if tag == oldTag {
			tag = newTag
		}
		out[i] = tag
	}
	return out
}
