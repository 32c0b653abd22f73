package timewarrior

import (
	"errors"
	"log/slog"
	"os"
	"sort"

	gojson "github.com/goccy/go-json"
)

// TagIndex is a cached mapping from tag name to reference count: the
// number of intervals across the Store that contain that tag. It is
// rebuildable from scratch by iterating the Segmented Store, which is
// ground truth; the index itself is only a cache (§4.3).
type TagIndex struct {
	path   string
	writer *AtomicWriter
	logger *slog.Logger

	counts map[string]uint64
	extra  map[string]map[string]gojson.RawMessage // unknown keys per tag, preserved on round-trip
	dirty  bool
}

// openTagIndex loads path, rebuilding from store if it is missing or fails
// to parse (§4.3's initialization procedure).
func openTagIndex(store *Store, path string) (*TagIndex, error) {
	ti := &TagIndex{
		path:   path,
		writer: store.writer,
		logger: store.logger,
		counts: make(map[string]uint64),
		extra:  make(map[string]map[string]gojson.RawMessage),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		ti.logger.Warn("timewarrior: tag index missing, rebuilding from store", "path", path)
		return ti, ti.rebuild(store)
	}
	if err != nil {
		ti.logger.Warn("timewarrior: tag index unreadable, rebuilding from store", "path", path, "err", err)
		return ti, ti.rebuild(store)
	}

	if err := ti.parse(data); err != nil {
		ti.logger.Warn("timewarrior: tag index corrupt, rebuilding from store", "path", path, "err", err)
		if qerr := ti.writer.Quarantine(path); qerr != nil {
			ti.logger.Warn("timewarrior: failed to quarantine corrupt tag index", "path", path, "err", qerr)
		}
		ti.counts = make(map[string]uint64)
		ti.extra = make(map[string]map[string]gojson.RawMessage)
		return ti, ti.rebuild(store)
	}

	ti.dirty = false
	return ti, nil
}

func (ti *TagIndex) parse(data []byte) error {
	var raw map[string]map[string]gojson.RawMessage
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return err
	}
	counts := make(map[string]uint64, len(raw))
	extra := make(map[string]map[string]gojson.RawMessage, len(raw))
	for tag, fields := range raw {
		countRaw, ok := fields["count"]
		if !ok {
			return &InvalidFileError{Path: "tags.data", Reason: missingCountError(tag)}
		}
		var count uint64
		if err := gojson.Unmarshal(countRaw, &count); err != nil {
			return err
		}
		counts[tag] = count
		rest := make(map[string]gojson.RawMessage, len(fields))
		for k, v := range fields {
			if k == "count" {
				continue
			}
			rest[k] = v
		}
		extra[tag] = rest
	}
	ti.counts = counts
	ti.extra = extra
	return nil
}

type missingCountError string

func (e missingCountError) Error() string { return "tag " + string(e) + " is missing its count field" }

// rebuild is authoritative: it iterates the Segmented Store (ground truth)
// and increments once per tag occurrence, then writes the fresh sidecar.
func (ti *TagIndex) rebuild(store *Store) error {
	ti.counts = make(map[string]uint64)
	it := store.RBegin()
	defer it.Close()
	for it.Next() {
		iv, err := it.Interval()
		if err != nil {
			return &InvalidFileError{Path: ti.path, Reason: err}
		}
		for _, tag := range iv.Tags {
			ti.counts[tag]++
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	ti.dirty = true
	return ti.save()
}

// add ensures tag is present in the index without altering its count
// (used to record a tag's historical existence without a corresponding
// increment/decrement, e.g. from an external rename flow).
func (ti *TagIndex) add(tag string) {
	if _, ok := ti.counts[tag]; ok {
		return
	}
	ti.counts[tag] = 0
	ti.dirty = true
}

// incrementTag increments tag's count and returns the count it had before
// the increment; -1 indicates the tag was previously absent.
func (ti *TagIndex) incrementTag(tag string) int64 {
	prev, ok := ti.counts[tag]
	ti.counts[tag] = prev + 1
	ti.dirty = true
	if !ok {
		return -1
	}
	return int64(prev)
}

// decrementTag decrements tag's count, clamped at zero. Tags with count
// zero are retained (they record historical presence); removal is
// explicit and not performed here.
func (ti *TagIndex) decrementTag(tag string) {
	prev, ok := ti.counts[tag]
	if !ok || prev == 0 {
		if !ok {
			ti.counts[tag] = 0
		}
		ti.dirty = true
		return
	}
	ti.counts[tag] = prev - 1
	ti.dirty = true
}

// tags returns a snapshot of the index's keys.
func (ti *TagIndex) tags() []string {
	out := make([]string, 0, len(ti.counts))
	for tag := range ti.counts {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// count returns tag's current reference count.
func (ti *TagIndex) count(tag string) uint64 { return ti.counts[tag] }

func (ti *TagIndex) isModified() bool { return ti.dirty }
func (ti *TagIndex) clearModified()   { ti.dirty = false }

// toJson renders the index in its persisted form: an object keyed by tag,
// value {"count": N, ...preserved unknown fields}.
func (ti *TagIndex) toJson() ([]byte, error) {
	out := make(map[string]map[string]gojson.RawMessage, len(ti.counts))
	for tag, count := range ti.counts {
		countRaw, err := gojson.Marshal(count)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]gojson.RawMessage, len(ti.extra[tag])+1)
		for k, v := range ti.extra[tag] {
			fields[k] = v
		}
		fields["count"] = countRaw
		out[tag] = fields
	}
	return gojson.MarshalIndent(out, "", "  ")
}

func (ti *TagIndex) save() error {
	data, err := ti.toJson()
	if err != nil {
		return err
	}
	if err := ti.writer.WriteFile(ti.path, data); err != nil {
		return err
	}
	ti.dirty = false
	return nil
}
