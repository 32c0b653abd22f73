// Package timewarrior implements a persistent, month-sharded store of
// half-open time intervals.
//
// Intervals live in per-month Datafiles ("YYYY-MM.data") under a single
// directory; a Segmented Store routes reads and writes across them and
// exposes a bidirectional cursor over the whole collection. A Tag Index
// caches tag reference counts alongside the store, rebuildable from the
// Datafiles at any time since they remain ground truth. An Undo Journal
// records every mutation as a reversible (before, after) pair grouped
// into transactions.
//
// Intended use cases:
//
//   - Local time-tracking tools that need crash-safe, human-inspectable
//     storage with cheap "most recent entry" and "this month" queries.
//   - Any append-mostly interval log where edits cluster near the
//     present and full scans of history are rare.
//
// Features:
//
//   - Single-threaded, cooperative, synchronous: every mutation is an
//     in-memory update plus a synchronous journal write, with no
//     internal scheduler and no suspension points.
//   - Crash-safe persistence throughout: every write goes through the
//     Atomic File Writer's temp-then-rename primitive.
//   - Self-healing: a corrupt Tag Index sidecar or undo journal is
//     quarantined and rebuilt or dropped rather than blocking startup.
package timewarrior
