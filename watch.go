package timewarrior

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watchdog is an advisory, off-critical-path detector for external writers
// touching the store directory while this process has it open. §5
// documents concurrent external writers as undefined behavior at the
// data-file layer; Watchdog never mutates Store state, it only logs.
type Watchdog struct {
	dir      string
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatchdog builds a Watchdog rooted at a Store's directory. debounce
// coalesces bursts of events into a single log line; <= 0 defaults to
// 250ms.
func NewWatchdog(dir string, logger *slog.Logger, debounce time.Duration) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watchdog{dir: dir, logger: logger, debounce: debounce}
}

// Run watches the store directory until ctx is canceled, logging a
// warning each time it observes activity not caused by this process's own
// AtomicWriter (which always writes via temp-then-rename, so a Create
// event on the final filename is expected and benign; Write/Remove/Rename
// on an existing "*.data" file outside of that pattern is the signal this
// exists to catch). It is meant to be started in its own goroutine; the
// Store itself never calls it.
func (w *Watchdog) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &IOError{Path: w.dir, Cause: err}
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return &IOError{Path: w.dir, Cause: err}
	}

	var timer *time.Timer
	var pendingPath string

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".data") {
				// Temporary files of the AtomicWriter (and anything
				// else that isn't a "*.data" file) are not of interest.
				continue
			}
			pendingPath = ev.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("timewarrior: watchdog error", "dir", w.dir, "err", err)

		case <-timerC:
			w.logger.Warn("timewarrior: detected external change to store directory while open", "dir", w.dir, "path", pendingPath)
			timer = nil
		}
	}
}
