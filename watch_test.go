package timewarrior

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// safeBuffer is a mutex-guarded io.Writer so a slog handler written to by
// the Watchdog's goroutine can be polled safely from the test goroutine.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchdog_detectsExternalWrite(t *testing.T) {
	dir := t.TempDir()

	var out safeBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	w := NewWatchdog(dir, logger, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give fsnotify time to install its watch before the write happens.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "2018-06.data")
	ensure(t, os.WriteFile(path, []byte("inc 20180602T010000Z\n"), 0o644))

	const want = "detected external change to store directory while open"
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
	t.Fatalf("** watchdog did not log %q within the deadline; got log output: %s", want, out.String())
}
