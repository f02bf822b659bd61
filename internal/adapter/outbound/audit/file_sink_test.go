package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/audit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeEvent(ts time.Time, reqID string) audit.Event {
	return audit.Event{
		Timestamp: ts,
		Kind:      audit.KindRequest,
		RequestID: reqID,
		SessionID: "sess-1",
		Backend:   "docs",
		Outcome:   audit.OutcomeAllow,
	}
}

func newTestSink(t *testing.T, cfg FileSinkConfig) *FileSink {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	s, err := NewFileSink(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewFileSink() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewFileSink_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "subdir", "audit")
	newTestSink(t, FileSinkConfig{Dir: dir})

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory, got file")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("directory permissions = %o, want 0700", perm)
	}
}

func TestFileSink_AppendWritesJSONLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestSink(t, FileSinkConfig{Dir: dir})

	ctx := context.Background()
	now := time.Now().UTC()
	for i, reqID := range []string{"req-1", "req-2", "req-3"} {
		s.Append(ctx, makeEvent(now.Add(time.Duration(i)*time.Millisecond), reqID))
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	waitForQueueDrain(t, s)

	data, err := os.ReadFile(filepath.Join(dir, "audit-"+now.Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	var ev audit.Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if ev.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", ev.RequestID)
	}
}

func TestFileSink_TailReturnsNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestSink(t, FileSinkConfig{})
	ctx := context.Background()
	now := time.Now().UTC()
	for i, reqID := range []string{"req-1", "req-2", "req-3"} {
		s.Append(ctx, makeEvent(now.Add(time.Duration(i)*time.Millisecond), reqID))
	}
	waitForQueueDrain(t, s)

	recent := s.Tail(2)
	if len(recent) != 2 {
		t.Fatalf("got %d events, want 2", len(recent))
	}
	if recent[0].RequestID != "req-3" || recent[1].RequestID != "req-2" {
		t.Errorf("Tail order = %q, %q, want req-3, req-2", recent[0].RequestID, recent[1].RequestID)
	}
}

func TestFileSink_SizeRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := newTestSink(t, FileSinkConfig{Dir: dir, MaxFileSizeMB: 1})
	// Force rotation by shrinking the threshold directly; MaxFileSizeMB
	// rounds to whole megabytes so the test sets the byte threshold after
	// construction instead of writing a megabyte of events.
	s.mu.Lock()
	s.maxFileSize = 16
	s.mu.Unlock()

	ctx := context.Background()
	now := time.Now().UTC()
	s.Append(ctx, makeEvent(now, "req-1"))
	waitForQueueDrain(t, s)
	s.Append(ctx, makeEvent(now, "req-2"))
	waitForQueueDrain(t, s)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected size rotation to produce a second file, got %d entries", len(entries))
	}
}

func TestFileSink_AppendNeverBlocksWhenQueueFull(t *testing.T) {
	t.Parallel()

	s := newTestSink(t, FileSinkConfig{QueueSize: 1})
	ctx := context.Background()
	now := time.Now().UTC()

	// Append five events in a row into a one-slot queue, so Append meets a
	// full queue whenever the writer has not yet drained it.
	for i := 0; i < 5; i++ {
		s.Append(ctx, makeEvent(now, "req"))
	}
	waitForQueueDrain(t, s)
	// No crash and no deadlock is the property under test; the exact
	// number retained depends on writer scheduling.
}

// waitForQueueDrain waits until the queue is empty AND the writer goroutine
// has finished processing the item it dequeued. Checking queue length alone
// races with writeOne: the channel receive and the write it triggers happen
// in the same writer-goroutine iteration, so a test goroutine can observe an
// empty queue an instant before writeOne actually runs.
func waitForQueueDrain(t *testing.T, s *FileSink) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(s.queue) == 0 {
			time.Sleep(5 * time.Millisecond)
			if len(s.queue) == 0 {
				s.mu.Lock()
				s.mu.Unlock()
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for audit queue to drain")
		}
		time.Sleep(time.Millisecond)
	}
}
