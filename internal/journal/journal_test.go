package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

// drain closes the journal so every enqueued event is flushed, then reopens
// the same database for reading. Record is asynchronous; this is the
// deterministic way to observe what it wrote.
func drain(t *testing.T, j *Journal, path string) *Journal {
	t.Helper()
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen %s: %v", path, err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	return reopened
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("", testLogger()); !errors.Is(err, ErrNoPath) {
		t.Fatalf("Open(\"\") error = %v, want ErrNoPath", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	j, path := openTestJournal(t)

	j.Record("register", "alice", "10.0.0.1:5000")
	j.Record("status", "alice", "OCUPADO")
	j.Record("disconnect", "alice", "client request")

	j = drain(t, j, path)

	events, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Recent returned %d events, want 3", len(events))
	}

	// Newest first.
	wantKinds := []string{"disconnect", "status", "register"}
	for i, ev := range events {
		if ev.Kind != wantKinds[i] {
			t.Errorf("events[%d].Kind = %q, want %q", i, ev.Kind, wantKinds[i])
		}
		if ev.User != "alice" {
			t.Errorf("events[%d].User = %q, want alice", i, ev.User)
		}
		if ev.At.IsZero() {
			t.Errorf("events[%d].At is zero", i)
		}
	}
	if events[0].Detail != "client request" {
		t.Errorf("events[0].Detail = %q, want %q", events[0].Detail, "client request")
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	j, path := openTestJournal(t)

	for i := 0; i < 5; i++ {
		j.Record("status", "bob", "ACTIVO")
	}
	j = drain(t, j, path)

	events, err := j.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Recent(2) returned %d events", len(events))
	}
	if events[0].ID <= events[1].ID {
		t.Fatalf("events not newest first: ids %d, %d", events[0].ID, events[1].ID)
	}
}

func TestSchemaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	first, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	first.Record("register", "alice", "")
	if err := first.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	second, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	events, err := second.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent after reopen: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("reopen lost events: got %d, want 1", len(events))
	}
}

func TestRecordAfterCloseIsNoOp(t *testing.T) {
	j, _ := openTestJournal(t)
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Must neither panic nor block.
	j.Record("status", "alice", "ACTIVO")

	if err := j.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPing(t *testing.T) {
	j, _ := openTestJournal(t)
	if err := j.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConcurrentRecord(t *testing.T) {
	j, _ := openTestJournal(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 10; k++ {
				j.Record("status", "user", "ACTIVO")
			}
		}()
	}

	// Close concurrently with the tail of the recorders; Record must stay
	// safe against the channel closing.
	time.Sleep(5 * time.Millisecond)
	_ = j.Close()
	wg.Wait()
}
