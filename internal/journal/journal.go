// Package journal persists session lifecycle events (register, disconnect,
// status changes) to SQLite. The journal is advisory: chat routing never
// reads it and never waits on it, so a slow or broken disk cannot stall the
// hot path.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// connParams keeps SQLite usable under one writer and concurrent
	// readers: WAL for non-blocking reads, a busy timeout instead of
	// immediate SQLITE_BUSY failures.
	connParams = "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

	maxOpenConns = 4
	bufferSize   = 100
	retryDelay   = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	at     TIMESTAMP NOT NULL,
	kind   TEXT NOT NULL,
	user   TEXT NOT NULL,
	detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`

// Event is one journal row.
type Event struct {
	ID     int64
	At     time.Time
	Kind   string
	User   string
	Detail string
}

// Journal writes events through a single goroutine, the reliable way to run
// SQLite with one writer. Record enqueues and returns immediately; inserts
// that fail are retried once and then dropped with a log line.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	writeCh chan Event
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	retry time.Duration
}

// Open creates or opens the journal database at path and starts the writer
// goroutine. The schema is applied idempotently on every open.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if path == "" {
		return nil, ErrNoPath
	}

	db, err := sql.Open("sqlite3", path+connParams)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	j := &Journal{
		db:      db,
		logger:  logger,
		writeCh: make(chan Event, bufferSize),
		retry:   retryDelay,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// Record enqueues one event stamped with the current time. It never blocks:
// when the buffer is full the event is dropped and logged, and after Close
// it is a no-op.
func (j *Journal) Record(kind, user, detail string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.writeCh <- Event{At: time.Now(), Kind: kind, User: user, Detail: detail}:
	default:
		j.logger.Warn("journal buffer full, event dropped", "kind", kind, "user", user)
	}
}

// Recent returns the newest n events, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, kind, user, detail FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query journal events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		var detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.At, &ev.Kind, &ev.User, &detail); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		ev.Detail = detail.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}
	return events, nil
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close stops accepting events, drains everything already enqueued, and
// closes the database. Safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.writeCh)
	j.wg.Wait()
	return j.db.Close()
}

// writeLoop is the sole writer. It exits once Close closes the channel and
// the backlog is drained.
func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for ev := range j.writeCh {
		j.insert(ev)
	}
}

// insert retries exactly once; transient SQLITE_BUSY spells under load
// usually clear within the delay.
func (j *Journal) insert(ev Event) {
	if err := j.exec(ev); err != nil {
		j.logger.Warn("journal insert failed, retrying", "kind", ev.Kind, "error", err)
		time.Sleep(j.retry)
		if err := j.exec(ev); err != nil {
			j.logger.Error("journal insert failed after retry, event dropped", "kind", ev.Kind, "error", err)
		}
	}
}

func (j *Journal) exec(ev Event) error {
	_, err := j.db.Exec(`INSERT INTO events (at, kind, user, detail) VALUES (?, ?, ?, ?)`,
		ev.At, ev.Kind, ev.User, ev.Detail)
	return err
}
