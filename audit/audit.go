// CLAUDE:SUMMARY Audit trail of data-modifying operations: entries batched into an SQLite audit_log table, plus a kit middleware recording every endpoint call.
// Package audit records who changed what: generations, prompt edits,
// visual-edit commits and saves. Entries land in an audit_log table that
// usually lives next to the pages in the same SQLite file.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/visedit/dbopen"
	"github.com/hazyhaar/visedit/idgen"
)

// Schema creates the audit_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL DEFAULT 'http',
	trace_id      TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action, timestamp);
`

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	batchSize     = 32
	flushInterval = 500 * time.Millisecond
	bufferSize    = 256
)

// Entry is one audit record. Zero fields are filled by the logger.
type Entry struct {
	EntryID    string
	Timestamp  int64 // UnixMilli
	Action     string
	Transport  string
	TraceID    string
	Parameters string // JSON
	Error      string
	DurationMs int64
	Status     string
}

// Logger is what services record through.
type Logger interface {
	Log(ctx context.Context, e *Entry) error
	LogAsync(e *Entry)
}

// SQLiteLogger writes entries to audit_log, batching asynchronous ones.
type SQLiteLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan *Entry
	done   chan struct{}
	start  sync.Once
}

// Option configures an SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator sets the entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithLogger sets the logger flush failures are reported to.
func WithLogger(lg *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.logger = lg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *SQLiteLogger) { l.now = now }
}

// NewSQLiteLogger returns a logger over db. Call Init before logging and
// Close to flush.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:     db,
		newID:  idgen.Prefixed("aud_", idgen.UUIDv7()),
		now:    time.Now,
		logger: slog.Default(),
		ch:     make(chan *Entry, bufferSize),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Init creates the table and starts the flush loop.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return fmt.Errorf("audit: init: %w", err)
	}
	l.start.Do(func() { go l.flushLoop() })
	return nil
}

// Log inserts e synchronously.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return l.insert(ctx, []*Entry{e})
}

// LogAsync queues e. A full buffer falls back to a synchronous insert;
// entries logged after Close are dropped.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("audit: entry after close dropped", "action", e.Action)
		return
	}
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, sync fallback", "action", e.Action)
		if err := l.insert(context.Background(), []*Entry{e}); err != nil {
			l.logger.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Close flushes queued entries and stops the flush loop.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	// Init never ran: drain inline.
	started := true
	l.start.Do(func() { started = false })
	if !started {
		l.flushRemaining()
		return nil
	}
	<-l.done
	return nil
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Status == "" {
		if e.Error != "" {
			e.Status = StatusError
		} else {
			e.Status = StatusSuccess
		}
	}
}

func (l *SQLiteLogger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.insert(context.Background(), batch); err != nil {
			l.logger.Error("audit: flush failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *SQLiteLogger) flushRemaining() {
	var batch []*Entry
	for e := range l.ch {
		batch = append(batch, e)
	}
	if len(batch) == 0 {
		return
	}
	if err := l.insert(context.Background(), batch); err != nil {
		l.logger.Error("audit: flush failed", "entries", len(batch), "error", err)
	}
}

func (l *SQLiteLogger) insert(ctx context.Context, entries []*Entry) error {
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO audit_log (entry_id, timestamp, action, transport, trace_id,
					parameters, error_message, duration_ms, status)
				VALUES (?,?,?,?,?,?,?,?,?)`,
				e.EntryID, e.Timestamp, e.Action, e.Transport, e.TraceID,
				e.Parameters, e.Error, e.DurationMs, e.Status,
			); err != nil {
				return fmt.Errorf("audit: insert %s: %w", e.Action, err)
			}
		}
		return nil
	})
}

// Recent returns the latest entries, newest first.
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, timestamp, action, transport, trace_id,
			parameters, error_message, duration_ms, status
		FROM audit_log ORDER BY timestamp DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.TraceID,
			&e.Parameters, &e.Error, &e.DurationMs, &e.Status); err != nil {
			return nil, fmt.Errorf("audit: recent: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
