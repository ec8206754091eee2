// Package persist pushes a patched page to the storage collaborator.
//
// A save is attempted exactly once. Its failure is reported, never
// retried, and the caller keeps its optimistic in-memory copy.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Saver is the storage side of a visual edit (PATCH /pages/{id}).
type Saver interface {
	SaveVisualEdit(ctx context.Context, id int, html, css string) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, id int, html, css string) error

func (f SaverFunc) SaveVisualEdit(ctx context.Context, id int, html, css string) error {
	return f(ctx, id, html, css)
}

// SyncError is a failed save.
type SyncError struct {
	PageID int
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("persist: save page %d: %v", e.PageID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Sync saves pages through a Saver.
type Sync struct {
	saver   Saver
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Sync.
type Option func(*Sync)

// WithTimeout bounds each save. Zero means only the caller context applies.
func WithTimeout(d time.Duration) Option {
	return func(s *Sync) { s.timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sync) { s.logger = l }
}

// New returns a Sync writing through saver.
func New(saver Saver, opts ...Option) *Sync {
	s := &Sync{saver: saver, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save persists html and css for the page once. Failures are *SyncError.
func (s *Sync) Save(ctx context.Context, pageID int, html, css string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.saver.SaveVisualEdit(ctx, pageID, html, css); err != nil {
		s.logger.Warn("persist: save failed", "page_id", pageID, "error", err, "elapsed", time.Since(start))
		return &SyncError{PageID: pageID, Err: err}
	}
	s.logger.Debug("persist: saved", "page_id", pageID, "html_bytes", len(html), "css_bytes", len(css), "elapsed", time.Since(start))
	return nil
}

// SaveAsync runs Save on its own goroutine and hands the outcome to done.
// done runs on that goroutine; callers forward it to their own loop.
func (s *Sync) SaveAsync(ctx context.Context, pageID int, html, css string, done func(error)) {
	go func() {
		done(s.Save(ctx, pageID, html, css))
	}()
}
