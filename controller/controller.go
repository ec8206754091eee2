// CLAUDE:SUMMARY Application state owner: one loop goroutine consumes sandbox bus messages, API commands and save completions; commit patches, re-renders and persists asynchronously.
// Package controller owns the application state of a visual-edit session:
// the page list, the page on display, the edit session and user notices.
//
// All state is mutated by the goroutine running Run. API callers submit
// closures over a channel, the sandbox reaches the loop through the bus,
// and background saves report back through a third channel. Backend
// round trips for generation and page loads run on the caller goroutine;
// only their results go through the loop.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/visedit/audit"
	"github.com/hazyhaar/visedit/bus"
	"github.com/hazyhaar/visedit/idgen"
	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/persist"
	"github.com/hazyhaar/visedit/sandbox"
	"github.com/hazyhaar/visedit/session"
)

var (
	// ErrStopped is returned once Run has returned.
	ErrStopped = errors.New("controller: stopped")
	// ErrNoPage is returned by operations that need a page on display.
	ErrNoPage = errors.New("controller: no page open")
	// ErrUnknownPage is returned by Open for an ID that neither the page
	// list nor the backend knows.
	ErrUnknownPage = errors.New("controller: unknown page")
	// ErrUnknownNotice is returned by DismissNotice.
	ErrUnknownNotice = errors.New("controller: unknown notice")
	// ErrPageChanged is returned by EditByPrompt when the page was edited
	// while the backend rewrote it. The rewrite is discarded.
	ErrPageChanged = errors.New("controller: page changed during edit")
)

// Backend is the generation and storage collaborator. backend.Client and
// pagestore.Service both satisfy it.
type Backend interface {
	Generate(ctx context.Context, description string) ([]page.Page, error)
	ListPages(ctx context.Context) ([]page.Page, error)
	FetchPage(ctx context.Context, id int) (page.Page, error)
	EditByPrompt(ctx context.Context, id int, prompt, html, css string) (page.Page, error)
	persist.Saver
}

// maxNotices bounds the notice list; the oldest are dropped first.
const maxNotices = 50

type state struct {
	pages   []page.Page
	current int // index into pages, -1 when nothing is displayed
	session *session.Session
	notices []Notice
	saving  int
}

func (s *state) page() (*page.Page, bool) {
	if s.current < 0 || s.current >= len(s.pages) {
		return nil, false
	}
	return &s.pages[s.current], true
}

func (s *state) indexOf(id int) int {
	for i, p := range s.pages {
		if p.ID == id {
			return i
		}
	}
	return -1
}

type saveResult struct {
	pageID int
	err    error
}

// Controller drives one sandbox.
type Controller struct {
	backend  Backend
	sandbox  sandbox.Sandbox
	bus      *bus.Bus
	sync     *persist.Sync
	logger   *slog.Logger
	noticeID idgen.Generator
	now      func() time.Time
	audit    audit.Logger

	cmds   chan func(*state)
	saves  chan saveResult
	done   chan struct{}
	saveWG sync.WaitGroup

	// set once Run starts; saves outlive the Run context.
	saveCtx context.Context
	st      state
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithSync replaces the persistence sync built over the backend.
func WithSync(s *persist.Sync) Option {
	return func(c *Controller) { c.sync = s }
}

// WithNoticeIDs sets the notice ID generator. Default: idgen.Notice.
func WithNoticeIDs(gen idgen.Generator) Option {
	return func(c *Controller) { c.noticeID = gen }
}

// WithAudit records every MCP tool call.
func WithAudit(l audit.Logger) Option {
	return func(c *Controller) { c.audit = l }
}

// WithClock sets the time source of notices.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New returns a controller over sb, which must report to b. Saves go
// through backend unless WithSync is given.
func New(backend Backend, sb sandbox.Sandbox, b *bus.Bus, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		sandbox:  sb,
		bus:      b,
		logger:   slog.Default(),
		noticeID: idgen.Notice,
		now:      time.Now,
		cmds:     make(chan func(*state)),
		saves:    make(chan saveResult, 8),
		done:     make(chan struct{}),
		st:       state{current: -1, session: session.New()},
	}
	for _, o := range opts {
		o(c)
	}
	if c.sync == nil {
		c.sync = persist.New(backend, persist.WithLogger(c.logger))
	}
	return c
}

// Run processes events until ctx is done, then waits for in-flight saves.
// It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	c.saveCtx = context.WithoutCancel(ctx)
	defer close(c.done)
	c.logger.Info("controller: started")

	msgs := c.bus.C()
	for {
		select {
		case <-ctx.Done():
			c.drainSaves()
			c.logger.Info("controller: stopped")
			return nil
		case fn := <-c.cmds:
			fn(&c.st)
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			c.handle(&c.st, msg)
		case r := <-c.saves:
			c.saved(&c.st, r)
		}
	}
}

// drainSaves applies the completions of saves still in flight.
func (c *Controller) drainSaves() {
	idle := make(chan struct{})
	go func() {
		c.saveWG.Wait()
		close(idle)
	}()
	for {
		select {
		case r := <-c.saves:
			c.saved(&c.st, r)
		case <-idle:
			for {
				select {
				case r := <-c.saves:
					c.saved(&c.st, r)
				default:
					return
				}
			}
		}
	}
}

// do runs fn on the loop and returns its error.
func (c *Controller) do(ctx context.Context, fn func(*state) error) error {
	errc := make(chan error, 1)
	cmd := func(s *state) { errc <- fn(s) }
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle applies one sandbox message.
func (c *Controller) handle(s *state, msg bus.Message) {
	switch m := msg.(type) {
	case bus.ElementClick:
		if err := s.session.Select(m.Element()); err != nil {
			c.logger.Debug("controller: click ignored", "selector", m.Selector.String(), "error", err)
			return
		}
		c.logger.Debug("controller: element selected", "selector", m.Selector.String(), "tag", m.TagName)
	default:
		c.logger.Warn("controller: unhandled message", "type", msg.Type())
	}
}

// drainBus applies the messages already queued on the bus.
func (c *Controller) drainBus(s *state) {
	for {
		select {
		case msg, ok := <-c.bus.C():
			if !ok {
				return
			}
			c.handle(s, msg)
		default:
			return
		}
	}
}

// display renders the current page and restores the gate from the
// session mode.
func (c *Controller) display(ctx context.Context, s *state) error {
	p, ok := s.page()
	if !ok {
		return ErrNoPage
	}
	if err := c.sandbox.Render(ctx, *p); err != nil {
		return err
	}
	if s.session.Mode() != session.Viewing {
		return c.sandbox.SetActive(ctx, true)
	}
	return nil
}

func (c *Controller) save(s *state, p page.Page) {
	s.saving++
	c.saveWG.Add(1)
	c.sync.SaveAsync(c.saveCtx, p.ID, p.HTML, p.CSS, func(err error) {
		defer c.saveWG.Done()
		c.saves <- saveResult{pageID: p.ID, err: err}
	})
}

// SaveFailedMessage is the notice shown when a visual edit is not persisted.
const SaveFailedMessage = "Failed to save changes to server."

func (c *Controller) saved(s *state, r saveResult) {
	s.saving--
	if r.err == nil {
		return
	}
	c.logger.Error("controller: save failed", "page_id", r.pageID, "error", r.err)
	c.notify(s, LevelError, SaveFailedMessage)
}
