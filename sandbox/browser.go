// CLAUDE:SUMMARY Chrome-backed sandbox: renders pages into a rod tab with instrument.js, relays binding calls to the emitter, survives Chrome recycling.
package sandbox

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/sandbox/internal/browser"
	"github.com/hazyhaar/visedit/selector"
)

//go:embed instrument.js
var instrumentJS string

// BrowserConfig configures the Chrome-backed sandbox.
type BrowserConfig struct {
	// RemoteURL connects to an existing Chrome (ws://...). Empty launches one.
	RemoteURL        string
	Bin              string
	Stealth          bool
	ResourceBlocking []string
	RecycleInterval  time.Duration
	MemoryLimit      int64
	// ClickTimeout bounds the element lookup of Click. Default: 5s.
	ClickTimeout time.Duration
	Logger       *slog.Logger
}

// Browser renders pages in a real Chrome tab. Clicks are handled by the
// injected instrumentation and reach the emitter through a CDP runtime
// binding.
type Browser struct {
	cfg    BrowserConfig
	emit   Emitter
	logger *slog.Logger
	mgr    *browser.Manager

	mu      sync.Mutex
	tab     *browser.Tab
	current *page.Page
	active  bool
	closed  bool
}

// NewBrowser starts Chrome and opens the rendering tab.
func NewBrowser(ctx context.Context, cfg BrowserConfig, emit Emitter) (*Browser, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClickTimeout <= 0 {
		cfg.ClickTimeout = 5 * time.Second
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.RemoteURL,
		Bin:              cfg.Bin,
		Stealth:          cfg.Stealth,
		ResourceBlocking: cfg.ResourceBlocking,
		RecycleInterval:  cfg.RecycleInterval,
		MemoryLimit:      cfg.MemoryLimit,
		Logger:           cfg.Logger,
	})
	s := &Browser{cfg: cfg, emit: emit, logger: cfg.Logger, mgr: mgr}

	b, err := mgr.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox: start browser: %w", err)
	}
	tab, err := s.openTab(b)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	s.tab = tab

	mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: s.beforeRecycle,
		AfterRecycle:  s.afterRecycle,
	})
	return s, nil
}

func (s *Browser) openTab(b *rod.Browser) (*browser.Tab, error) {
	tab, err := browser.OpenTab(b, s.mgr.Config())
	if err != nil {
		return nil, fmt.Errorf("sandbox: open tab: %w", err)
	}
	if err := tab.Bind(BindingName, func(payload string) {
		s.emit([]byte(payload))
	}); err != nil {
		tab.Close()
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	return tab, nil
}

// Render replaces the tab document with the page and turns the gate off.
func (s *Browser) Render(ctx context.Context, p page.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}
	if err := s.renderLocked(ctx, p); err != nil {
		return err
	}
	s.current = &p
	s.active = false
	return nil
}

func (s *Browser) renderLocked(ctx context.Context, p page.Page) error {
	if err := s.tab.SetContent(ctx, Document(p, instrumentJS)); err != nil {
		return fmt.Errorf("sandbox: render page %d: %w", p.ID, err)
	}
	// The window object outlives document replacement.
	if err := s.tab.Eval(ctx, `(name) => { window[name] = false }`, GateName); err != nil {
		return fmt.Errorf("sandbox: reset gate: %w", err)
	}
	s.logger.Debug("sandbox: rendered", "page_id", p.ID, "html_bytes", len(p.HTML), "css_bytes", len(p.CSS))
	return nil
}

// SetActive sets window.__visedit_enabled in the tab.
func (s *Browser) SetActive(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}
	if err := s.tab.Eval(ctx, `(name, on) => { window[name] = on }`, GateName, on); err != nil {
		return fmt.Errorf("sandbox: set gate: %w", err)
	}
	s.active = on
	return nil
}

// Click dispatches a real mouse click on the element sel designates.
func (s *Browser) Click(ctx context.Context, sel selector.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ClickTimeout)
	defer cancel()
	if err := s.tab.Click(ctx, sel.String()); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	return nil
}

func (s *Browser) readyLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.tab == nil {
		return fmt.Errorf("sandbox: no tab, browser is recycling")
	}
	return nil
}

// Close closes the tab and shuts Chrome down.
func (s *Browser) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tab := s.tab
	s.tab = nil
	s.mu.Unlock()

	if tab != nil {
		if err := tab.Close(); err != nil {
			s.logger.Debug("sandbox: close tab", "error", err)
		}
	}
	return s.mgr.Close()
}

func (s *Browser) beforeRecycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab != nil {
		_ = s.tab.Close()
		s.tab = nil
	}
}

// afterRecycle rebuilds the tab on the new Chrome and restores the page
// and gate state.
func (s *Browser) afterRecycle(b *rod.Browser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	tab, err := s.openTab(b)
	if err != nil {
		s.logger.Error("sandbox: reopen tab after recycle", "error", err)
		return
	}
	s.tab = tab

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if s.current != nil {
		if err := s.renderLocked(ctx, *s.current); err != nil {
			s.logger.Error("sandbox: restore page after recycle", "error", err)
			return
		}
	}
	if s.active {
		if err := s.tab.Eval(ctx, `(name) => { window[name] = true }`, GateName); err != nil {
			s.logger.Error("sandbox: restore gate after recycle", "error", err)
		}
	}
}

var _ Sandbox = (*Browser)(nil)
