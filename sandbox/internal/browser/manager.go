// CLAUDE:SUMMARY Chrome lifecycle for the browser sandbox: launch or connect, heap and age based recycling, callback to rebuild tabs.
// Package browser manages the Chrome process behind the browser sandbox:
// start, connect via Rod, monitor memory, recycle on threshold or
// interval and hand the new handle to whoever owns the tabs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome via launcher.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	// MemoryLimit in bytes. Recycle Chrome when exceeded. Default: 512MB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// CheckInterval is how often age and heap are checked. Default: 30s.
	CheckInterval time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// Stealth opens tabs through go-rod/stealth.
	Stealth bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 512 << 20
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RecycleCallback is called around Chrome recycling. AfterRecycle runs
// with the manager locked: it must use the handle it is given and not
// call back into the Manager.
type RecycleCallback struct {
	BeforeRecycle func()
	AfterRecycle  func(b *rod.Browser)
}

// Manager manages Chrome lifecycle.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
	cb      *RecycleCallback
	stop    chan struct{}
	done    chan struct{}
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// SetRecycleCallback sets the callback for recycle events.
func (m *Manager) SetRecycleCallback(cb *RecycleCallback) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start launches Chrome (or connects to a remote instance) and returns
// the Rod browser handle. It also starts the monitor goroutine, which
// stops on Close.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.monitorLoop(m.stop, m.done)

	return b, nil
}

// Browser returns the current Rod browser handle.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle kills Chrome, restarts it, and calls the AfterRecycle callback.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	return m.recycleLocked(ctx)
}

// Close stops the monitor and shuts Chrome down.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stop, done := m.stop, m.done
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanup()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(true)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked(ctx context.Context) error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	if m.cb != nil && m.cb.BeforeRecycle != nil {
		m.cb.BeforeRecycle()
	}

	if err := m.cleanup(); err != nil {
		log.Warn("browser: cleanup during recycle", "error", err)
	}

	b, err := m.launch(ctx)
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()

	if m.cb != nil && m.cb.AfterRecycle != nil {
		m.cb.AfterRecycle(b)
	}

	log.Info("browser: recycled successfully")
	return nil
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return err
}

func (m *Manager) monitorLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.RLock()
			b, startAt := m.browser, m.startAt
			m.mu.RUnlock()
			if b == nil {
				continue
			}

			if time.Since(startAt) > m.cfg.RecycleInterval {
				log.Info("browser: recycle interval reached")
				if err := m.Recycle(ctx); err != nil && !errors.Is(err, ErrClosed) {
					log.Error("browser: recycle failed", "error", err)
				}
				continue
			}

			used, err := jsHeapUsage(b)
			if err != nil {
				log.Debug("browser: heap check failed", "error", err)
				continue
			}
			if used > m.cfg.MemoryLimit {
				log.Info("browser: memory limit exceeded", "used", used, "limit", m.cfg.MemoryLimit)
				if err := m.Recycle(ctx); err != nil && !errors.Is(err, ErrClosed) {
					log.Error("browser: recycle failed", "error", err)
				}
			}
		}
	}
}

// jsHeapUsage reads the JS heap of the first open page as a proxy for
// the whole process.
func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("browser: no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
