package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a blank Rod page used as a rendering surface: stealth and
// resource blocking applied, content set directly instead of navigated.
type Tab struct {
	Page   *rod.Page
	logger *slog.Logger
	cancel context.CancelFunc
}

// OpenTab creates a blank tab on b with the manager settings applied.
func OpenTab(b *rod.Browser, cfg Config) (*Tab, error) {
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var (
		page *rod.Page
		err  error
	)
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, cfg.ResourceBlocking); err != nil {
			logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Tab{Page: page, logger: logger, cancel: func() {}}, nil
}

// Bind exposes a global JS function name whose calls are delivered to fn
// with their string payload. The binding survives document replacement.
// Delivery stops when the tab is closed.
func (t *Tab) Bind(name string, fn func(payload string)) error {
	if err := (proto.RuntimeAddBinding{Name: name}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: add binding %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := t.cancel
	t.cancel = func() { prev(); cancel() }

	wait := t.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != name {
			return
		}
		fn(e.Payload)
	})
	go wait()
	return nil
}

// SetContent replaces the document of the tab and waits for it to load.
func (t *Tab) SetContent(ctx context.Context, doc string) error {
	p := t.Page.Context(ctx)
	if err := p.SetDocumentContent(doc); err != nil {
		return fmt.Errorf("browser: set content: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load", "error", err)
	}
	return nil
}

// Eval runs a JS function expression with arguments.
func (t *Tab) Eval(ctx context.Context, js string, args ...any) error {
	if _, err := t.Page.Context(ctx).Eval(js, args...); err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	return nil
}

// Click dispatches a real left click on the first element matching the
// CSS selector.
func (t *Tab) Click(ctx context.Context, css string) error {
	el, err := t.Page.Context(ctx).Element(css)
	if err != nil {
		return fmt.Errorf("browser: element %s: %w", css, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s: %w", css, err)
	}
	return nil
}

// Close stops binding delivery and closes the tab.
func (t *Tab) Close() error {
	t.cancel()
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
