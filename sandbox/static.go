// CLAUDE:SUMMARY In-process sandbox: parses the rendered document with x/net/html, approximates computed style and emits the same wire messages as the browser.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/visedit/bus"
	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/selector"
	"github.com/hazyhaar/visedit/stylesheet"
)

// Static renders pages in-process. It needs no browser and emits the
// messages a real click would, with computed style approximated by a
// simplified cascade.
type Static struct {
	emit   Emitter
	logger *slog.Logger

	mu     sync.Mutex
	doc    *html.Node
	styles cascade
	active bool
	closed bool
}

// StaticOption configures a Static sandbox.
type StaticOption func(*Static)

// WithStaticLogger sets a custom logger.
func WithStaticLogger(l *slog.Logger) StaticOption {
	return func(s *Static) { s.logger = l }
}

// NewStatic returns an in-process sandbox reporting to emit.
func NewStatic(emit Emitter, opts ...StaticOption) *Static {
	s := &Static{emit: emit, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Render parses the page document and turns the gate off.
func (s *Static) Render(_ context.Context, p page.Page) error {
	doc, err := html.Parse(strings.NewReader(Document(p, "")))
	if err != nil {
		return fmt.Errorf("sandbox: parse page %d: %w", p.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.doc = doc
	s.styles = cascade{root: doc, rules: stylesheet.Parse(p.CSS)}
	s.active = false
	s.logger.Debug("sandbox: rendered", "page_id", p.ID, "html_bytes", len(p.HTML), "css_bytes", len(p.CSS))
	return nil
}

// SetActive sets the activation gate.
func (s *Static) SetActive(_ context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.active = on
	return nil
}

// Click reports the element sel designates, if the gate is on. A click
// while the gate is off is swallowed like in the browser.
func (s *Static) Click(_ context.Context, sel selector.Selector) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.doc == nil {
		s.mu.Unlock()
		return fmt.Errorf("sandbox: click: nothing rendered")
	}
	n, err := selector.Locate(s.doc, sel)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("sandbox: click: %w", err)
	}
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	msg, err := s.report(n)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := bus.Encode(msg)
	if err != nil {
		return fmt.Errorf("sandbox: click: %w", err)
	}
	s.emit(data)
	return nil
}

// Markup returns the serialised body of the rendered document.
func (s *Static) Markup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ""
	}
	body, err := selector.Locate(s.doc, selector.Selector{{Tag: "body"}})
	if err != nil {
		return ""
	}
	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

// Close releases the document.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}

func (s *Static) report(n *html.Node) (bus.ElementClick, error) {
	var markup strings.Builder
	if err := html.Render(&markup, n); err != nil {
		return bus.ElementClick{}, fmt.Errorf("sandbox: render markup: %w", err)
	}
	return bus.ElementClick{
		Selector:    selector.Resolve(n),
		TagName:     strings.ToLower(n.Data),
		Markup:      markup.String(),
		TextContent: textContent(n),
		Styles:      s.styles.computed(n),
	}, nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var _ Sandbox = (*Static)(nil)
