// Package sandbox renders a page in an isolated context and reports
// clicks on its elements while visual-edit mode is on.
//
// Reports leave the sandbox only as raw wire messages handed to an
// Emitter, normally (*bus.Bus).Post. Nothing flows back except Render,
// SetActive and Click calls.
package sandbox

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/selector"
)

// BindingName is the JS function the instrumentation reports through.
const BindingName = "__visedit_emit"

// GateName is the window property that enables reporting.
const GateName = "__visedit_enabled"

// ErrClosed is returned by calls on a closed sandbox.
var ErrClosed = errors.New("sandbox: closed")

// Emitter receives raw wire messages from the sandbox.
type Emitter func(data []byte)

// Sandbox is an isolated rendering of one page.
type Sandbox interface {
	// Render loads the document. The activation gate is reset to off.
	Render(ctx context.Context, p page.Page) error
	// SetActive sets the activation gate.
	SetActive(ctx context.Context, on bool) error
	// Click synthesises a pointer interaction on the element sel designates.
	Click(ctx context.Context, sel selector.Selector) error
	Close() error
}

// Document assembles the full document a page is rendered from. script is
// placed in head after the page stylesheet; it may be empty.
func Document(p page.Page, script string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><style>")
	b.WriteString(escapeRawText(p.CSS, "style"))
	b.WriteString("</style>")
	if script != "" {
		b.WriteString("<script>")
		b.WriteString(escapeRawText(script, "script"))
		b.WriteString("</script>")
	}
	b.WriteString("</head><body>")
	b.WriteString(p.HTML)
	b.WriteString("</body></html>")
	return b.String()
}

// escapeRawText keeps a raw text element from being closed early by its
// own content.
func escapeRawText(s, tag string) string {
	lower := strings.ToLower(s)
	needle := "</" + tag
	if !strings.Contains(lower, needle) {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(lower, needle)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(`<\/`)
		s, lower = s[i+2:], lower[i+2:]
	}
}
