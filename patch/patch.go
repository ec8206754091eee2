// CLAUDE:SUMMARY Pure patch generator: splices the edited element into canonical HTML by tree position (markup anchor fallback) and appends a selector-scoped CSS rule.
// Package patch merges a visual edit back into the canonical page source.
//
// The target element is found by its position in the canonical HTML (the
// selector captured in the sandbox), falling back to the first occurrence
// of the markup serialised at selection time. Only the bytes of the target
// element are rewritten; the stylesheet only grows.
package patch

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/stylesheet"
)

var (
	// ErrStaleSelector means the selector no longer designates an element
	// of the canonical HTML.
	ErrStaleSelector = errors.New("patch: stale selector")
	// ErrAnchorMiss means the markup captured at selection time does not
	// occur in the canonical HTML.
	ErrAnchorMiss = errors.New("patch: markup anchor not found")
	// ErrInvalidStyle rejects style values that could escape their
	// declaration.
	ErrInvalidStyle = errors.New("patch: invalid style value")
)

// MissError reports that neither strategy located the element. Nothing
// was written.
type MissError struct {
	Selector string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("patch: element %s not found in page source", e.Selector)
}

// Unwrap exposes both causes to errors.Is.
func (e *MissError) Unwrap() []error { return []error{ErrStaleSelector, ErrAnchorMiss} }

// IsSoft reports whether err is a miss the caller may surface as a warning
// and keep going.
func IsSoft(err error) bool {
	var miss *MissError
	return errors.As(err, &miss)
}

// Strategy names how the target was found.
type Strategy string

const (
	BySelector Strategy = "selector"
	ByAnchor   Strategy = "anchor"
)

// Result is the patched page source.
type Result struct {
	HTML     string
	CSS      string
	Applied  bool
	Strategy Strategy
}

var textPolicy = bluemonday.StrictPolicy()

// Apply rewrites the element el in htmlSrc with the edited values and
// appends a CSS rule keyed by its selector. It has no side effects: equal
// inputs give equal outputs. On failure the returned Result carries the
// inputs unchanged.
func Apply(htmlSrc, css string, el page.Element, e page.Edit) (Result, error) {
	unchanged := Result{HTML: htmlSrc, CSS: css}

	decls := e.Styles.Declarations()
	for _, d := range decls {
		if err := validateValue(d[1]); err != nil {
			return unchanged, fmt.Errorf("%w: %s: %q", err, d[0], d[1])
		}
	}

	sp, strategy, ok := find(htmlSrc, el)
	if !ok {
		return unchanged, &MissError{Selector: el.SelectorString()}
	}

	replacement := render(sp, decls, e.Content)
	out := Result{
		HTML:     htmlSrc[:sp.start] + replacement + htmlSrc[sp.end:],
		CSS:      css,
		Applied:  true,
		Strategy: strategy,
	}
	if len(decls) > 0 && len(el.Selector) > 0 {
		out.CSS = css + "\n" + rule(el, decls).String() + "\n"
	}
	return out, nil
}

func find(src string, el page.Element) (span, Strategy, bool) {
	if sp, ok := locate(src, el.Selector); ok && sameTag(sp.tag, el.TagName) {
		return sp, BySelector, true
	}
	if sp, ok := anchor(src, el.OriginalMarkup); ok {
		return sp, ByAnchor, true
	}
	return span{}, "", false
}

func sameTag(src, reported string) bool {
	return reported == "" || strings.EqualFold(src, reported)
}

// render builds the replacement element: same tag, original attributes,
// style merged with the edited declarations, sanitised text body.
func render(sp span, decls [][2]string, content string) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(sp.tag)

	styled := false
	for _, a := range sp.attrs {
		val := a.Val
		if a.Namespace == "" && a.Key == "style" {
			val = mergeStyle(val, decls)
			styled = true
		}
		writeAttr(&b, a.Key, val)
	}
	if !styled && len(decls) > 0 {
		writeAttr(&b, "style", mergeStyle("", decls))
	}
	b.WriteByte('>')

	if sp.void {
		return b.String()
	}
	b.WriteString(textPolicy.Sanitize(content))
	b.WriteString("</")
	b.WriteString(sp.tag)
	b.WriteByte('>')
	return b.String()
}

func writeAttr(b *strings.Builder, key, val string) {
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(val))
	b.WriteByte('"')
}

func mergeStyle(inline string, decls [][2]string) string {
	merged := stylesheet.ParseDeclarations(inline)
	for _, d := range decls {
		merged = stylesheet.Set(merged, d[0], d[1])
	}
	return stylesheet.RenderDeclarations(merged)
}

func rule(el page.Element, decls [][2]string) stylesheet.Rule {
	r := stylesheet.Rule{Selector: el.SelectorString()}
	for _, d := range decls {
		r.Decls = append(r.Decls, stylesheet.Decl{Property: d[0], Value: d[1]})
	}
	return r
}

// validateValue rejects characters that would let a value terminate its
// declaration, its rule block or the attribute it is written into.
func validateValue(v string) error {
	for _, r := range v {
		switch {
		case r < 0x20 || r == 0x7f:
			return ErrInvalidStyle
		case strings.ContainsRune(`;{}<>"\`, r):
			return ErrInvalidStyle
		}
	}
	return nil
}
