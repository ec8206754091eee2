package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/selector"
	"github.com/hazyhaar/visedit/stylesheet"
)

const (
	defaultColor      = "rgb(0, 0, 0)"
	defaultBackground = "rgba(0, 0, 0, 0)"
	defaultFontSize   = 16.0
)

// cascade approximates computed style over a parsed document: rules in
// source order, inline style last, no specificity. color and font-size
// inherit.
type cascade struct {
	root  *html.Node
	rules []stylesheet.Rule
}

func (c cascade) computed(n *html.Node) page.Styles {
	color, size := c.inherited(n.Parent)
	own := c.declared(n)

	if v, ok := own["color"]; ok && v != "inherit" {
		color = normalizeColor(v)
	}
	if v, ok := own["font-size"]; ok {
		size = resolveFontSize(v, size)
	}
	bg := defaultBackground
	if v, ok := own["background-color"]; ok {
		bg = normalizeColor(v)
	}
	return page.Styles{Color: color, BackgroundColor: bg, FontSize: formatPx(size)}
}

// inherited walks up from n and returns the color and font size an
// element under n inherits.
func (c cascade) inherited(n *html.Node) (string, float64) {
	var chain []*html.Node
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode {
			chain = append(chain, cur)
		}
	}
	color, size := defaultColor, defaultFontSize
	for i := len(chain) - 1; i >= 0; i-- {
		own := c.declared(chain[i])
		if v, ok := own["color"]; ok && v != "inherit" {
			color = normalizeColor(v)
		}
		if v, ok := own["font-size"]; ok {
			size = resolveFontSize(v, size)
		}
	}
	return color, size
}

func (c cascade) declared(n *html.Node) map[string]string {
	out := make(map[string]string)
	for _, r := range c.rules {
		if !c.matchesGroup(n, r.Selector) {
			continue
		}
		for _, d := range r.Decls {
			out[d.Property] = d.Value
		}
	}
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, d := range stylesheet.ParseDeclarations(a.Val) {
				out[d.Property] = d.Value
			}
		}
	}
	if v, ok := out["background"]; ok {
		if _, set := out["background-color"]; !set && isColorToken(v) {
			out["background-color"] = v
		}
	}
	return out
}

func (c cascade) matchesGroup(n *html.Node, group string) bool {
	for _, sel := range stylesheet.SplitGroup(group) {
		if c.matches(n, sel) {
			return true
		}
	}
	return false
}

// matches supports compound simple selectors (tag, #id, .class, *) and
// the positional child paths the patch generator writes.
func (c cascade) matches(n *html.Node, sel string) bool {
	if strings.Contains(sel, ">") {
		parsed, err := selector.Parse(sel)
		if err != nil {
			return false
		}
		found, err := selector.Locate(c.root, parsed)
		return err == nil && found == n
	}
	if strings.ContainsAny(sel, " +~[:") {
		return false
	}
	return matchCompound(n, sel)
}

func matchCompound(n *html.Node, sel string) bool {
	if sel == "" {
		return false
	}
	i := strings.IndexAny(sel, "#.")
	tag := sel
	if i >= 0 {
		tag = sel[:i]
	}
	if tag != "" && tag != "*" && !strings.EqualFold(tag, n.Data) {
		return false
	}
	for i >= 0 {
		kind := sel[i]
		rest := sel[i+1:]
		j := strings.IndexAny(rest, "#.")
		name := rest
		if j >= 0 {
			name = rest[:j]
		}
		switch kind {
		case '#':
			id, err := selector.UnescapeIdent(name)
			if err != nil || attrValue(n, "id") != id {
				return false
			}
		case '.':
			if !hasClass(n, name) {
				return false
			}
		}
		if j < 0 {
			break
		}
		i += 1 + j
	}
	return true
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// resolveFontSize turns a declared font-size into pixels relative to the
// parent size. Unknown units keep the parent size.
func resolveFontSize(v string, parent float64) float64 {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "inherit" {
		return parent
	}
	if px, ok := fontKeywords[v]; ok {
		return px
	}
	for _, u := range []struct {
		suffix string
		scale  func(float64) float64
	}{
		{"px", func(f float64) float64 { return f }},
		{"rem", func(f float64) float64 { return f * defaultFontSize }},
		{"em", func(f float64) float64 { return f * parent }},
		{"%", func(f float64) float64 { return f * parent / 100 }},
		{"pt", func(f float64) float64 { return f * 4 / 3 }},
	} {
		if num, ok := strings.CutSuffix(v, u.suffix); ok {
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return parent
			}
			return u.scale(f)
		}
	}
	return parent
}

var fontKeywords = map[string]float64{
	"xx-small": 9, "x-small": 10, "small": 13, "medium": 16,
	"large": 18, "x-large": 24, "xx-large": 32,
}

func formatPx(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "px"
}

var namedColors = map[string]string{
	"black":       "rgb(0, 0, 0)",
	"white":       "rgb(255, 255, 255)",
	"red":         "rgb(255, 0, 0)",
	"green":       "rgb(0, 128, 0)",
	"blue":        "rgb(0, 0, 255)",
	"yellow":      "rgb(255, 255, 0)",
	"gray":        "rgb(128, 128, 128)",
	"grey":        "rgb(128, 128, 128)",
	"navy":        "rgb(0, 0, 128)",
	"orange":      "rgb(255, 165, 0)",
	"purple":      "rgb(128, 0, 128)",
	"transparent": "rgba(0, 0, 0, 0)",
}

// normalizeColor renders hex and common named colours the way a browser
// reports computed colours. Anything else is returned as written.
func normalizeColor(v string) string {
	v = strings.TrimSpace(v)
	lower := strings.ToLower(v)
	if c, ok := namedColors[lower]; ok {
		return c
	}
	if !strings.HasPrefix(lower, "#") {
		return v
	}
	hex := lower[1:]
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	}
	if len(hex) != 6 && len(hex) != 8 {
		return v
	}
	n, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return v
	}
	if len(hex) == 8 {
		a := float64(n&0xff) / 255
		n >>= 8
		return fmt.Sprintf("rgba(%d, %d, %d, %s)", n>>16&0xff, n>>8&0xff, n&0xff,
			strconv.FormatFloat(a, 'f', -1, 64))
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", n>>16&0xff, n>>8&0xff, n&0xff)
}

func isColorToken(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if strings.ContainsAny(v, " ") && !strings.HasPrefix(v, "rgb") && !strings.HasPrefix(v, "hsl") {
		return false
	}
	_, named := namedColors[v]
	return named || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "rgb") || strings.HasPrefix(v, "hsl")
}
