// CLAUDE:SUMMARY Minimal CSS model: declaration lists, flat rule parsing/rendering and last-wins cascade lookup by selector.
// Package stylesheet reads and writes the small subset of CSS the visual
// editor produces and consumes: flat rule blocks and inline declaration
// lists. At-rule blocks (@media, @keyframes, ...) are skipped as a whole.
package stylesheet

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// Decl is a single "property: value" declaration.
type Decl struct {
	Property string
	Value    string
}

// Rule is a selector with its declarations, in source order.
type Rule struct {
	Selector string
	Decls    []Decl
}

// ParseDeclarations splits an inline style or a rule body into
// declarations. Property names are lower-cased; malformed entries are
// dropped. Separators inside strings, url() and other parenthesised
// values do not split. An unterminated string or comment ends the list:
// the declaration it opened is dropped, the ones before it are kept.
func ParseDeclarations(s string) []Decl {
	var (
		out       []Decl
		prop, val strings.Builder
		inValue   bool
		depth     int
	)
	flush := func() {
		p := strings.ToLower(strings.TrimSpace(prop.String()))
		v := strings.TrimSpace(val.String())
		if inValue && p != "" && v != "" {
			out = append(out, Decl{Property: p, Value: v})
		}
		prop.Reset()
		val.Reset()
		inValue, depth = false, 0
	}

	sc := scanner.New(s)
	for {
		tok := sc.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			flush()
			return out
		case scanner.TokenError:
			return out
		case scanner.TokenComment:
			continue
		case scanner.TokenFunction:
			depth++
		case scanner.TokenChar:
			switch tok.Value {
			case "(", "[":
				depth++
			case ")", "]":
				if depth > 0 {
					depth--
				}
			case ";":
				if depth == 0 {
					flush()
					continue
				}
			case ":":
				if depth == 0 && !inValue {
					inValue = true
					continue
				}
			}
		}
		if inValue {
			val.WriteString(tok.Value)
		} else {
			prop.WriteString(tok.Value)
		}
	}
}

// RenderDeclarations renders declarations in inline-style form:
// "color: red; font-size: 12px".
func RenderDeclarations(decls []Decl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.Property+": "+d.Value)
	}
	return strings.Join(parts, "; ")
}

// Set returns decls with prop set to value. An existing declaration is
// updated in place (later duplicates removed); otherwise it is appended.
func Set(decls []Decl, prop, value string) []Decl {
	out := make([]Decl, 0, len(decls)+1)
	found := false
	for _, d := range decls {
		if d.Property != prop {
			out = append(out, d)
			continue
		}
		if !found {
			out = append(out, Decl{Property: prop, Value: value})
			found = true
		}
	}
	if !found {
		out = append(out, Decl{Property: prop, Value: value})
	}
	return out
}

// String renders the rule as an appended block:
//
//	sel {
//	  prop: value;
//	}
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Selector)
	b.WriteString(" {\n")
	for _, d := range r.Decls {
		b.WriteString("  ")
		b.WriteString(d.Property)
		b.WriteString(": ")
		b.WriteString(d.Value)
		b.WriteString(";\n")
	}
	b.WriteString("}")
	return b.String()
}

// Parse reads the flat rules of a stylesheet. Braces and semicolons
// inside strings do not delimit blocks. A block left open at the end of
// the input still yields its rule.
func Parse(css string) []Rule {
	var (
		rules         []Rule
		prelude, body strings.Builder
		depth         int
	)
	emit := func() {
		sel := strings.TrimSpace(prelude.String())
		if sel != "" && !strings.HasPrefix(sel, "@") {
			rules = append(rules, Rule{
				Selector: NormalizeSelector(sel),
				Decls:    ParseDeclarations(body.String()),
			})
		}
		prelude.Reset()
		body.Reset()
	}

	sc := scanner.New(css)
	for {
		tok := sc.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			if depth > 0 {
				emit()
			}
			return rules
		case scanner.TokenError:
			return rules
		case scanner.TokenComment:
			continue
		case scanner.TokenChar:
			switch tok.Value {
			case "{":
				depth++
				if depth == 1 {
					continue
				}
			case "}":
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					emit()
					continue
				}
			case ";":
				// Block-less at-rule such as @import.
				if depth == 0 {
					prelude.Reset()
					continue
				}
			}
		}
		if depth == 0 {
			prelude.WriteString(tok.Value)
		} else {
			body.WriteString(tok.Value)
		}
	}
}

// Effective returns the last-wins value of each property across the rules
// whose selector list contains sel. Specificity is not modelled: rules
// keyed by the same selector share it, so source order decides.
func Effective(rules []Rule, sel string) map[string]string {
	sel = NormalizeSelector(sel)
	out := make(map[string]string)
	for _, r := range rules {
		if !hasSelector(r.Selector, sel) {
			continue
		}
		for _, d := range r.Decls {
			out[d.Property] = d.Value
		}
	}
	return out
}

// SplitGroup splits a selector list ("h1, h2") into its members.
func SplitGroup(sel string) []string {
	var out []string
	for _, s := range strings.Split(sel, ",") {
		if s = NormalizeSelector(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeSelector collapses whitespace and puts single spaces around
// child combinators so equal selectors compare equal as strings.
func NormalizeSelector(sel string) string {
	sel = strings.Join(strings.Fields(sel), " ")
	sel = strings.ReplaceAll(sel, " >", ">")
	sel = strings.ReplaceAll(sel, "> ", ">")
	return strings.ReplaceAll(sel, ">", " > ")
}

func hasSelector(group, sel string) bool {
	for _, s := range SplitGroup(group) {
		if s == sel {
			return true
		}
	}
	return false
}
