// CLAUDE:SUMMARY Positional element selectors: resolve a node to a body-rooted same-tag-index path, locate it again, parse and render the CSS form.
// Package selector computes and re-resolves positional identifiers for
// elements of an HTML document.
//
// A Selector is either a bare identifier ("#hero") or a path from the body
// sentinel down to the target where every step carries the tag name and
// the 1-based index among preceding siblings of the same tag:
//
//	body > section:nth-of-type(1) > p:nth-of-type(2)
//
// Counting same-tag siblings only keeps the path stable when siblings of a
// different tag are inserted. The same algorithm runs inside the sandbox
// (instrument.js) so both sides of the boundary produce identical strings.
package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Delimiter separates path segments in the rendered form.
const Delimiter = " > "

var (
	// ErrNotFound is returned by Locate when a segment has no matching node.
	ErrNotFound = errors.New("selector: not found")
	// ErrSyntax is returned by Parse for malformed selector strings.
	ErrSyntax = errors.New("selector: syntax error")
)

// Segment is one step of a Selector.
type Segment struct {
	ID    string // set for identifier segments
	Tag   string // lower-case tag name; "body" for the sentinel
	Index int    // 1-based same-tag sibling index; 0 for ID and body segments
}

// IsBody reports whether s is the body sentinel.
func (s Segment) IsBody() bool { return s.ID == "" && s.Tag == "body" && s.Index == 0 }

func (s Segment) String() string {
	switch {
	case s.ID != "":
		return "#" + EscapeIdent(s.ID)
	case s.IsBody():
		return "body"
	default:
		return fmt.Sprintf("%s:nth-of-type(%d)", s.Tag, s.Index)
	}
}

// Selector is an ordered path from the document root to a target node.
type Selector []Segment

// String renders the selector as a CSS selector.
func (sel Selector) String() string {
	parts := make([]string, len(sel))
	for i, s := range sel {
		parts[i] = s.String()
	}
	return strings.Join(parts, Delimiter)
}

// IsID reports whether sel is a bare identifier selector.
func (sel Selector) IsID() bool { return len(sel) == 1 && sel[0].ID != "" }

// Equal reports whether both selectors designate the same path.
func (sel Selector) Equal(other Selector) bool {
	if len(sel) != len(other) {
		return false
	}
	for i := range sel {
		if sel[i] != other[i] {
			return false
		}
	}
	return true
}

// Resolve computes the selector of an element node. Non-element nodes
// resolve to nil.
func Resolve(n *html.Node) Selector {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if id := attr(n, "id"); id != "" {
		return Selector{{ID: id}}
	}

	var path Selector
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if isBody(cur) {
			path = append(path, Segment{Tag: "body"})
			break
		}
		path = append(path, Segment{Tag: tagName(cur), Index: sameTagIndex(cur)})
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Locate finds the node designated by sel under root.
func Locate(root *html.Node, sel Selector) (*html.Node, error) {
	if root == nil || len(sel) == 0 {
		return nil, ErrNotFound
	}
	if sel.IsID() {
		if n := findByID(root, sel[0].ID); n != nil {
			return n, nil
		}
		return nil, fmt.Errorf("%w: #%s", ErrNotFound, sel[0].ID)
	}

	cur := root
	segs := sel
	if segs[0].IsBody() {
		cur = findBody(root)
		if cur == nil {
			return nil, fmt.Errorf("%w: no body", ErrNotFound)
		}
		segs = segs[1:]
	}

	for depth, seg := range segs {
		if seg.ID != "" || seg.Index < 1 {
			return nil, fmt.Errorf("%w: segment %d (%s) is not positional", ErrNotFound, depth, seg)
		}
		next := nthOfType(cur, seg.Tag, seg.Index)
		if next == nil {
			return nil, fmt.Errorf("%w: segment %d (%s)", ErrNotFound, depth, seg)
		}
		cur = next
	}
	return cur, nil
}

// Parse reads the CSS form produced by String. The legacy
// "tag:nth-child(n)" form is accepted and read as a same-tag index, and a
// bare "tag" step means index 1.
func Parse(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrSyntax)
	}
	if strings.HasPrefix(s, "#") {
		seg, err := parseSegment(s)
		if err != nil {
			return nil, err
		}
		return Selector{seg}, nil
	}

	var sel Selector
	for _, raw := range strings.Split(s, ">") {
		part := strings.TrimSpace(raw)
		seg, err := parseSegment(part)
		if err != nil {
			return nil, err
		}
		sel = append(sel, seg)
	}

	for i, seg := range sel {
		if seg.ID != "" && len(sel) > 1 {
			return nil, fmt.Errorf("%w: identifier must stand alone: %q", ErrSyntax, s)
		}
		if seg.IsBody() && i != 0 {
			return nil, fmt.Errorf("%w: body must be the first segment: %q", ErrSyntax, s)
		}
	}
	return sel, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Selector {
	sel, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

func parseSegment(part string) (Segment, error) {
	if part == "" {
		return Segment{}, fmt.Errorf("%w: empty segment", ErrSyntax)
	}
	if strings.HasPrefix(part, "#") {
		id, err := UnescapeIdent(part[1:])
		if err != nil || id == "" {
			return Segment{}, fmt.Errorf("%w: bad identifier %q", ErrSyntax, part)
		}
		return Segment{ID: id}, nil
	}

	tag, pseudo, hasPseudo := strings.Cut(part, ":")
	tag = strings.ToLower(strings.TrimSpace(tag))
	if !validTag(tag) {
		return Segment{}, fmt.Errorf("%w: bad tag %q", ErrSyntax, part)
	}
	if !hasPseudo {
		if tag == "body" {
			return Segment{Tag: "body"}, nil
		}
		return Segment{Tag: tag, Index: 1}, nil
	}

	var arg string
	switch {
	case strings.HasPrefix(pseudo, "nth-of-type(") && strings.HasSuffix(pseudo, ")"):
		arg = pseudo[len("nth-of-type(") : len(pseudo)-1]
	case strings.HasPrefix(pseudo, "nth-child(") && strings.HasSuffix(pseudo, ")"):
		arg = pseudo[len("nth-child(") : len(pseudo)-1]
	default:
		return Segment{}, fmt.Errorf("%w: unsupported pseudo-class %q", ErrSyntax, part)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || idx < 1 {
		return Segment{}, fmt.Errorf("%w: bad index in %q", ErrSyntax, part)
	}
	return Segment{Tag: tag, Index: idx}, nil
}

func validTag(tag string) bool {
	if tag == "" {
		return false
	}
	for i, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func sameTagIndex(n *html.Node) int {
	idx := 1
	tag := tagName(n)
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, tag) {
			idx++
		}
	}
	return idx
}

func nthOfType(parent *html.Node, tag string, idx int) *html.Node {
	count := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !strings.EqualFold(c.Data, tag) {
			continue
		}
		count++
		if count == idx {
			return c
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func findBody(n *html.Node) *html.Node {
	if isBody(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

func isBody(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.Body || strings.EqualFold(n.Data, "body"))
}

func tagName(n *html.Node) string { return strings.ToLower(n.Data) }

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
