package patch

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/visedit/selector"
)

// span is the byte range of one element in the canonical HTML, with the
// start tag as parsed.
type span struct {
	start, end int
	tag        string
	attrs      []html.Attribute
	void       bool
}

// frame is an open element during the scan.
type frame struct {
	tag    string
	start  int
	attrs  []html.Attribute
	counts map[string]int
	onPath bool
	target bool
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// closesP lists start tags that implicitly end an open <p>.
var closesP = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"details": true, "div": true, "dl": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "main": true, "menu": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"ul": true,
}

// document-level tags are merged away when the page is mounted in the
// sandbox body, so they never appear on a selector path.
var documentTags = map[string]bool{"html": true, "head": true, "body": true}

// scanner walks canonical HTML token by token, rebuilding the element
// tree the sandbox parser would produce closely enough to count same-tag
// siblings, and records the byte span of the element sel designates.
type scanner struct {
	sel    selector.Selector
	stack  []*frame
	offset int
	found  *span
	// claimed is set once the target element has been opened.
	claimed bool
}

// locate returns the byte span of the element designated by sel in src.
func locate(src string, sel selector.Selector) (span, bool) {
	if len(sel) == 0 {
		return span{}, false
	}
	segs := sel
	if segs[0].IsBody() {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return span{}, false
	}
	s := &scanner{
		sel:   segs,
		stack: []*frame{{tag: "body", counts: map[string]int{}, onPath: true}},
	}
	return s.run(src)
}

func (s *scanner) run(src string) (span, bool) {
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return span{}, false
			}
			s.closeFrom(1, len(src))
			return s.result()
		}
		before := s.offset
		s.offset += len(z.Raw())
		tok := z.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if documentTags[tok.Data] {
				continue
			}
			s.implicitClose(tok.Data, before)
			if s.found != nil {
				return s.result()
			}
			s.implicitOpen(tok.Data, before)
			selfClosing := tt == html.SelfClosingTagToken && s.inForeign()
			if voidElements[tok.Data] || selfClosing {
				s.leaf(tok, before)
			} else {
				s.push(tok, before)
			}
		case html.EndTagToken:
			if documentTags[tok.Data] {
				continue
			}
			s.popTo(tok.Data, before, s.offset)
		}
		if s.found != nil {
			return s.result()
		}
	}
}

func (s *scanner) result() (span, bool) {
	if s.found == nil {
		return span{}, false
	}
	return *s.found, true
}

func (s *scanner) top() *frame { return s.stack[len(s.stack)-1] }

// matches reports whether a new child of the top frame with the given tag
// and same-tag index sits on the selector path, and whether it is the
// target.
func (s *scanner) matches(tok html.Token, idx int) (onPath, target bool) {
	if s.claimed {
		return false, false
	}
	if s.sel.IsID() {
		for _, a := range tok.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == s.sel[0].ID {
				return true, true
			}
		}
		return false, false
	}
	parent := s.top()
	depth := len(s.stack) - 1
	if !parent.onPath || depth >= len(s.sel) {
		return false, false
	}
	seg := s.sel[depth]
	if seg.ID != "" || seg.Tag != tok.Data || seg.Index != idx {
		return false, false
	}
	return true, depth == len(s.sel)-1
}

func (s *scanner) count(tag string) int {
	parent := s.top()
	parent.counts[tag]++
	return parent.counts[tag]
}

func (s *scanner) push(tok html.Token, at int) {
	onPath, target := s.matches(tok, s.count(tok.Data))
	s.claimed = s.claimed || target
	s.stack = append(s.stack, &frame{
		tag:    tok.Data,
		start:  at,
		attrs:  tok.Attr,
		counts: map[string]int{},
		onPath: onPath,
		target: target,
	})
}

func (s *scanner) leaf(tok html.Token, at int) {
	if _, target := s.matches(tok, s.count(tok.Data)); target {
		s.found = &span{start: at, end: s.offset, tag: tok.Data, attrs: tok.Attr, void: true}
	}
}

// pushImplicit opens an element the parser inserts without a source tag
// (tbody, tr). Such an element can be on the path but never a target.
func (s *scanner) pushImplicit(tag string, at int) {
	onPath, target := s.matches(html.Token{Data: tag}, s.count(tag))
	s.stack = append(s.stack, &frame{
		tag:    tag,
		start:  at,
		counts: map[string]int{},
		onPath: onPath && !target,
	})
}

// pop removes the top frame. end is the offset where its markup stops.
func (s *scanner) pop(end int) {
	f := s.top()
	s.stack = s.stack[:len(s.stack)-1]
	if f.target && s.found == nil {
		s.found = &span{start: f.start, end: end, tag: f.tag, attrs: f.attrs}
	}
}

// closeFrom pops every frame at depth >= i.
func (s *scanner) closeFrom(i, end int) {
	for len(s.stack) > i {
		s.pop(end)
	}
}

// popTo handles an end tag: it closes the nearest open element of that
// tag, along with anything opened inside it. Stray end tags are ignored.
func (s *scanner) popTo(tag string, before, after int) {
	for i := len(s.stack) - 1; i >= 1; i-- {
		if s.stack[i].tag != tag {
			continue
		}
		s.closeFrom(i+1, before)
		s.pop(after)
		return
	}
}

// closeNearest closes the nearest open element named in tags, unless a
// boundary element is met first.
func (s *scanner) closeNearest(tags, boundary map[string]bool, at int) {
	for i := len(s.stack) - 1; i >= 1; i-- {
		t := s.stack[i].tag
		if tags[t] {
			s.closeFrom(i, at)
			return
		}
		if boundary[t] {
			return
		}
	}
}

var (
	pScope     = map[string]bool{"button": true, "table": true, "td": true, "th": true, "caption": true, "template": true}
	listScope  = map[string]bool{"ul": true, "ol": true, "table": true, "td": true, "th": true, "template": true}
	rowScope   = map[string]bool{"table": true, "template": true}
	cellScope  = map[string]bool{"tr": true, "table": true, "template": true}
	selectTags = map[string]bool{"select": true, "datalist": true}
)

// implicitClose applies the optional end tag rules triggered by a start
// tag, before it is opened.
func (s *scanner) implicitClose(tag string, at int) {
	if closesP[tag] {
		s.closeNearest(map[string]bool{"p": true}, pScope, at)
	}
	switch tag {
	case "li":
		s.closeNearest(map[string]bool{"li": true}, listScope, at)
	case "dt", "dd":
		s.closeNearest(map[string]bool{"dt": true, "dd": true}, listScope, at)
	case "option", "optgroup":
		s.closeNearest(map[string]bool{"option": true}, selectTags, at)
	case "tr":
		s.closeNearest(map[string]bool{"tr": true}, rowScope, at)
	case "td", "th":
		s.closeNearest(map[string]bool{"td": true, "th": true}, cellScope, at)
	case "tbody", "thead", "tfoot":
		s.closeNearest(map[string]bool{"tbody": true, "thead": true, "tfoot": true}, rowScope, at)
	}
}

// implicitOpen inserts the table section and row elements the parser
// adds around bare rows and cells.
func (s *scanner) implicitOpen(tag string, at int) {
	switch tag {
	case "tr":
		if s.top().tag == "table" {
			s.pushImplicit("tbody", at)
		}
	case "td", "th":
		switch s.top().tag {
		case "table":
			s.pushImplicit("tbody", at)
			s.pushImplicit("tr", at)
		case "tbody", "thead", "tfoot":
			s.pushImplicit("tr", at)
		}
	}
}

func (s *scanner) inForeign() bool {
	for i := len(s.stack) - 1; i >= 1; i-- {
		if t := s.stack[i].tag; t == "svg" || t == "math" {
			return true
		}
	}
	return false
}

// anchor finds the first occurrence of markup in src and reads its start
// tag.
func anchor(src, markup string) (span, bool) {
	if strings.TrimSpace(markup) == "" {
		return span{}, false
	}
	i := strings.Index(src, markup)
	if i < 0 {
		return span{}, false
	}
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return span{}, false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			return span{
				start: i,
				end:   i + len(markup),
				tag:   tok.Data,
				attrs: tok.Attr,
				void:  voidElements[tok.Data],
			}, true
		}
	}
}
