// CLAUDE:SUMMARY Shared visual-edit types: Page, Styles snapshot, selected Element and the submitted Edit.
// Package page defines the types exchanged between the sandbox, the edit
// session, the patch generator and persistence. Any consumer of the
// visual-edit pipeline imports this package.
package page

import (
	"encoding/json"

	"github.com/hazyhaar/visedit/selector"
)

// Page is a canonical document: the html/css pair persisted by the
// backend and fed to the sandbox.
type Page struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	HTML string `json:"html"`
	CSS  string `json:"css"`
}

// Styles holds the three editable properties as CSS value strings.
type Styles struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	FontSize        string `json:"fontSize"`
}

// Declarations returns the styles as ordered (property, value) pairs,
// skipping empty values.
func (s Styles) Declarations() [][2]string {
	var out [][2]string
	for _, d := range [][2]string{
		{"color", s.Color},
		{"background-color", s.BackgroundColor},
		{"font-size", s.FontSize},
	} {
		if d[1] != "" {
			out = append(out, d)
		}
	}
	return out
}

// Element is the element currently selected for editing.
type Element struct {
	Selector selector.Selector
	TagName  string
	Content  string
	Styles   Styles
	// OriginalMarkup is the serialised outer markup at selection time.
	OriginalMarkup string
}

// SelectorString is the CSS form of the element selector.
func (e Element) SelectorString() string { return e.Selector.String() }

type elementJSON struct {
	Selector       string `json:"selector"`
	TagName        string `json:"tagName"`
	Content        string `json:"content"`
	Styles         Styles `json:"styles"`
	OriginalMarkup string `json:"originalMarkup"`
}

// MarshalJSON renders the selector in its CSS form.
func (e Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(elementJSON{
		Selector:       e.Selector.String(),
		TagName:        e.TagName,
		Content:        e.Content,
		Styles:         e.Styles,
		OriginalMarkup: e.OriginalMarkup,
	})
}

// UnmarshalJSON parses the CSS form of the selector.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw elementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	sel, err := selector.Parse(raw.Selector)
	if err != nil {
		return err
	}
	*e = Element{
		Selector:       sel,
		TagName:        raw.TagName,
		Content:        raw.Content,
		Styles:         raw.Styles,
		OriginalMarkup: raw.OriginalMarkup,
	}
	return nil
}

// Edit carries the values submitted from the edit form.
type Edit struct {
	Content string `json:"content"`
	Styles  Styles `json:"styles"`
}
