// Package session holds the visual-edit state machine of the page on
// display: Viewing, Armed (clicks are accepted) and Editing (one element
// is selected and awaits a commit or a cancel).
//
// A Session is not safe for concurrent use. It is owned by the controller
// loop.
package session

import (
	"errors"

	"github.com/hazyhaar/visedit/page"
)

// Mode is the session state.
type Mode int

const (
	Viewing Mode = iota
	Armed
	Editing
)

func (m Mode) String() string {
	switch m {
	case Viewing:
		return "viewing"
	case Armed:
		return "armed"
	case Editing:
		return "editing"
	default:
		return "unknown"
	}
}

// MarshalText renders the mode name in JSON payloads.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

var (
	// ErrNotArmed is returned by Select while visual-edit mode is off.
	ErrNotArmed = errors.New("session: visual edit mode is off")
	// ErrNotEditing is returned by Cancel and Commit with no selection.
	ErrNotEditing = errors.New("session: no element selected")
)

// Session is the edit session of one displayed page.
type Session struct {
	mode     Mode
	selected *page.Element
}

// New returns a session in Viewing mode.
func New() *Session { return &Session{} }

// Mode returns the current state.
func (s *Session) Mode() Mode { return s.mode }

// Selected returns the pending element, if any.
func (s *Session) Selected() (page.Element, bool) {
	if s.selected == nil {
		return page.Element{}, false
	}
	return *s.selected, true
}

// Arm turns visual-edit mode on. It is a no-op unless Viewing.
func (s *Session) Arm() {
	if s.mode == Viewing {
		s.mode = Armed
	}
}

// Select records a clicked element. The newest selection wins while
// Editing.
func (s *Session) Select(el page.Element) error {
	if s.mode == Viewing {
		return ErrNotArmed
	}
	s.selected = &el
	s.mode = Editing
	return nil
}

// Cancel discards the pending element and goes back to Armed.
func (s *Session) Cancel() error {
	if s.mode != Editing {
		return ErrNotEditing
	}
	s.selected = nil
	s.mode = Armed
	return nil
}

// Commit hands out the pending element and goes back to Armed. The
// session stays Armed whatever happens to the patch afterwards.
func (s *Session) Commit() (page.Element, error) {
	if s.mode != Editing || s.selected == nil {
		return page.Element{}, ErrNotEditing
	}
	el := *s.selected
	s.selected = nil
	s.mode = Armed
	return el, nil
}

// Disarm turns visual-edit mode off from any state.
func (s *Session) Disarm() {
	s.selected = nil
	s.mode = Viewing
}

// Reset returns the session to its initial state. Called when a different
// page is displayed.
func (s *Session) Reset() { s.Disarm() }
