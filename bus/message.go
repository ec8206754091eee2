// CLAUDE:SUMMARY Versioned sandbox→controller message contract: ELEMENT_CLICK payload, decoding and noise classification.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/selector"
)

// Version is the protocol version both ends of the boundary are built with.
const Version = 1

// TypeElementClick is the only message type the sandbox emits.
const TypeElementClick = "ELEMENT_CLICK"

var (
	// ErrForeign marks a message that is not ours (unknown or missing type).
	ErrForeign = errors.New("bus: foreign message")
	// ErrVersion marks a message from another protocol version.
	ErrVersion = errors.New("bus: protocol version mismatch")
	// ErrMalformed marks a message of a known type with an invalid payload.
	ErrMalformed = errors.New("bus: malformed message")
)

// Message is a decoded sandbox message. The set of implementations is
// closed; consumers switch on the concrete type.
type Message interface {
	Type() string
	sealed()
}

// ElementClick reports a qualifying pointer interaction inside the sandbox.
type ElementClick struct {
	Selector    selector.Selector
	TagName     string
	Markup      string
	TextContent string
	Styles      page.Styles
}

func (ElementClick) Type() string { return TypeElementClick }
func (ElementClick) sealed()      {}

// Element converts the report into the selection the session holds.
func (m ElementClick) Element() page.Element {
	return page.Element{
		Selector:       m.Selector,
		TagName:        m.TagName,
		Content:        m.TextContent,
		Styles:         m.Styles,
		OriginalMarkup: m.Markup,
	}
}

// wire is the JSON shape crossing the boundary.
type wire struct {
	Type        string      `json:"type"`
	V           int         `json:"v"`
	Selector    string      `json:"selector,omitempty"`
	TagName     string      `json:"tagName,omitempty"`
	Markup      string      `json:"markup,omitempty"`
	TextContent string      `json:"textContent"`
	Styles      page.Styles `json:"styles"`
}

// Encode serialises a message into its wire form.
func Encode(m Message) ([]byte, error) {
	switch m := m.(type) {
	case ElementClick:
		return json.Marshal(wire{
			Type:        TypeElementClick,
			V:           Version,
			Selector:    m.Selector.String(),
			TagName:     m.TagName,
			Markup:      m.Markup,
			TextContent: m.TextContent,
			Styles:      m.Styles,
		})
	default:
		return nil, fmt.Errorf("bus: encode: unsupported message %T", m)
	}
}

// Decode validates and decodes a wire message. Anything that is not a
// well-formed message of this protocol version is rejected with one of
// ErrForeign, ErrVersion or ErrMalformed.
func Decode(data []byte) (Message, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForeign, err)
	}

	switch w.Type {
	case TypeElementClick:
	default:
		return nil, fmt.Errorf("%w: type %q", ErrForeign, w.Type)
	}

	if w.V != Version {
		return nil, fmt.Errorf("%w: got v%d, want v%d", ErrVersion, w.V, Version)
	}

	sel, err := selector.Parse(w.Selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.TagName == "" {
		return nil, fmt.Errorf("%w: empty tagName", ErrMalformed)
	}

	return ElementClick{
		Selector:    sel,
		TagName:     w.TagName,
		Markup:      w.Markup,
		TextContent: w.TextContent,
		Styles:      w.Styles,
	}, nil
}

// IsNoise reports whether err classifies a message that must be dropped
// silently.
func IsNoise(err error) bool {
	return errors.Is(err, ErrForeign) || errors.Is(err, ErrVersion) || errors.Is(err, ErrMalformed)
}
