package bus

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/selector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleClick() ElementClick {
	return ElementClick{
		Selector:    selector.MustParse("body > div:nth-of-type(2) > p:nth-of-type(1)"),
		TagName:     "p",
		Markup:      "<p>Hello</p>",
		TextContent: "Hello",
		Styles: page.Styles{
			Color:           "rgb(0, 0, 0)",
			BackgroundColor: "rgba(0, 0, 0, 0)",
			FontSize:        "16px",
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(sampleClick())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := msg.(ElementClick)
	if !ok {
		t.Fatalf("decode: got %T, want ElementClick", msg)
	}
	if diff := cmp.Diff(sampleClick(), got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Noise(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `hello`, ErrForeign},
		{"no type", `{"v":1}`, ErrForeign},
		{"other type", `{"type":"RESIZE","v":1}`, ErrForeign},
		{"old version", `{"type":"ELEMENT_CLICK","v":0,"selector":"#a","tagName":"p"}`, ErrVersion},
		{"future version", `{"type":"ELEMENT_CLICK","v":2,"selector":"#a","tagName":"p"}`, ErrVersion},
		{"bad selector", `{"type":"ELEMENT_CLICK","v":1,"selector":"p >","tagName":"p"}`, ErrMalformed},
		{"missing selector", `{"type":"ELEMENT_CLICK","v":1,"tagName":"p"}`, ErrMalformed},
		{"missing tag", `{"type":"ELEMENT_CLICK","v":1,"selector":"#a"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if !IsNoise(err) {
				t.Fatalf("IsNoise(%v) = false", err)
			}
		})
	}
}

func TestBus_PostDropsNoise(t *testing.T) {
	b := New(4, WithLogger(quiet()))
	defer b.Close()

	if b.Post([]byte(`{"type":"webpackOk"}`)) {
		t.Fatal("foreign message was enqueued")
	}
	data, _ := Encode(sampleClick())
	if !b.Post(data) {
		t.Fatal("valid message was not enqueued")
	}

	select {
	case msg := <-b.C():
		if msg.Type() != TypeElementClick {
			t.Fatalf("type: got %q", msg.Type())
		}
	default:
		t.Fatal("no message delivered")
	}

	st := b.Stats()
	if st.Noise != 1 || st.Delivered != 1 || st.Dropped != 0 {
		t.Fatalf("stats: got %+v", st)
	}
}

func TestBus_SendNeverBlocks(t *testing.T) {
	b := New(2, WithLogger(quiet()))
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Send(sampleClick())
	}
	st := b.Stats()
	if st.Delivered != 2 || st.Dropped != 3 {
		t.Fatalf("stats: got %+v, want 2 delivered 3 dropped", st)
	}
}

func TestBus_CloseDrains(t *testing.T) {
	b := New(2, WithLogger(quiet()))
	b.Send(sampleClick())
	b.Close()
	b.Close()

	if b.Send(sampleClick()) {
		t.Fatal("send after close succeeded")
	}

	n := 0
	for range b.C() {
		n++
	}
	if n != 1 {
		t.Fatalf("drained %d messages, want 1", n)
	}
}

func TestElementClick_Element(t *testing.T) {
	m := sampleClick()
	el := m.Element()
	if el.OriginalMarkup != m.Markup || el.Content != m.TextContent || !el.Selector.Equal(m.Selector) {
		t.Fatalf("element: got %+v", el)
	}
}
