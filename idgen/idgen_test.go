package idgen

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	gen := Short(100)
	id := gen()
	if len(id) != 100 {
		t.Fatalf("Short(100): got length %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("Short: unexpected character %q in %q", c, id)
		}
	}
}

func TestUUIDv7_SortsByCreation(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if len(id) != 36 || strings.Count(id, "-") != 4 {
			t.Fatalf("UUIDv7: malformed %q", id)
		}
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestNoticeAndTrace(t *testing.T) {
	n := Notice()
	if !strings.HasPrefix(n, "ntc_") {
		t.Fatalf("notice: got %q", n)
	}
	if _, err := Parse(strings.TrimPrefix(n, "ntc_")); err != nil {
		t.Fatalf("notice suffix: %v", err)
	}

	tr := Trace()
	if !strings.HasPrefix(tr, "trc_") || len(tr) != 12 {
		t.Fatalf("trace: got %q", tr)
	}
}

func TestSequence(t *testing.T) {
	gen := Prefixed("ntc_", Sequence())
	if a, b := gen(), gen(); a != "ntc_1" || b != "ntc_2" {
		t.Fatalf("sequence: got %q, %q", a, b)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected an error")
	}
}
