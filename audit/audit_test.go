package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/visedit/dbopen"
	"github.com/hazyhaar/visedit/idgen"
	"github.com/hazyhaar/visedit/kit"
)

func newTestLogger(t *testing.T, opts ...Option) *SQLiteLogger {
	t.Helper()
	db := dbopen.OpenMemory(t)
	l := NewSQLiteLogger(db, opts...)
	if err := l.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func count(t *testing.T, l *SQLiteLogger, action string) int {
	t.Helper()
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM audit_log WHERE action = ?`, action).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestLog_FillsDefaults(t *testing.T) {
	l := newTestLogger(t, WithIDGenerator(idgen.Prefixed("aud_", idgen.Sequence())))

	e := &Entry{Action: "generate", Parameters: `{"description":"bakery"}`}
	if err := l.Log(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if e.EntryID != "aud_1" || e.Timestamp == 0 || e.Status != StatusSuccess || e.Transport != "http" {
		t.Fatalf("defaults: %+v", e)
	}

	failed := &Entry{Action: "save", Error: "backend down"}
	l.Log(context.Background(), failed)
	if failed.Status != StatusError {
		t.Fatalf("status: got %q", failed.Status)
	}
}

func TestLogAsync_FlushedOnClose(t *testing.T) {
	l := newTestLogger(t)
	for range 50 {
		l.LogAsync(&Entry{Action: "commit"})
	}
	l.Close()
	if n := count(t, l, "commit"); n != 50 {
		t.Fatalf("entries: got %d, want 50", n)
	}

	// Dropped, not panicking.
	l.LogAsync(&Entry{Action: "late"})
	if n := count(t, l, "late"); n != 0 {
		t.Fatalf("late entries: got %d", n)
	}
}

func TestLogAsync_TickerFlush(t *testing.T) {
	l := newTestLogger(t)
	l.LogAsync(&Entry{Action: "toggle"})

	deadline := time.Now().Add(2 * time.Second)
	for count(t, l, "toggle") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("entry never flushed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRecent(t *testing.T) {
	clock := time.UnixMilli(1_000)
	l := newTestLogger(t, WithClock(func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}))
	ctx := context.Background()
	for _, a := range []string{"generate", "open", "commit"} {
		if err := l.Log(ctx, &Entry{Action: a}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Action != "commit" || got[1].Action != "open" {
		t.Fatalf("recent: %+v", got)
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLogger(t)
	errFail := errors.New("selector not found")

	ok := Middleware(l, "visedit_click")(func(context.Context, any) (any, error) { return "done", nil })
	fail := Middleware(l, "visedit_commit")(func(context.Context, any) (any, error) { return nil, errFail })

	ctx := kit.WithTraceID(kit.WithTransport(context.Background(), kit.TransportMCP), "trc_abc")
	if resp, err := ok(ctx, map[string]string{"selector": "#title"}); err != nil || resp != "done" {
		t.Fatalf("ok: %v %v", resp, err)
	}
	if _, err := fail(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("fail: %v", err)
	}
	l.Close()

	got, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	byAction := map[string]Entry{}
	for _, e := range got {
		byAction[e.Action] = e
	}

	click := byAction["visedit_click"]
	if click.Transport != kit.TransportMCP || click.TraceID != "trc_abc" || click.Parameters != `{"selector":"#title"}` || click.Status != StatusSuccess {
		t.Fatalf("click entry: %+v", click)
	}
	commit := byAction["visedit_commit"]
	if commit.Status != StatusError || commit.Error != "selector not found" || commit.Parameters != "" {
		t.Fatalf("commit entry: %+v", commit)
	}
}
