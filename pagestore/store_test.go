package pagestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/visedit/dbopen"
	"github.com/hazyhaar/visedit/page"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return &Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(Schema))}
}

func TestStore_ReplaceAllNumbersFromZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceAll(ctx, []page.Page{{Name: "Old", HTML: "<p>x</p>"}, {Name: "Older"}, {Name: "Oldest"}}, "a{}"); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	got, err := s.ReplaceAll(ctx, []page.Page{{ID: 9, Name: "Home", HTML: "<h1>Hi</h1>"}, {Name: "About", CSS: "p{}"}}, "body{}")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	want := []page.Page{
		{ID: 0, Name: "Home", HTML: "<h1>Hi</h1>"},
		{ID: 1, Name: "About", CSS: "p{}"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("returned pages (-want +got):\n%s", diff)
	}

	listed, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(want, listed); diff != "" {
		t.Fatalf("listed pages (-want +got):\n%s", diff)
	}

	css, err := s.GlobalCSS(ctx)
	if err != nil || css != "body{}" {
		t.Fatalf("global css: got %q, %v", css, err)
	}
}

func TestStore_ListEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("list: got %#v, want empty non-nil slice", got)
	}
}

func TestStore_GetAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.ReplaceAll(ctx, []page.Page{{Name: "Home", HTML: "<p>a</p>", CSS: ""}}, "")

	if err := s.UpdateContent(ctx, 0, `<p style="color: red">a</p>`, "p{}"); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err := s.Get(ctx, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name != "Home" || p.HTML != `<p style="color: red">a</p>` || p.CSS != "p{}" {
		t.Fatalf("get: got %+v", p)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, 3); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("get: got %v, want ErrPageNotFound", err)
	}
	if err := s.UpdateContent(ctx, 3, "", ""); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("update: got %v, want ErrPageNotFound", err)
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "pages.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.ReplaceAll(context.Background(), []page.Page{{Name: "Home"}}, ""); err != nil {
		t.Fatalf("replace: %v", err)
	}
	pages, _ := s.List(context.Background())
	if len(pages) != 1 {
		t.Fatalf("pages: got %d, want 1", len(pages))
	}
}
