package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/visedit/page"
)

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		var req struct{ Description string }
		json.NewDecoder(r.Body).Decode(&req)
		if req.Description != "a bakery" {
			t.Errorf("description: got %q", req.Description)
		}
		w.Write([]byte(`{"status":"success","pages":[{"name":"Home","html":"<h1>Hi</h1>","css":""},{"name":"About","html":"<p/>","css":"p{}"}]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).Generate(context.Background(), "a bakery")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := []page.Page{
		{ID: 0, Name: "Home", HTML: "<h1>Hi</h1>"},
		{ID: 1, Name: "About", HTML: "<p/>", CSS: "p{}"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_FetchPageNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Page not found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchPage(context.Background(), 4)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if apiErr.Status != 404 || apiErr.Detail != "Page not found" || !IsNotFound(err) {
		t.Fatalf("api error: %+v", apiErr)
	}
}

func TestClient_EditByPromptValidatesBeforeIO(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	c := New(srv.URL)

	if _, err := c.EditByPrompt(context.Background(), -1, "make it blue", "", ""); !errors.Is(err, ErrInvalidPageID) {
		t.Fatalf("negative id: got %v", err)
	}
	if _, err := c.EditByPrompt(context.Background(), 0, "blue", "", ""); !errors.Is(err, ErrPromptTooShort) {
		t.Fatalf("short prompt: got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("server hit %d times", hits.Load())
	}
}

func TestClient_EditByPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["page_id"] != float64(2) || req["edit_prompt"] != "make it blue" || req["current_html"] != "<p>x</p>" {
			t.Errorf("request body: %v", req)
		}
		w.Write([]byte(`{"status":"success","page":{"html":"<p style=\"color:blue\">x</p>","css":""}}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).EditByPrompt(context.Background(), 2, "make it blue", "<p>x</p>", "")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.ID != 2 || got.HTML != `<p style="color:blue">x</p>` {
		t.Fatalf("page: %+v", got)
	}
}

func TestClient_SaveVisualEdit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/pages/3" {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["html"] != "<p>h</p>" || body["css"] != "p{}" {
			t.Errorf("body: %v", body)
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	if err := New(srv.URL).SaveVisualEdit(context.Background(), 3, "<p>h</p>", "p{}"); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestDetail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"detail":"Page not found"}`, "Page not found"},
		{`{"detail":[{"loc":["body","edit_prompt"],"msg":"too short"},{"msg":"bad id"}]}`, "too short; bad id"},
		{`Internal Server Error`, "Internal Server Error"},
		{`{"detail":{"code":1}}`, `{"code":1}`},
	}
	for _, tt := range tests {
		if got := detail([]byte(tt.in)); got != tt.want {
			t.Errorf("detail(%s): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
