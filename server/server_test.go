package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/visedit/bus"
	"github.com/hazyhaar/visedit/controller"
	"github.com/hazyhaar/visedit/dbopen"
	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/pagestore"
	"github.com/hazyhaar/visedit/sandbox"
)

type stubGenerator struct{ pages []page.Page }

func (g stubGenerator) Generate(context.Context, string) ([]page.Page, error) { return g.pages, nil }

func (g stubGenerator) EditByPrompt(_ context.Context, id int, _, _, _ string) (page.Page, error) {
	return page.Page{ID: id, HTML: "<p>rewritten</p>"}, nil
}

type fixture struct {
	url   string
	store *pagestore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &pagestore.Store{DB: dbopen.OpenMemory(t, dbopen.WithSchema(pagestore.Schema))}
	svc := pagestore.NewService(store, pagestore.WithGenerator(stubGenerator{pages: []page.Page{
		{Name: "Home", HTML: `<h1 id="title">Bakery</h1><p>Fresh bread</p>`, CSS: "h1 { color: navy; }"},
		{Name: "About", HTML: `<p>About us</p>`},
	}}))

	b := bus.New(bus.DefaultCapacity)
	sb := sandbox.NewStatic(func(d []byte) { b.Post(d) })
	ctl := controller.New(svc, sb, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()

	srv := httptest.NewServer(New(ctl).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		sb.Close()
		b.Close()
	})
	return &fixture{url: srv.URL, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, f.url+path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *fixture) ok(t *testing.T, method, path string, body any) map[string]any {
	t.Helper()
	resp, out := f.do(t, method, path, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s %s: status %d: %v", method, path, resp.StatusCode, out)
	}
	return out
}

func TestServer_VisualEditFlow(t *testing.T) {
	f := newFixture(t)

	st := f.ok(t, http.MethodPost, "/api/generate", map[string]string{"description": "a bakery"})
	if cur := st["current"].(map[string]any); cur["name"] != "Home" {
		t.Fatalf("current: %v", cur)
	}

	f.ok(t, http.MethodPost, "/api/visual-edit", map[string]bool{"on": true})
	st = f.ok(t, http.MethodPost, "/api/click", map[string]string{"selector": "#title"})
	if st["mode"] != "editing" {
		t.Fatalf("mode: %v", st["mode"])
	}
	sel := st["selected"].(map[string]any)
	if sel["selector"] != "#title" || sel["content"] != "Bakery" {
		t.Fatalf("selected: %v", sel)
	}
	if styles := sel["styles"].(map[string]any); styles["color"] != "rgb(0, 0, 128)" {
		t.Fatalf("styles: %v", styles)
	}

	res := f.ok(t, http.MethodPost, "/api/commit", map[string]any{
		"content": "Best Bakery",
		"styles":  map[string]string{"color": "#ff0000"},
	})
	if res["applied"] != true {
		t.Fatalf("commit: %v", res)
	}

	// The store sees the save once it completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, err := f.store.Get(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(p.HTML, "Best Bakery") {
			if !strings.Contains(p.HTML, `style="color: #ff0000"`) || !strings.Contains(p.CSS, "#title {") {
				t.Fatalf("stored page: %+v", p)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("save never reached the store: %+v", p)
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(f.url + "/api/markdown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var md bytes.Buffer
	md.ReadFrom(resp.Body)
	if !strings.Contains(md.String(), "# Best Bakery") {
		t.Fatalf("markdown: %q", md.String())
	}
}

func TestServer_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"toggle without page", http.MethodPost, "/api/visual-edit", map[string]bool{"on": true}, http.StatusConflict},
		{"missing toggle field", http.MethodPost, "/api/visual-edit", map[string]string{}, http.StatusUnprocessableEntity},
		{"open unknown page", http.MethodPost, "/api/pages/4/open", nil, http.StatusNotFound},
		{"open bad id", http.MethodPost, "/api/pages/x/open", nil, http.StatusUnprocessableEntity},
		{"bad selector", http.MethodPost, "/api/click", map[string]string{"selector": "div ~ p"}, http.StatusUnprocessableEntity},
		{"cancel without selection", http.MethodPost, "/api/cancel", nil, http.StatusConflict},
		{"dismiss unknown notice", http.MethodDelete, "/api/notices/ntc_x", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.code {
				t.Fatalf("status: got %d, want %d (%v)", resp.StatusCode, tt.code, out)
			}
			if out["error"] == nil {
				t.Fatalf("body: %v", out)
			}
		})
	}
}

func TestServer_ShortPrompt(t *testing.T) {
	f := newFixture(t)
	f.ok(t, http.MethodPost, "/api/generate", map[string]string{})

	resp, out := f.do(t, http.MethodPost, "/api/edit", map[string]string{"prompt": "hey"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d (%v)", resp.StatusCode, out)
	}

	st := f.ok(t, http.MethodPost, "/api/edit", map[string]string{"prompt": "rewrite it all"})
	if cur := st["current"].(map[string]any); cur["html"] != "<p>rewritten</p>" {
		t.Fatalf("current: %v", cur)
	}
}

func TestServer_HealthAndHeaders(t *testing.T) {
	f := newFixture(t)
	resp, out := f.do(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Trace-ID") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("headers: %v", resp.Header)
	}
}
