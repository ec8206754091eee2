package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/visedit/kit"
)

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	for name, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}
}

func TestSecurityHeaders_SkipsEmpty(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XFrameOptions: "SAMEORIGIN"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Fatal("empty CSP should not be set")
	}
	if rec.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatalf("X-Frame-Options: got %q", rec.Header().Get("X-Frame-Options"))
	}
}

func TestMaxJSONBody(t *testing.T) {
	var readErr error
	h := MaxJSONBody(8)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/commit", strings.NewReader(`{"content":"far too long"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	serve(h, req)
	if readErr == nil {
		t.Fatal("json body over the limit: want read error")
	}

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`far too long for json`))
	req.Header.Set("Content-Type", "text/plain")
	serve(h, req)
	if readErr != nil {
		t.Fatalf("non-json body: %v", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var ctxTrace, transport string
	var hasLogger bool
	h := TraceID(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxTrace = kit.GetTraceID(r.Context())
		transport = kit.GetTransport(r.Context())
		_, hasLogger = r.Context().Value(LoggerKey).(*slog.Logger)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	got := rec.Header().Get("X-Trace-ID")
	if !strings.HasPrefix(got, "trc_") || got != ctxTrace {
		t.Fatalf("trace id: header %q, context %q", got, ctxTrace)
	}
	if transport != kit.TransportHTTP || !hasLogger {
		t.Fatalf("context: transport %q, logger %v", transport, hasLogger)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "upstream-42")
	if rec := serve(h, req); rec.Header().Get("X-Trace-ID") != "upstream-42" {
		t.Fatalf("incoming trace id not reused: %q", rec.Header().Get("X-Trace-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "bad id\n")
	if rec := serve(h, req); !strings.HasPrefix(rec.Header().Get("X-Trace-ID"), "trc_") {
		t.Fatalf("malformed trace id kept: %q", rec.Header().Get("X-Trace-ID"))
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	serve(h, httptest.NewRequest(http.MethodHead, "/health", nil))
	if method != http.MethodGet {
		t.Fatalf("method: got %q, want GET", method)
	}
}
