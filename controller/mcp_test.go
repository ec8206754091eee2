package controller

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/visedit/audit"
)

func mcpSession(t *testing.T, c *Controller) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "visedit-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	c.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx, serverT)
	}()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
		<-done
	})
	return session
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, res.IsError
}

func TestMCP_EditFlow(t *testing.T) {
	h := newHarness(t, onePage(`<h1 id="t">Bakery</h1><p>Fresh bread</p>`))
	s := mcpSession(t, h.c)

	if text, isErr := callTool(t, s, "visedit_toggle", map[string]any{"on": true}); !isErr || !strings.Contains(text, "visedit_generate") {
		t.Fatalf("toggle without page: %q (error %v)", text, isErr)
	}

	callTool(t, s, "visedit_generate", map[string]any{"description": "a bakery"})
	callTool(t, s, "visedit_toggle", map[string]any{"on": true})

	text, isErr := callTool(t, s, "visedit_click", map[string]any{"selector": "body > p:nth-of-type(1)"})
	if isErr {
		t.Fatalf("click: %s", text)
	}
	var st struct {
		Mode     string `json:"mode"`
		Selected struct {
			Selector string `json:"selector"`
			Content  string `json:"content"`
		} `json:"selected"`
	}
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Mode != "editing" || st.Selected.Selector != "body > p:nth-of-type(1)" || st.Selected.Content != "Fresh bread" {
		t.Fatalf("state after click: %+v", st)
	}

	text, isErr = callTool(t, s, "visedit_commit", map[string]any{
		"content": "Warm bread",
		"styles":  map[string]any{"fontSize": "20px"},
	})
	if isErr {
		t.Fatalf("commit: %s", text)
	}
	var res struct {
		Applied  bool   `json:"applied"`
		Strategy string `json:"strategy"`
	}
	json.Unmarshal([]byte(text), &res)
	if !res.Applied || res.Strategy != "selector" {
		t.Fatalf("commit result: %s", text)
	}

	md, isErr := callTool(t, s, "visedit_page_markdown", map[string]any{})
	if isErr {
		t.Fatalf("markdown: %s", md)
	}
	if !strings.Contains(md, "# Bakery") || !strings.Contains(md, "Warm bread") {
		t.Fatalf("markdown: %q", md)
	}
}

func TestMCP_BadSelector(t *testing.T) {
	h := newHarness(t, onePage(`<p>x</p>`))
	s := mcpSession(t, h.c)

	callTool(t, s, "visedit_generate", map[string]any{})
	if _, isErr := callTool(t, s, "visedit_click", map[string]any{"selector": "p ~ q"}); !isErr {
		t.Fatal("click with an unsupported selector: want tool error")
	}
	if _, isErr := callTool(t, s, "visedit_cancel", map[string]any{}); !isErr {
		t.Fatal("cancel without selection: want tool error")
	}
}

type toolAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *toolAudit) Log(_ context.Context, e *audit.Entry) error {
	a.LogAsync(e)
	return nil
}

func (a *toolAudit) LogAsync(e *audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
}

func TestMCP_Audit(t *testing.T) {
	rec := &toolAudit{}
	h := newHarness(t, onePage(`<p>hello</p>`), WithAudit(rec))
	s := mcpSession(t, h.c)

	callTool(t, s, "visedit_generate", map[string]any{"description": "a bakery"})
	callTool(t, s, "visedit_cancel", map[string]any{})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.entries) != 2 {
		t.Fatalf("entries: %+v", rec.entries)
	}
	gen, cancel := rec.entries[0], rec.entries[1]
	if gen.Action != "visedit_generate" || gen.Transport != "mcp" || gen.Parameters != `{"description":"a bakery"}` || gen.Error != "" {
		t.Fatalf("generate entry: %+v", gen)
	}
	// Nothing was selected, so the call failed and the failure is recorded.
	if cancel.Action != "visedit_cancel" || cancel.Error == "" {
		t.Fatalf("cancel entry: %+v", cancel)
	}
}
