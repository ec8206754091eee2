package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/visedit/audit"
	"github.com/hazyhaar/visedit/kit"
	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/selector"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders the displayed page as Markdown.
func (c *Controller) Markdown(ctx context.Context) (string, error) {
	var src string
	if _, err := c.apply(ctx, func(s *state) error {
		p, ok := s.page()
		if !ok {
			return ErrNoPage
		}
		src = p.HTML
		return nil
	}); err != nil {
		return "", err
	}
	md, err := mdConverter.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("controller: markdown: %w", err)
	}
	return md, nil
}

// RegisterMCP registers the visual-edit tools on an MCP server.
func (c *Controller) RegisterMCP(srv *mcp.Server) {
	tools := []struct {
		tool     *mcp.Tool
		endpoint kit.Endpoint
		decode   kit.MCPDecoder
	}{
		{
			&mcp.Tool{
				Name:        "visedit_state",
				Description: "Current pages, displayed page, edit mode, selected element and notices.",
				InputSchema: kit.InputSchema(map[string]any{}),
			},
			func(ctx context.Context, _ any) (any, error) { return c.State(ctx) },
			kit.NoArgs,
		},
		{
			&mcp.Tool{
				Name:        "visedit_generate",
				Description: "Generate a new site from a description and display its first page.",
				InputSchema: kit.InputSchema(map[string]any{
					"description": map[string]any{"type": "string", "description": "What the site is about"},
				}),
			},
			func(ctx context.Context, req any) (any, error) {
				return c.Generate(ctx, req.(*generateReq).Description)
			},
			kit.DecodeArgs[generateReq](),
		},
		{
			&mcp.Tool{
				Name:        "visedit_open",
				Description: "Display a page by ID. The edit session starts over.",
				InputSchema: kit.InputSchema(map[string]any{
					"page_id": map[string]any{"type": "integer", "minimum": 0},
				}, "page_id"),
			},
			func(ctx context.Context, req any) (any, error) {
				return c.Open(ctx, req.(*openReq).PageID)
			},
			kit.DecodeArgs[openReq](),
		},
		{
			&mcp.Tool{
				Name:        "visedit_edit_prompt",
				Description: "Rewrite the displayed page from a natural-language instruction (5 characters at least).",
				InputSchema: kit.InputSchema(map[string]any{
					"prompt": map[string]any{"type": "string", "minLength": 5},
				}, "prompt"),
			},
			func(ctx context.Context, req any) (any, error) {
				return c.EditByPrompt(ctx, req.(*promptReq).Prompt)
			},
			kit.DecodeArgs[promptReq](),
		},
		{
			&mcp.Tool{
				Name:        "visedit_toggle",
				Description: "Turn visual-edit mode on or off. Off discards a pending selection.",
				InputSchema: kit.InputSchema(map[string]any{
					"on": map[string]any{"type": "boolean"},
				}, "on"),
			},
			func(ctx context.Context, req any) (any, error) {
				return c.SetVisualEdit(ctx, req.(*toggleReq).On)
			},
			kit.DecodeArgs[toggleReq](),
		},
		{
			&mcp.Tool{
				Name:        "visedit_click",
				Description: "Click the element a CSS selector designates (#id or tag:nth-of-type(n) segments joined by ' > ').",
				InputSchema: kit.InputSchema(map[string]any{
					"selector": map[string]any{"type": "string"},
				}, "selector"),
			},
			func(ctx context.Context, req any) (any, error) {
				sel, err := selector.Parse(req.(*clickReq).Selector)
				if err != nil {
					return nil, err
				}
				return c.Click(ctx, sel)
			},
			kit.DecodeArgs[clickReq](),
		},
		{
			&mcp.Tool{
				Name:        "visedit_commit",
				Description: "Apply new content and styles to the selected element and save the page.",
				InputSchema: kit.InputSchema(map[string]any{
					"content": map[string]any{"type": "string"},
					"styles": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"color":           map[string]any{"type": "string"},
							"backgroundColor": map[string]any{"type": "string"},
							"fontSize":        map[string]any{"type": "string"},
						},
					},
				}, "content"),
			},
			func(ctx context.Context, req any) (any, error) {
				return c.Commit(ctx, *req.(*page.Edit))
			},
			kit.DecodeArgs[page.Edit](),
		},
		{
			&mcp.Tool{
				Name:        "visedit_cancel",
				Description: "Discard the selected element.",
				InputSchema: kit.InputSchema(map[string]any{}),
			},
			func(ctx context.Context, _ any) (any, error) { return c.Cancel(ctx) },
			kit.NoArgs,
		},
		{
			&mcp.Tool{
				Name:        "visedit_page_markdown",
				Description: "The displayed page as Markdown.",
				InputSchema: kit.InputSchema(map[string]any{}),
			},
			func(ctx context.Context, _ any) (any, error) { return c.Markdown(ctx) },
			kit.NoArgs,
		},
	}

	for _, t := range tools {
		mws := []kit.Middleware{kit.Logging(c.logger, t.tool.Name)}
		if c.audit != nil {
			mws = append(mws, audit.Middleware(c.audit, t.tool.Name))
		}
		ep := kit.Chain(append(mws, toolErrors)...)(t.endpoint)
		kit.RegisterMCPTool(srv, t.tool, ep, t.decode)
	}
}

type generateReq struct {
	Description string `json:"description"`
}

type openReq struct {
	PageID int `json:"page_id"`
}

type promptReq struct {
	Prompt string `json:"prompt"`
}

type toggleReq struct {
	On bool `json:"on"`
}

type clickReq struct {
	Selector string `json:"selector"`
}

// toolErrors rewords the errors a tool caller can act on.
func toolErrors(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		switch {
		case errors.Is(err, ErrNoPage):
			return nil, errors.New("no page is displayed; call visedit_generate or visedit_open first")
		case errors.Is(err, ErrStopped):
			return nil, errors.New("visedit is shutting down")
		}
		return resp, err
	}
}
