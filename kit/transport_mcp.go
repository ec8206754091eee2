package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder turns tool arguments into an endpoint request.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// DecodeArgs returns a decoder that unmarshals the arguments into a fresh
// *T. Empty arguments yield a zero *T.
func DecodeArgs[T any]() MCPDecoder {
	return func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		r := new(T)
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		return &MCPDecodeResult{Request: r}, nil
	}
}

// NoArgs ignores the arguments.
func NoArgs(*mcp.CallToolRequest) (*MCPDecodeResult, error) {
	return &MCPDecodeResult{}, nil
}

// InputSchema builds the JSON schema of an object-typed tool input.
func InputSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterMCPTool registers an Endpoint as an MCP tool on srv. The context
// passed to the endpoint is tagged with the "mcp" transport. Endpoint
// errors become tool errors; a string response is sent as is, anything
// else as JSON text.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		ctx = WithTransport(ctx, TransportMCP)
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return toolError(errors.New(err.Error())), nil
		}

		text, ok := resp.(string)
		if !ok {
			data, err := json.Marshal(resp)
			if err != nil {
				return toolError(fmt.Errorf("marshal: %w", err)), nil
			}
			text = string(data)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
