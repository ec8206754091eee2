// CLAUDE:SUMMARY Transport-agnostic endpoint type, middleware chaining and a logging middleware shared by HTTP and MCP surfaces.
// Package kit holds the plumbing shared by the HTTP and MCP surfaces:
// the Endpoint abstraction, middleware, request-scoped context values and
// MCP tool registration.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation, independent of the transport that calls it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the endpoint named op with its transport,
// trace ID, duration and error.
func Logging(logger *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"op", op,
				"transport", GetTransport(ctx),
				"elapsed", time.Since(start),
			}
			if id := GetTraceID(ctx); id != "" {
				attrs = append(attrs, "trace_id", id)
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}
