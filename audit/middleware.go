package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/visedit/kit"
)

// Middleware records every call of the wrapped endpoint under action. The
// request is stored as JSON; transport and trace ID come from the context.
func Middleware(l Logger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Action:     action,
				Transport:  kit.GetTransport(ctx),
				TraceID:    kit.GetTraceID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if req != nil {
				if b, jerr := json.Marshal(req); jerr == nil {
					e.Parameters = string(b)
				}
			}
			if err != nil {
				e.Error = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}
