package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/visedit/idgen"
	"github.com/hazyhaar/visedit/kit"
)

// TraceID tags each request with a trace ID, reusing a well-formed
// incoming X-Trace-ID. The ID goes into the context (kit.TraceIDKey), the
// response headers and a per-request logger stored under LoggerKey.
func TraceID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if !validTraceID(traceID) {
				traceID = idgen.Trace()
			}

			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = kit.WithTransport(ctx, kit.TransportHTTP)
			w.Header().Set("X-Trace-ID", traceID)

			logger := base.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			logger.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validTraceID accepts up to 64 characters of [A-Za-z0-9_-].
func validTraceID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
