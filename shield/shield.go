// Package shield provides the HTTP middleware in front of the visedit API:
// security headers, JSON body limits, request tracing and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody bounds JSON request bodies. Commits carry whole pages.
const DefaultMaxBody = 4 << 20

// DefaultStack returns the standard middleware stack of the API, ordered
// HeadToGet → SecurityHeaders → MaxJSONBody → TraceID.
func DefaultStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(DefaultMaxBody),
		TraceID(logger),
	}
}
