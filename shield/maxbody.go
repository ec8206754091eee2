package shield

import (
	"mime"
	"net/http"
)

// MaxJSONBody limits the body of JSON requests to maxBytes. Reads past the
// limit fail and the decoder error surfaces in the handler. Other content
// types are passed through.
func MaxJSONBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/json" {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
