// CLAUDE:SUMMARY chi HTTP API over the controller (state, generate, open, edit, visual-edit, click, commit, cancel, notices) plus the MCP streamable endpoint.
// Package server exposes a controller over HTTP. Every handler returns the
// resulting state snapshot as JSON; errors are {"error": "..."} with a
// status derived from the error kind.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/visedit/backend"
	"github.com/hazyhaar/visedit/controller"
	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/pagestore"
	"github.com/hazyhaar/visedit/patch"
	"github.com/hazyhaar/visedit/selector"
	"github.com/hazyhaar/visedit/session"
	"github.com/hazyhaar/visedit/shield"
)

// Version is reported by /health and the MCP implementation.
const Version = "1.0.0"

// Server is the HTTP surface of one controller.
type Server struct {
	ctl    *controller.Controller
	mcp    *mcp.Server
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the server and registers the controller MCP tools.
func New(ctl *controller.Controller, opts ...Option) *Server {
	s := &Server{ctl: ctl, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "visedit", Version: Version}, nil)
	ctl.RegisterMCP(s.mcp)
	return s
}

// Handler returns the router with the shield middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	r.Handle("/mcp", mcpHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			st, err := s.ctl.State(r.Context())
			s.respond(w, r, st, err)
		})

		r.Get("/markdown", func(w http.ResponseWriter, r *http.Request) {
			md, err := s.ctl.Markdown(r.Context())
			if err != nil {
				s.writeErr(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Write([]byte(md))
		})

		r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Description string `json:"description"`
			}
			if !decode(w, r, &req) {
				return
			}
			st, err := s.ctl.Generate(r.Context(), req.Description)
			s.respond(w, r, st, err)
		})

		r.Post("/pages/{id}/open", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.Atoi(chi.URLParam(r, "id"))
			if err != nil || id < 0 {
				writeError(w, http.StatusUnprocessableEntity, errors.New("page id must be a non-negative integer"))
				return
			}
			st, err := s.ctl.Open(r.Context(), id)
			s.respond(w, r, st, err)
		})

		r.Post("/edit", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Prompt string `json:"prompt"`
			}
			if !decode(w, r, &req) {
				return
			}
			st, err := s.ctl.EditByPrompt(r.Context(), req.Prompt)
			s.respond(w, r, st, err)
		})

		r.Post("/visual-edit", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				On *bool `json:"on"`
			}
			if !decode(w, r, &req) {
				return
			}
			if req.On == nil {
				writeError(w, http.StatusUnprocessableEntity, errors.New("on: field required"))
				return
			}
			st, err := s.ctl.SetVisualEdit(r.Context(), *req.On)
			s.respond(w, r, st, err)
		})

		r.Post("/click", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Selector string `json:"selector"`
			}
			if !decode(w, r, &req) {
				return
			}
			sel, err := selector.Parse(req.Selector)
			if err != nil {
				s.writeErr(w, r, err)
				return
			}
			st, err := s.ctl.Click(r.Context(), sel)
			s.respond(w, r, st, err)
		})

		r.Post("/commit", func(w http.ResponseWriter, r *http.Request) {
			var req page.Edit
			if !decode(w, r, &req) {
				return
			}
			res, err := s.ctl.Commit(r.Context(), req)
			s.respond(w, r, res, err)
		})

		r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
			st, err := s.ctl.Cancel(r.Context())
			s.respond(w, r, st, err)
		})

		r.Delete("/notices/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := s.ctl.DismissNotice(r.Context(), chi.URLParam(r, "id")); err != nil {
				s.writeErr(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		shield.GetLogger(r.Context()).Error("server: request failed", "error", err)
	}
	writeError(w, code, err)
}

func statusOf(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, controller.ErrNoPage),
		errors.Is(err, controller.ErrPageChanged),
		errors.Is(err, session.ErrNotEditing),
		errors.Is(err, session.ErrNotArmed):
		return http.StatusConflict
	case errors.Is(err, patch.ErrInvalidStyle),
		errors.Is(err, selector.ErrSyntax),
		errors.Is(err, backend.ErrPromptTooShort),
		errors.Is(err, backend.ErrInvalidPageID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, selector.ErrNotFound),
		errors.Is(err, controller.ErrUnknownNotice),
		errors.Is(err, controller.ErrUnknownPage),
		errors.Is(err, pagestore.ErrPageNotFound),
		backend.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrStopped),
		errors.Is(err, pagestore.ErrNoGenerator):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
