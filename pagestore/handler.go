package pagestore

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/visedit/backend"
	"github.com/hazyhaar/visedit/page"
)

// Version is reported by GET /health.
const Version = "1.0.0"

type pageBody struct {
	Name string `json:"name"`
	HTML string `json:"html"`
	CSS  string `json:"css"`
}

func bodies(pages []page.Page) []pageBody {
	out := make([]pageBody, len(pages))
	for i, p := range pages {
		out[i] = pageBody{Name: p.Name, HTML: p.HTML, CSS: p.CSS}
	}
	return out
}

// Handler returns the HTTP API of the service. Error bodies follow the
// {"detail": ...} shape backend.Client decodes.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version})
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalid(w, "invalid JSON body")
			return
		}
		pages, err := s.Generate(r.Context(), req.Description)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "pages": bodies(pages)})
	})

	r.Get("/pages", func(w http.ResponseWriter, r *http.Request) {
		pages, err := s.ListPages(r.Context())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pages": bodies(pages)})
	})

	r.Get("/page/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pageID(w, r)
		if !ok {
			return
		}
		p, err := s.FetchPage(r.Context(), id)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pageBody{Name: p.Name, HTML: p.HTML, CSS: p.CSS})
	})

	r.Post("/edit", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PageID      *int   `json:"page_id"`
			EditPrompt  string `json:"edit_prompt"`
			CurrentHTML string `json:"current_html"`
			CurrentCSS  string `json:"current_css"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalid(w, "invalid JSON body")
			return
		}
		if req.PageID == nil {
			writeInvalid(w, "page_id: field required")
			return
		}
		p, err := s.EditByPrompt(r.Context(), *req.PageID, req.EditPrompt, req.CurrentHTML, req.CurrentCSS)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"page":   pageBody{Name: p.Name, HTML: p.HTML, CSS: p.CSS},
		})
	})

	r.Patch("/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := pageID(w, r)
		if !ok {
			return
		}
		var req struct {
			HTML *string `json:"html"`
			CSS  *string `json:"css"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalid(w, "invalid JSON body")
			return
		}
		if req.HTML == nil || req.CSS == nil {
			writeInvalid(w, "html and css: field required")
			return
		}
		if err := s.SaveVisualEdit(r.Context(), id, *req.HTML, *req.CSS); err != nil {
			s.writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	})

	return r
}

func pageID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeInvalid(w, "page id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Service) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPageNotFound):
		writeDetail(w, http.StatusNotFound, "Page not found")
	case errors.Is(err, backend.ErrInvalidPageID):
		writeInvalid(w, "page_id must be greater than or equal to 0")
	case errors.Is(err, backend.ErrPromptTooShort):
		writeInvalid(w, "Edit prompt must be at least 5 characters")
	case errors.Is(err, ErrNoGenerator):
		writeDetail(w, http.StatusServiceUnavailable, "generation is not configured")
	default:
		s.logger.Error("pagestore: request failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}

// writeInvalid answers 422 with a list of issues, the validation error
// shape of the service.
func writeInvalid(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]string{{"msg": msg}},
	})
}
