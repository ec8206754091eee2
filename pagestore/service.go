package pagestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/visedit/audit"
	"github.com/hazyhaar/visedit/backend"
	"github.com/hazyhaar/visedit/kit"
	"github.com/hazyhaar/visedit/page"
)

// DefaultDescription is used when a generation request has none.
const DefaultDescription = "A portfolio website with 3 pages"

// ErrNoGenerator is returned by Generate and EditByPrompt when the service
// runs without an upstream generator.
var ErrNoGenerator = errors.New("pagestore: no generator configured")

// Generator produces pages. backend.Client pointed at an LLM-backed
// service satisfies it.
type Generator interface {
	Generate(ctx context.Context, description string) ([]page.Page, error)
	EditByPrompt(ctx context.Context, id int, prompt, html, css string) (page.Page, error)
}

// Service implements the page backend contract over a Store.
type Service struct {
	store  *Store
	gen    Generator
	audit  audit.Logger
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator sets the upstream generator.
func WithGenerator(g Generator) Option {
	return func(s *Service) { s.gen = g }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAudit records generations, prompt edits and saves.
func WithAudit(l audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// NewService wraps store.
func NewService(store *Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate replaces every stored page with a fresh generation.
func (s *Service) Generate(ctx context.Context, description string) ([]page.Page, error) {
	if s.gen == nil {
		return nil, ErrNoGenerator
	}
	if strings.TrimSpace(description) == "" {
		description = DefaultDescription
	}
	pages, err := s.gen.Generate(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("pagestore: generate: %w", err)
	}
	stored, err := s.store.ReplaceAll(ctx, pages, "")
	if err != nil {
		return nil, err
	}
	s.record(ctx, "generate", fmt.Sprintf(`{"pages":%d}`, len(stored)))
	s.logger.Info("pagestore: generated", "pages", len(stored))
	return stored, nil
}

// ListPages returns every stored page.
func (s *Service) ListPages(ctx context.Context) ([]page.Page, error) {
	return s.store.List(ctx)
}

// FetchPage returns one stored page.
func (s *Service) FetchPage(ctx context.Context, id int) (page.Page, error) {
	if id < 0 {
		return page.Page{}, backend.ErrInvalidPageID
	}
	return s.store.Get(ctx, id)
}

// EditByPrompt rewrites a page from an instruction and stores the result.
// Empty html or css fall back to the stored values. A result with an
// empty name keeps the stored name.
func (s *Service) EditByPrompt(ctx context.Context, id int, prompt, html, css string) (page.Page, error) {
	if id < 0 {
		return page.Page{}, backend.ErrInvalidPageID
	}
	if len([]rune(strings.TrimSpace(prompt))) < backend.MinPromptLength {
		return page.Page{}, backend.ErrPromptTooShort
	}
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return page.Page{}, err
	}
	if s.gen == nil {
		return page.Page{}, ErrNoGenerator
	}
	if html == "" {
		html = cur.HTML
	}
	if css == "" {
		css = cur.CSS
	}

	edited, err := s.gen.EditByPrompt(ctx, id, prompt, html, css)
	if err != nil {
		return page.Page{}, fmt.Errorf("pagestore: edit page %d: %w", id, err)
	}
	if err := s.store.UpdateContent(ctx, id, edited.HTML, edited.CSS); err != nil {
		return page.Page{}, err
	}
	edited.ID = id
	if edited.Name == "" {
		edited.Name = cur.Name
	}
	s.record(ctx, "edit_prompt", fmt.Sprintf(`{"page_id":%d}`, id))
	s.logger.Info("pagestore: edited by prompt", "page_id", id)
	return edited, nil
}

// SaveVisualEdit stores the patched html and css of a page.
func (s *Service) SaveVisualEdit(ctx context.Context, id int, html, css string) error {
	if id < 0 {
		return backend.ErrInvalidPageID
	}
	if err := s.store.UpdateContent(ctx, id, html, css); err != nil {
		return err
	}
	s.record(ctx, "save_visual_edit", fmt.Sprintf(`{"page_id":%d}`, id))
	s.logger.Debug("pagestore: visual edit saved", "page_id", id, "html_bytes", len(html), "css_bytes", len(css))
	return nil
}

// record emits an async audit entry for a successful write.
func (s *Service) record(ctx context.Context, action, params string) {
	if s.audit == nil {
		return
	}
	s.audit.LogAsync(&audit.Entry{
		Action:     action,
		Transport:  kit.GetTransport(ctx),
		TraceID:    kit.GetTraceID(ctx),
		Parameters: params,
	})
}
