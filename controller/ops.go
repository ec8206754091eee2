package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/visedit/bus"
	"github.com/hazyhaar/visedit/page"
	"github.com/hazyhaar/visedit/patch"
	"github.com/hazyhaar/visedit/selector"
	"github.com/hazyhaar/visedit/session"
)

// State is a snapshot of the application state.
type State struct {
	Pages        []page.Page   `json:"pages"`
	Current      *page.Page    `json:"current,omitempty"`
	Mode         session.Mode  `json:"mode"`
	Selected     *page.Element `json:"selected,omitempty"`
	Notices      []Notice      `json:"notices"`
	PendingSaves int           `json:"pendingSaves"`
	Bus          bus.Stats     `json:"bus"`
}

// CommitResult is the outcome of Commit. Applied is false on a soft miss,
// in which case a warning notice was added.
type CommitResult struct {
	State    State          `json:"state"`
	Applied  bool           `json:"applied"`
	Strategy patch.Strategy `json:"strategy,omitempty"`
}

func (c *Controller) snapshot(s *state) State {
	st := State{
		Pages:        append([]page.Page{}, s.pages...),
		Mode:         s.session.Mode(),
		Notices:      append([]Notice{}, s.notices...),
		PendingSaves: s.saving,
		Bus:          c.bus.Stats(),
	}
	if p, ok := s.page(); ok {
		cur := *p
		st.Current = &cur
	}
	if el, ok := s.session.Selected(); ok {
		st.Selected = &el
	}
	return st
}

type reply struct {
	state State
	err   error
}

// apply runs fn on the loop and returns the state it left behind.
func (c *Controller) apply(ctx context.Context, fn func(*state) error) (State, error) {
	out := make(chan reply, 1)
	cmd := func(s *state) {
		err := fn(s)
		out <- reply{state: c.snapshot(s), err: err}
	}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case r := <-out:
		return r.state, r.err
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// State returns the current snapshot.
func (c *Controller) State(ctx context.Context) (State, error) {
	return c.apply(ctx, func(*state) error { return nil })
}

// Load replaces the page list with the backend's. Nothing is displayed
// afterwards.
func (c *Controller) Load(ctx context.Context) (State, error) {
	pages, err := c.backend.ListPages(ctx)
	if err != nil {
		return State{}, fmt.Errorf("controller: load pages: %w", err)
	}
	return c.apply(ctx, func(s *state) error {
		s.pages = pages
		s.current = -1
		s.session.Reset()
		return nil
	})
}

// Generate asks the backend for a new site and displays its first page.
func (c *Controller) Generate(ctx context.Context, description string) (State, error) {
	pages, err := c.backend.Generate(ctx, description)
	if err != nil {
		return State{}, fmt.Errorf("controller: generate: %w", err)
	}
	c.logger.Info("controller: generated", "pages", len(pages))
	return c.apply(ctx, func(s *state) error {
		s.pages = pages
		s.current = -1
		s.session.Reset()
		if len(pages) == 0 {
			return nil
		}
		s.current = 0
		return c.display(ctx, s)
	})
}

// Open displays page id, fetching it from the backend when the page list
// does not hold it. The edit session starts over in Viewing.
func (c *Controller) Open(ctx context.Context, id int) (State, error) {
	st, err := c.apply(ctx, func(s *state) error {
		i := s.indexOf(id)
		if i < 0 {
			return ErrUnknownPage
		}
		return c.show(ctx, s, i)
	})
	if !errors.Is(err, ErrUnknownPage) {
		return st, err
	}

	p, err := c.backend.FetchPage(ctx, id)
	if err != nil {
		return st, fmt.Errorf("controller: open page %d: %w", id, err)
	}
	return c.apply(ctx, func(s *state) error {
		i := s.indexOf(id)
		if i < 0 {
			s.pages = append(s.pages, p)
			i = len(s.pages) - 1
		}
		return c.show(ctx, s, i)
	})
}

func (c *Controller) show(ctx context.Context, s *state, i int) error {
	s.current = i
	s.session.Reset()
	return c.display(ctx, s)
}

// EditByPrompt rewrites the displayed page through the backend. A pending
// selection is dropped since the document it came from is gone.
func (c *Controller) EditByPrompt(ctx context.Context, prompt string) (State, error) {
	var cur page.Page
	if _, err := c.apply(ctx, func(s *state) error {
		p, ok := s.page()
		if !ok {
			return ErrNoPage
		}
		cur = *p
		return nil
	}); err != nil {
		return State{}, err
	}

	edited, err := c.backend.EditByPrompt(ctx, cur.ID, prompt, cur.HTML, cur.CSS)
	if err != nil {
		return State{}, fmt.Errorf("controller: edit page %d: %w", cur.ID, err)
	}
	return c.apply(ctx, func(s *state) error {
		i := s.indexOf(cur.ID)
		if i < 0 {
			return ErrUnknownPage
		}
		// A commit landed while the backend worked. The displayed page
		// wins and is saved again so the backend converges on it.
		if p := s.pages[i]; p.HTML != cur.HTML || p.CSS != cur.CSS {
			c.notify(s, LevelWarning, ConflictMessage)
			c.save(s, p)
			return ErrPageChanged
		}
		s.pages[i].HTML, s.pages[i].CSS = edited.HTML, edited.CSS
		if i != s.current {
			return nil
		}
		if s.session.Mode() == session.Editing {
			if err := s.session.Cancel(); err != nil {
				return err
			}
		}
		return c.display(ctx, s)
	})
}

// SetVisualEdit turns visual-edit mode on or off. Turning it off discards
// a pending selection.
func (c *Controller) SetVisualEdit(ctx context.Context, on bool) (State, error) {
	return c.apply(ctx, func(s *state) error {
		if _, ok := s.page(); !ok {
			return ErrNoPage
		}
		if on {
			s.session.Arm()
		} else {
			s.session.Disarm()
		}
		return c.sandbox.SetActive(ctx, on)
	})
}

// Click synthesises a click on the element sel designates in the sandbox.
// The returned state reflects the messages the sandbox delivered by the
// time the click returned.
func (c *Controller) Click(ctx context.Context, sel selector.Selector) (State, error) {
	return c.apply(ctx, func(s *state) error {
		if _, ok := s.page(); !ok {
			return ErrNoPage
		}
		if err := c.sandbox.Click(ctx, sel); err != nil {
			return err
		}
		c.drainBus(s)
		return nil
	})
}

// Commit merges the edit into the selected element of the displayed page,
// re-renders it and saves it in the background. The in-memory page is
// updated whatever the save outcome.
func (c *Controller) Commit(ctx context.Context, e page.Edit) (CommitResult, error) {
	var res CommitResult
	st, err := c.apply(ctx, func(s *state) error {
		p, ok := s.page()
		if !ok {
			return ErrNoPage
		}
		el, err := s.session.Commit()
		if err != nil {
			return err
		}

		out, err := patch.Apply(p.HTML, p.CSS, el, e)
		if patch.IsSoft(err) {
			c.logger.Warn("controller: commit missed", "page_id", p.ID, "selector", el.SelectorString(), "error", err)
			c.notify(s, LevelWarning, MissMessage)
			return nil
		}
		if err != nil {
			return err
		}

		p.HTML, p.CSS = out.HTML, out.CSS
		res.Applied, res.Strategy = true, out.Strategy
		c.logger.Info("controller: commit applied", "page_id", p.ID, "selector", el.SelectorString(), "strategy", out.Strategy)

		c.save(s, *p)
		if err := c.display(ctx, s); err != nil {
			return fmt.Errorf("controller: re-render: %w", err)
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		// the closure may still be running on the loop
		return CommitResult{}, err
	}
	res.State = st
	return res, err
}

// Cancel discards the pending selection.
func (c *Controller) Cancel(ctx context.Context) (State, error) {
	return c.apply(ctx, func(s *state) error {
		return s.session.Cancel()
	})
}

// DismissNotice removes a notice.
func (c *Controller) DismissNotice(ctx context.Context, id string) error {
	_, err := c.apply(ctx, func(s *state) error {
		if !s.dismiss(id) {
			return fmt.Errorf("%w: %s", ErrUnknownNotice, id)
		}
		return nil
	})
	return err
}
