// CLAUDE:SUMMARY SQLite persistence of canonical pages: wholesale replacement on generation, listing, lookup and html/css updates.
// Package pagestore is the storage side of the page backend: an SQLite
// table of canonical documents, a Service combining it with an upstream
// generator, and the HTTP API clients use (see backend.Client).
package pagestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/visedit/dbopen"
	"github.com/hazyhaar/visedit/page"
)

// ErrPageNotFound is returned for an unknown page ID.
var ErrPageNotFound = errors.New("pagestore: page not found")

// Store is the page database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the page database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// ReplaceAll drops every page and stores pages in order, numbering them
// from 0. It returns the stored pages with their IDs.
func (s *Store) ReplaceAll(ctx context.Context, pages []page.Page, globalCSS string) ([]page.Page, error) {
	now := time.Now().UnixMilli()
	out := make([]page.Page, len(pages))

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
			return err
		}
		for i, p := range pages {
			p.ID = i
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pages (id, name, html, css, created_at, updated_at)
				VALUES (?,?,?,?,?,?)`,
				p.ID, p.Name, p.HTML, p.CSS, now, now,
			); err != nil {
				return err
			}
			out[i] = p
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO site (key, value) VALUES ('global_css', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, globalCSS)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pagestore: replace pages: %w", err)
	}
	return out, nil
}

// List returns every page ordered by ID.
func (s *Store) List(ctx context.Context) ([]page.Page, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, html, css FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pagestore: list: %w", err)
	}
	defer rows.Close()

	out := []page.Page{}
	for rows.Next() {
		var p page.Page
		if err := rows.Scan(&p.ID, &p.Name, &p.HTML, &p.CSS); err != nil {
			return nil, fmt.Errorf("pagestore: list: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one page.
func (s *Store) Get(ctx context.Context, id int) (page.Page, error) {
	var p page.Page
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, html, css FROM pages WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.HTML, &p.CSS)
	if errors.Is(err, sql.ErrNoRows) {
		return page.Page{}, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	if err != nil {
		return page.Page{}, fmt.Errorf("pagestore: get %d: %w", id, err)
	}
	return p, nil
}

// UpdateContent replaces the html and css of a page.
func (s *Store) UpdateContent(ctx context.Context, id int, html, css string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE pages SET html = ?, css = ?, updated_at = ? WHERE id = ?`,
		html, css, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("pagestore: update %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	return nil
}

// GlobalCSS returns the site-wide stylesheet of the last generation.
func (s *Store) GlobalCSS(ctx context.Context) (string, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM site WHERE key = 'global_css'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pagestore: global css: %w", err)
	}
	return v, nil
}
