package pagestore

// Schema is the DDL of the page store.
const Schema = `
-- Canonical documents, one row per page. id is the page position in the
-- generated site and is what clients address.
CREATE TABLE IF NOT EXISTS pages (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    html        TEXT NOT NULL DEFAULT '',
    css         TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- Site-wide settings returned by the generator (global_css).
CREATE TABLE IF NOT EXISTS site (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL
);
`
