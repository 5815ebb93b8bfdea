// Package store persists manuscripts, stanzas, and annotations in SQLite.
//
// Two drivers are supported: the default pure Go build uses
// modernc.org/sqlite, and -tags cgo_sqlite switches to mattn/go-sqlite3.
// Use Open rather than sql.Open so the right driver name is picked.
package store

import (
	"database/sql"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/codexkit/folium/core/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS manuscripts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	siglum       TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL DEFAULT '',
	manifest_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS stanzas (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	manuscript_id INTEGER NOT NULL REFERENCES manuscripts(id) ON DELETE CASCADE,
	start_code    INTEGER NOT NULL,
	end_code      INTEGER NOT NULL,
	address       TEXT NOT NULL,
	folio         TEXT NOT NULL DEFAULT '',
	translated    INTEGER NOT NULL DEFAULT 0,
	body          TEXT NOT NULL,
	body_hash     TEXT NOT NULL,
	UNIQUE (manuscript_id, start_code, translated)
);

CREATE INDEX IF NOT EXISTS idx_stanzas_order
	ON stanzas (manuscript_id, start_code);

CREATE TABLE IF NOT EXISTS annotations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	stanza_id       INTEGER NOT NULL REFERENCES stanzas(id) ON DELETE CASCADE,
	type            TEXT NOT NULL,
	from_pos        INTEGER NOT NULL,
	to_pos          INTEGER NOT NULL,
	selected_text   TEXT NOT NULL,
	body            TEXT NOT NULL DEFAULT '',
	siglum          TEXT NOT NULL DEFAULT '',
	significance    INTEGER NOT NULL DEFAULT 0,
	variant_id      TEXT NOT NULL DEFAULT '',
	editor_initials TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	anchored_hash   TEXT NOT NULL DEFAULT '',
	unmatched       INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_annotations_stanza
	ON annotations (stanza_id, from_pos);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// DriverType reports the underlying implementation, "purego" or "cgo".
func DriverType() string {
	return driverType
}

// Open opens (creating if needed) the database at path and applies the
// schema. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enabling foreign keys")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for one-off queries in tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

// hashText returns the hex BLAKE3 digest of a stanza body. Stored beside
// the body so re-imports can tell changed stanzas from untouched ones.
func hashText(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
