// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"database/sql"
	"fmt"
)

// schema creates Quilt's three relational tables plus the vector-index
// companion table keyed by swatch id, idempotently, with cascade-on-delete
// foreign keys from materials -> cuts -> swatches.
const schema = `
CREATE TABLE IF NOT EXISTS materials (
	id                TEXT PRIMARY KEY,
	path              TEXT NOT NULL,
	file_type         TEXT NOT NULL,
	status            TEXT NOT NULL,
	error_message     TEXT,
	created_at        TEXT NOT NULL,
	status_updated_at TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS materials_live_path_idx
	ON materials(path)
	WHERE status != 'Error';

CREATE TABLE IF NOT EXISTS cuts (
	id          TEXT PRIMARY KEY,
	material_id TEXT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	byte_start  INTEGER NOT NULL,
	byte_end    INTEGER NOT NULL,
	created_at  TEXT NOT NULL,
	UNIQUE(material_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS cuts_material_idx ON cuts(material_id);

CREATE TABLE IF NOT EXISTS swatches (
	id            TEXT PRIMARY KEY,
	cut_id        TEXT NOT NULL UNIQUE REFERENCES cuts(id) ON DELETE CASCADE,
	material_id   TEXT NOT NULL REFERENCES materials(id) ON DELETE CASCADE,
	model_name    TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dimensions    INTEGER NOT NULL,
	embedding     BLOB NOT NULL,
	metadata      TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS swatches_material_idx ON swatches(material_id);

CREATE TABLE IF NOT EXISTS swatch_vector_index (
	swatch_id   TEXT PRIMARY KEY REFERENCES swatches(id) ON DELETE CASCADE,
	material_id TEXT NOT NULL,
	dimensions  INTEGER NOT NULL,
	embedding   BLOB NOT NULL
);
`

// Migrate applies the schema. It is safe to call on every startup.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}
