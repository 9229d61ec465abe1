package database

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
    id        UUID PRIMARY KEY,
    status    INTEGER NOT NULL,
    created   TIMESTAMPTZ NOT NULL DEFAULT now(),
    columns   JSONB NOT NULL DEFAULT '[]',
    encoding  TEXT NOT NULL DEFAULT '',
    delimiter TEXT NOT NULL DEFAULT '',
    error     TEXT
);

CREATE TABLE IF NOT EXISTS dataset_rows (
    dataset_id UUID NOT NULL REFERENCES datasets (id) ON DELETE CASCADE,
    rownr      INTEGER NOT NULL,
    data       JSONB NOT NULL,
    PRIMARY KEY (dataset_id, rownr)
);

CREATE TABLE IF NOT EXISTS aliases (
    alias      TEXT PRIMARY KEY,
    dataset_id UUID NOT NULL REFERENCES datasets (id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS aliases_dataset_id_idx ON aliases (dataset_id);
`

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
