package sqlite

import (
	"context"
	"fmt"
)

// schema DDL do banco local. Executado a cada abertura; todo statement é
// idempotente (IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS volumes (
	key              TEXT PRIMARY KEY,
	operator         TEXT NOT NULL,
	facility         TEXT NOT NULL,
	date             TEXT NOT NULL,
	reference        TEXT NOT NULL,
	kind             TEXT NOT NULL,
	status           TEXT NOT NULL,
	read_only        INTEGER NOT NULL DEFAULT 0,
	remote_session_id TEXT NOT NULL DEFAULT '',
	snapshot_dirty   INTEGER NOT NULL DEFAULT 0,
	finalize_pending INTEGER NOT NULL DEFAULT 0,
	cancel_pending   INTEGER NOT NULL DEFAULT 0,
	finalize_reason  TEXT NOT NULL DEFAULT '',
	sync_error       TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMP,
	finalized_at     TIMESTAMP,
	updated_at       TIMESTAMP,
	synced_at        TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_volumes_operator ON volumes (operator, updated_at);

CREATE TABLE IF NOT EXISTS volume_items (
	volume_key  TEXT NOT NULL REFERENCES volumes (key) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	item_key    TEXT NOT NULL,
	product_id  TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	barcode     TEXT NOT NULL DEFAULT '',
	expected    INTEGER NOT NULL DEFAULT 0,
	counted     INTEGER NOT NULL DEFAULT 0,
	locked      INTEGER NOT NULL DEFAULT 0,
	locked_by   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (volume_key, item_key)
);

CREATE TABLE IF NOT EXISTS volume_allocations (
	volume_key TEXT NOT NULL REFERENCES volumes (key) ON DELETE CASCADE,
	sub_ref    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	expected   INTEGER NOT NULL DEFAULT 0,
	counted    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (volume_key, sub_ref, product_id)
);

CREATE TABLE IF NOT EXISTS volume_sub_sessions (
	volume_key TEXT NOT NULL REFERENCES volumes (key) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	sub_ref    TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	finalized  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (volume_key, sub_ref)
);

CREATE TABLE IF NOT EXISTS manifests (
	facility   TEXT NOT NULL,
	reference  TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	items_json TEXT NOT NULL,
	PRIMARY KEY (facility, reference)
);

CREATE TABLE IF NOT EXISTS barcode_cache (
	barcode     TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Migrate aplica o schema do banco local.
func Migrate(ctx context.Context, db *DB) error {
	if _, err := db.SQL.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("aplicar schema: %w", err)
	}
	return nil
}
