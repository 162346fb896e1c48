package store

import (
	"context"
	"database/sql"
	"fmt"
)

const Schema = `
CREATE SCHEMA IF NOT EXISTS feed;
CREATE SCHEMA IF NOT EXISTS api;

CREATE TABLE IF NOT EXISTS feed.events (
	event_id   UUID PRIMARY KEY,
	feed_id    TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	emitted_at TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL,
	UNIQUE (feed_id, seq)
);

CREATE TABLE IF NOT EXISTS feed.audit (
	id          BIGSERIAL PRIMARY KEY,
	event       TEXT NOT NULL,
	actor       TEXT,
	severity    TEXT NOT NULL,
	duration_ms INTEGER,
	outcome     TEXT NOT NULL,
	metadata    JSONB,
	error_code  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api.principals (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	role       TEXT NOT NULL,
	address    TEXT NOT NULL,
	plan       TEXT NOT NULL DEFAULT 'standard',
	status     TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api.api_keys (
	id           UUID PRIMARY KEY,
	principal_id UUID NOT NULL REFERENCES api.principals(id),
	public_key   TEXT NOT NULL UNIQUE,
	label        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	revoked      BOOLEAN NOT NULL DEFAULT false,
	revoked_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS api.request_ids (
	request_id   UUID NOT NULL,
	principal_id UUID NOT NULL,
	seen_at      TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (request_id, principal_id)
);
`

// Migrate creates the tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
