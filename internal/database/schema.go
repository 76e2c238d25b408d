package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		owner_id    BIGINT NOT NULL DEFAULT 0,
		site        TEXT NOT NULL,
		source_url  TEXT NOT NULL,
		last_title  TEXT NOT NULL DEFAULT '',
		last_price  INTEGER,
		last_status TEXT NOT NULL DEFAULT 'active',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (owner_id, source_url)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_stale ON products (updated_at, id)`,
	`CREATE TABLE IF NOT EXISTS product_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		product_id  BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		scraped_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		title       TEXT NOT NULL DEFAULT '',
		price       INTEGER,
		status      TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_urls  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_product ON product_snapshots (product_id, scraped_at DESC)`,
	`CREATE TABLE IF NOT EXISTS variants (
		id            BIGSERIAL PRIMARY KEY,
		product_id    BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		option1       TEXT NOT NULL DEFAULT '',
		option2       TEXT NOT NULL DEFAULT '',
		option3       TEXT NOT NULL DEFAULT '',
		sku           TEXT NOT NULL DEFAULT '',
		price         INTEGER,
		inventory_qty INTEGER NOT NULL DEFAULT 0,
		position      INTEGER NOT NULL DEFAULT 0,
		UNIQUE (product_id, option1, option2, option3)
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
		id            UUID PRIMARY KEY,
		owner_id      BIGINT NOT NULL DEFAULT 0,
		search_url    TEXT NOT NULL,
		max_items     INTEGER NOT NULL,
		max_scroll    INTEGER NOT NULL,
		status        TEXT NOT NULL,
		items_found   INTEGER NOT NULL DEFAULT 0,
		items_saved   INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at    TIMESTAMPTZ,
		completed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_pending ON scrape_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL,
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_event (status, next_retry_at)`,
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
