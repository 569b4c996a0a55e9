package db

import (
	"database/sql"
	"fmt"
	"log"
)

// schema is applied idempotently at startup. Unique indices mirror the
// natural keys of the catalog: (provider_id, title_key) for provider titles,
// title_key for canonical titles, (title_key, stream_id, provider_id) for
// stream documents, (provider_id, category_key) for categories and
// (job_name, provider_id) for job history.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS iptv_providers (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		api_url TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		priority INT NOT NULL DEFAULT 0,
		api_rate JSONB NOT NULL DEFAULT '{"concurrent":5,"duration_seconds":1}',
		cleanup_rules JSONB NOT NULL DEFAULT '[]',
		enabled_categories JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS provider_titles (
		provider_id TEXT NOT NULL,
		title_id TEXT NOT NULL,
		title_key TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		tmdb_id INT NOT NULL DEFAULT 0,
		category_id TEXT NOT NULL DEFAULT '',
		release_date TEXT NOT NULL DEFAULT '',
		streams JSONB NOT NULL DEFAULT '{}',
		ignored BOOLEAN NOT NULL DEFAULT FALSE,
		ignored_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (provider_id, title_key)
	)`,
	`CREATE TABLE IF NOT EXISTS titles (
		title_key TEXT PRIMARY KEY,
		title_id INT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		release_date TEXT NOT NULL DEFAULT '',
		vote_average DOUBLE PRECISION NOT NULL DEFAULT 0,
		overview TEXT NOT NULL DEFAULT '',
		poster_path TEXT NOT NULL DEFAULT '',
		genres JSONB NOT NULL DEFAULT '[]',
		streams JSONB NOT NULL DEFAULT '{}',
		similar JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS title_streams (
		title_key TEXT NOT NULL,
		stream_id TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		tvg_id TEXT NOT NULL DEFAULT '',
		tvg_name TEXT NOT NULL DEFAULT '',
		tvg_type TEXT NOT NULL DEFAULT '',
		tvg_logo TEXT NOT NULL DEFAULT '',
		group_title TEXT NOT NULL DEFAULT '',
		proxy_url TEXT NOT NULL DEFAULT '',
		proxy_path TEXT NOT NULL DEFAULT '',
		season_num INT NOT NULL DEFAULT 0,
		episode_num INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (title_key, stream_id, provider_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_title_streams_provider ON title_streams (provider_id)`,
	`CREATE TABLE IF NOT EXISTS provider_categories (
		provider_id TEXT NOT NULL,
		category_key TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (provider_id, category_key)
	)`,
	`CREATE TABLE IF NOT EXISTS job_history (
		id UUID PRIMARY KEY,
		job_name TEXT NOT NULL,
		provider_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		last_execution TIMESTAMPTZ,
		last_result JSONB,
		execution_count INT NOT NULL DEFAULT 0,
		last_provider_check TIMESTAMPTZ,
		last_settings_check TIMESTAMPTZ,
		last_policy_check TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_name, provider_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cache_policy (
		key TEXT PRIMARY KEY,
		ttl_hours DOUBLE PRECISION,
		provider_id TEXT NOT NULL DEFAULT '',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Every statement is idempotent so this is safe
// to run on each startup.
func Migrate(conn *sql.DB) error {
	for i, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	log.Printf("[db] schema up to date (%d statements)", len(schema))
	return nil
}
