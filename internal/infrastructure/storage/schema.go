package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS animals (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'unknown',
		location TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		intake_date DATE NULL,
		birth_date DATE NULL,
		adopted_date DATE NULL,
		length_of_stay_days INTEGER NULL,
		age_group TEXT NULL,
		breed TEXT NOT NULL DEFAULT '',
		secondary_breed TEXT NOT NULL DEFAULT '',
		weight_group TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		detail_url TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION NULL,
		longitude DOUBLE PRECISION NULL,
		returned_count INTEGER NOT NULL DEFAULT 0,
		verified_adoption BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_animals_status ON animals (status)`,
	`CREATE TABLE IF NOT EXISTS history_events (
		id BIGSERIAL PRIMARY KEY,
		dog_id BIGINT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		old_value TEXT NULL,
		new_value TEXT NULL,
		adopted_date DATE NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_dog_type_created ON history_events (dog_id, event_type, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_history_created ON history_events (created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS animals (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'unknown',
		location TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		intake_date TEXT NULL,
		birth_date TEXT NULL,
		adopted_date TEXT NULL,
		length_of_stay_days INTEGER NULL,
		age_group TEXT NULL,
		breed TEXT NOT NULL DEFAULT '',
		secondary_breed TEXT NOT NULL DEFAULT '',
		weight_group TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		detail_url TEXT NOT NULL DEFAULT '',
		latitude REAL NULL,
		longitude REAL NULL,
		returned_count INTEGER NOT NULL DEFAULT 0,
		verified_adoption INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_animals_status ON animals (status)`,
	`CREATE TABLE IF NOT EXISTS history_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dog_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		old_value TEXT NULL,
		new_value TEXT NULL,
		adopted_date TEXT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_dog_type_created ON history_events (dog_id, event_type, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_history_created ON history_events (created_at)`,
}

// Migrate creates the animals and history_events tables when missing.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := postgresSchema
	if dialect == DialectSQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
