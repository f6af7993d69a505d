// Package duckdb implements the engine's persistence ports on an embedded
// DuckDB database. The UNIQUE (series_id, occurrence_date) constraint on
// the occurrences table is the single source of truth for "does this
// occurrence exist"; concurrent materializers race on the insert and the
// loser re-reads the winner's row.
package duckdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/cadehq/cadence/internal/core/ports"
)

type Repository struct {
	db *sql.DB
}

// Ensure Repository implements the full persistence surface
var _ ports.Store = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %s: %w", path, err)
	}
	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			frequency TEXT NOT NULL,
			recur_interval INTEGER NOT NULL,
			weekdays TEXT NOT NULL DEFAULT '',
			rule_end_date TEXT,
			start_date TEXT NOT NULL,
			end_date TEXT,
			time_hour INTEGER,
			time_minute INTEGER,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS occurrences (
			id TEXT PRIMARY KEY,
			series_id TEXT NOT NULL,
			occurrence_date TEXT NOT NULL,
			scheduled_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'pending',
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (series_id, occurrence_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_series_date ON occurrences (series_id, occurrence_date)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_status_date ON occurrences (status, occurrence_date)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
