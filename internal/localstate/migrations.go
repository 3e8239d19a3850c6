package localstate

import (
	"database/sql"
	"fmt"
)

// migration is one numbered, forward-only schema change.
type migration struct {
	Version int
	Name    string
	Up      func(*sql.DB) error
}

var migrations = []migration{
	{Version: 1, Name: "create_observed_locks", Up: migrationV1},
	{Version: 2, Name: "create_release_snapshot_cache", Up: migrationV2},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("localstate: create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("localstate: read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("localstate: begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(s.db); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstate: migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("localstate: record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("localstate: commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func migrationV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE observed_locks (
			tag_name TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			observed_at_ms INTEGER NOT NULL
		)
	`)
	return err
}

func migrationV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE release_snapshot_cache (
			version TEXT PRIMARY KEY,
			candidate_count INTEGER NOT NULL,
			staged_count INTEGER NOT NULL,
			cached_at_ms INTEGER NOT NULL
		)
	`)
	return err
}
