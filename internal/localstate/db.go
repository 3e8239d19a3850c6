// Package localstate is a per-clone SQLite cache of coordination state hop
// has observed on the remote (lock tags, last-known release manifest
// counts). wire opens it and exposes it through wire.LocalCache;
// Orchestrator.Status does not read from it. It is a cache, never a source
// of truth: the remote
// git tags and the database are authoritative, and every record here can
// be safely dropped and rebuilt from them.
//
// Grounded on the teacher's internal/db package: connection lifecycle from
// db.go, numbered migrations from migrations.go.
package localstate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the local coordination cache database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database under
// <repoRoot>/.hop/state.db and applies any pending migrations.
func Open(repoRoot string) (*Store, error) {
	hopDir := filepath.Join(repoRoot, ".hop")
	if err := os.MkdirAll(hopDir, 0o755); err != nil {
		return nil, fmt.Errorf("localstate: create .hop: %w", err)
	}

	dbPath := filepath.Join(hopDir, "state.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("localstate: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstate: enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
