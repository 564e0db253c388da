// Package db owns the SQLite database: opening, pragmas, and schema
// migrations. Every other package goes through *sql.DB handles produced
// here.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the SQLite database at dbPath and applies
// pragmas. Callers must run Migrate before using the handle.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	d, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps concurrent query handlers readable while the indexer writes.
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	}
	for _, p := range pragmas {
		if _, err := d.Exec(p); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return d, nil
}

// Initialize opens the database, runs all migrations, and closes it again.
// Used by one-shot commands that only need the schema to exist.
func Initialize(dbPath string) error {
	d, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return Migrate(d)
}
