package db

import (
	"database/sql"
	"fmt"
	"time"
)

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations. Migrations are
// additive only; columns added after a table shipped are backfilled by
// addedColumns below so older databases keep working.
var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS symbols (
				id TEXT PRIMARY KEY,
				file_path TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				kind TEXT NOT NULL,
				name TEXT NOT NULL,
				exported INTEGER NOT NULL DEFAULT 0,
				start_byte INTEGER NOT NULL DEFAULT 0,
				end_byte INTEGER NOT NULL DEFAULT 0,
				start_line INTEGER NOT NULL DEFAULT 0,
				end_line INTEGER NOT NULL DEFAULT 0,
				text TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
			CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
			CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
			CREATE INDEX IF NOT EXISTS idx_symbols_exported ON symbols(exported);

			CREATE TABLE IF NOT EXISTS edges (
				from_symbol_id TEXT NOT NULL,
				to_symbol_id TEXT NOT NULL,
				edge_type TEXT NOT NULL,
				at_file TEXT NOT NULL DEFAULT '',
				at_line INTEGER NOT NULL DEFAULT 0,
				confidence REAL NOT NULL DEFAULT 1.0,
				evidence_count INTEGER NOT NULL DEFAULT 1,
				resolution TEXT NOT NULL DEFAULT 'unknown',
				UNIQUE (from_symbol_id, to_symbol_id, edge_type)
			);
			CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_symbol_id);
			CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_symbol_id);

			CREATE TABLE IF NOT EXISTS edge_evidence (
				from_symbol_id TEXT NOT NULL,
				to_symbol_id TEXT NOT NULL,
				edge_type TEXT NOT NULL,
				at_file TEXT NOT NULL DEFAULT '',
				at_line INTEGER NOT NULL DEFAULT 0,
				count INTEGER NOT NULL DEFAULT 1,
				UNIQUE (from_symbol_id, to_symbol_id, edge_type, at_file, at_line)
			);
			CREATE INDEX IF NOT EXISTS idx_edge_evidence_pair ON edge_evidence(from_symbol_id, to_symbol_id);

			CREATE TABLE IF NOT EXISTS usage_examples (
				to_symbol_id TEXT NOT NULL,
				from_symbol_id TEXT,
				example_type TEXT NOT NULL,
				file_path TEXT NOT NULL,
				line INTEGER,
				snippet TEXT NOT NULL DEFAULT '',
				UNIQUE (to_symbol_id, example_type, file_path, line, snippet)
			);
			CREATE INDEX IF NOT EXISTS idx_usage_examples_to ON usage_examples(to_symbol_id);
			CREATE INDEX IF NOT EXISTS idx_usage_examples_file ON usage_examples(file_path);

			CREATE TABLE IF NOT EXISTS file_fingerprints (
				file_path TEXT PRIMARY KEY,
				mtime_ns INTEGER NOT NULL,
				size_bytes INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS similarity_clusters (
				symbol_id TEXT PRIMARY KEY,
				cluster_key TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_similarity_clusters_key ON similarity_clusters(cluster_key);

			CREATE TABLE IF NOT EXISTS symbol_metrics (
				symbol_id TEXT PRIMARY KEY,
				pagerank REAL NOT NULL DEFAULT 0,
				in_degree INTEGER NOT NULL DEFAULT 0,
				out_degree INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS query_selections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				query_text TEXT NOT NULL,
				query_normalized TEXT NOT NULL,
				selected_symbol_id TEXT NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_query_selections_lookup
				ON query_selections(query_normalized, selected_symbol_id);

			CREATE TABLE IF NOT EXISTS repositories (
				id TEXT PRIMARY KEY,
				root_path TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS packages (
				id TEXT PRIMARY KEY,
				repository_id TEXT,
				manifest_path TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_packages_manifest ON packages(manifest_path);

			CREATE TABLE IF NOT EXISTS index_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL DEFAULT '',
				started_at INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				files_scanned INTEGER NOT NULL DEFAULT 0,
				files_indexed INTEGER NOT NULL DEFAULT 0,
				files_unchanged INTEGER NOT NULL DEFAULT 0,
				files_skipped INTEGER NOT NULL DEFAULT 0,
				files_deleted INTEGER NOT NULL DEFAULT 0,
				symbols_indexed INTEGER NOT NULL DEFAULT 0,
				edges_indexed INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS search_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				query TEXT NOT NULL DEFAULT '',
				started_at INTEGER NOT NULL DEFAULT 0,
				duration_ms INTEGER NOT NULL DEFAULT 0,
				keyword_ms INTEGER NOT NULL DEFAULT 0,
				vector_ms INTEGER NOT NULL DEFAULT 0,
				rank_ms INTEGER NOT NULL DEFAULT 0,
				assemble_ms INTEGER NOT NULL DEFAULT 0,
				hits INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: 2,
		Name:    "add_todos_and_test_links",
		SQL: `
			CREATE TABLE IF NOT EXISTS todos (
				file_path TEXT NOT NULL,
				line INTEGER NOT NULL,
				marker TEXT NOT NULL DEFAULT 'TODO',
				text TEXT NOT NULL DEFAULT '',
				UNIQUE (file_path, line, text)
			);
			CREATE INDEX IF NOT EXISTS idx_todos_file ON todos(file_path);

			CREATE TABLE IF NOT EXISTS test_links (
				test_symbol_id TEXT NOT NULL,
				target_symbol_id TEXT NOT NULL,
				UNIQUE (test_symbol_id, target_symbol_id)
			);
			CREATE INDEX IF NOT EXISTS idx_test_links_target ON test_links(target_symbol_id);
		`,
	},
}

// addedColumns lists columns introduced after their table first shipped.
// Each is applied with an idempotent ALTER TABLE whose duplicate-column
// error is ignored, so databases created at any version converge.
var addedColumns = []string{
	`ALTER TABLE symbols ADD COLUMN docstring TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE edges ADD COLUMN resolution TEXT NOT NULL DEFAULT 'unknown'`,
	`ALTER TABLE usage_examples ADD COLUMN from_symbol_id TEXT`,
}

// Migrate runs all pending versioned migrations inside transactions, then
// applies the additive column backfills.
func Migrate(d *sql.DB) error {
	if _, err := d.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name    TEXT NOT NULL,
			applied_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	row := d.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(d, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	for _, stmt := range addedColumns {
		// Duplicate-column errors mean the column already exists.
		_, _ = d.Exec(stmt)
	}
	return nil
}

func applyMigration(d *sql.DB, m migration) error {
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

// CurrentVersion returns the highest applied migration version (0 if none).
func CurrentVersion(d *sql.DB) (int, error) {
	var v int
	err := d.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// LatestVersion returns the latest migration version defined in code.
func LatestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
