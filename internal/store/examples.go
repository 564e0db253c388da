package store

import (
	"database/sql"

	"github.com/cimcp/cimcp/internal/symbols"
)

// insertExample inserts a usage example. The uniqueness tuple omits
// from_symbol_id, so distinct callers sharing a snippet coalesce.
func insertExample(q querier, ex symbols.UsageExample) error {
	var from any
	if ex.FromID != "" {
		from = ex.FromID
	}
	_, err := q.Exec(`
		INSERT OR IGNORE INTO usage_examples (to_symbol_id, from_symbol_id, example_type, file_path, line, snippet)
		VALUES (?,?,?,?,?,?)`,
		ex.ToID, from, string(ex.Type), ex.FilePath, ex.Line, ex.Snippet,
	)
	return err
}

// UsageExamplesFor returns up to limit examples attached to a target symbol.
func (s *Store) UsageExamplesFor(toID string, limit int) ([]symbols.UsageExample, error) {
	q := `SELECT to_symbol_id, COALESCE(from_symbol_id, ''), example_type, COALESCE(line, 0), file_path, snippet
		FROM usage_examples WHERE to_symbol_id = ? ORDER BY example_type, file_path, line`
	args := []any{toID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.Query(q, args...)
	if err != nil {
		return nil, err
	}
	return collectExamples(rows)
}

func collectExamples(rows *sql.Rows) ([]symbols.UsageExample, error) {
	defer func() { _ = rows.Close() }()
	var out []symbols.UsageExample
	for rows.Next() {
		var ex symbols.UsageExample
		var et string
		if err := rows.Scan(&ex.ToID, &ex.FromID, &et, &ex.Line, &ex.FilePath, &ex.Snippet); err != nil {
			return nil, err
		}
		ex.Type = symbols.ExampleType(et)
		out = append(out, ex)
	}
	return out, rows.Err()
}
