// Package store wraps all relational database operations. The relational
// store is the single source of truth for symbols and edges; the keyword
// and vector indices hold derived copies keyed by symbol id.
package store

import (
	"database/sql"

	"github.com/cimcp/cimcp/internal/symbols"
)

// Store wraps DB operations over the relational schema.
type Store struct {
	DB *sql.DB
}

// New creates a Store over an opened, migrated database handle.
func New(d *sql.DB) *Store {
	return &Store{DB: d}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const symbolColumns = `id, file_path, language, kind, name, exported, start_byte, end_byte, start_line, end_line, text, docstring`

func scanSymbol(scan func(dest ...any) error) (symbols.Symbol, error) {
	var s symbols.Symbol
	var exported int
	var kind string
	err := scan(&s.ID, &s.FilePath, &s.Language, &kind, &s.Name, &exported,
		&s.StartByte, &s.EndByte, &s.StartLine, &s.EndLine, &s.Text, &s.Docstring)
	if err != nil {
		return symbols.Symbol{}, err
	}
	s.Kind = symbols.Kind(kind)
	s.Exported = exported != 0
	return s, nil
}

func collectSymbols(rows *sql.Rows) ([]symbols.Symbol, error) {
	defer func() { _ = rows.Close() }()
	var out []symbols.Symbol
	for rows.Next() {
		s, err := scanSymbol(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?,?,..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
