package store

import (
	"database/sql"
	"fmt"

	"github.com/cimcp/cimcp/internal/symbols"
)

// FileData is everything extracted from one file, stored atomically.
type FileData struct {
	FilePath  string
	Symbols   []symbols.Symbol
	Edges     []symbols.Edge
	Evidence  []symbols.Evidence
	Examples  []symbols.UsageExample
	Todos     []symbols.Todo
	TestLinks [][2]string // (test_symbol_id, target_symbol_id)
	Clusters  map[string]string
	MtimeNs   int64
	SizeBytes int64
}

// ReplaceFileData deletes all prior relational rows for a file and inserts
// the fresh extraction inside one transaction, finishing with the
// fingerprint write so a committed fingerprint always means committed rows.
func (s *Store) ReplaceFileData(data *FileData) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteFileRows(tx, data.FilePath); err != nil {
		return fmt.Errorf("delete prior rows for %s: %w", data.FilePath, err)
	}

	for _, sym := range data.Symbols {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO symbols (`+symbolColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			sym.ID, sym.FilePath, sym.Language, string(sym.Kind), sym.Name,
			boolToInt(sym.Exported), sym.StartByte, sym.EndByte,
			sym.StartLine, sym.EndLine, sym.Text, sym.Docstring,
		); err != nil {
			return fmt.Errorf("insert symbol %q: %w", sym.Name, err)
		}
	}

	for _, e := range data.Edges {
		if err := upsertEdge(tx, e); err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", e.FromID, e.ToID, err)
		}
	}
	for _, ev := range data.Evidence {
		if err := upsertEvidence(tx, ev); err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
	}
	for _, ex := range data.Examples {
		if err := insertExample(tx, ex); err != nil {
			return fmt.Errorf("insert usage example: %w", err)
		}
	}
	for _, td := range data.Todos {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO todos (file_path, line, marker, text) VALUES (?,?,?,?)`,
			td.FilePath, td.Line, td.Marker, td.Text,
		); err != nil {
			return fmt.Errorf("insert todo: %w", err)
		}
	}
	for _, tl := range data.TestLinks {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO test_links (test_symbol_id, target_symbol_id) VALUES (?,?)`,
			tl[0], tl[1],
		); err != nil {
			return fmt.Errorf("insert test link: %w", err)
		}
	}
	for id, key := range data.Clusters {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO similarity_clusters (symbol_id, cluster_key) VALUES (?,?)`,
			id, key,
		); err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO file_fingerprints (file_path, mtime_ns, size_bytes) VALUES (?,?,?)`,
		data.FilePath, data.MtimeNs, data.SizeBytes,
	); err != nil {
		return fmt.Errorf("write fingerprint: %w", err)
	}

	return tx.Commit()
}

// DeleteFile removes every relational row associated with a file, including
// its fingerprint.
func (s *Store) DeleteFile(filePath string) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	if err := deleteFileRows(tx, filePath); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM file_fingerprints WHERE file_path = ?`, filePath); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteFileRows cascades from a file path: symbols, their edges and
// evidence, usage examples, todos, test links, clusters.
func deleteFileRows(q querier, filePath string) error {
	rows, err := q.Query(`SELECT id FROM symbols WHERE file_path = ?`, filePath)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(ids) > 0 {
		ph := placeholders(len(ids))
		args := idArgs(ids)
		stmts := []string{
			`DELETE FROM edges WHERE from_symbol_id IN (` + ph + `) OR to_symbol_id IN (` + ph + `)`,
			`DELETE FROM edge_evidence WHERE from_symbol_id IN (` + ph + `) OR to_symbol_id IN (` + ph + `)`,
			`DELETE FROM test_links WHERE test_symbol_id IN (` + ph + `) OR target_symbol_id IN (` + ph + `)`,
			`DELETE FROM similarity_clusters WHERE symbol_id IN (` + ph + `)`,
			`DELETE FROM symbol_metrics WHERE symbol_id IN (` + ph + `)`,
		}
		doubled := append(append([]any{}, args...), args...)
		for _, stmt := range stmts[:3] {
			if _, err := q.Exec(stmt, doubled...); err != nil {
				return err
			}
		}
		for _, stmt := range stmts[3:] {
			if _, err := q.Exec(stmt, args...); err != nil {
				return err
			}
		}
	}

	for _, stmt := range []string{
		`DELETE FROM symbols WHERE file_path = ?`,
		`DELETE FROM usage_examples WHERE file_path = ?`,
		`DELETE FROM todos WHERE file_path = ?`,
	} {
		if _, err := q.Exec(stmt, filePath); err != nil {
			return err
		}
	}
	return nil
}

// SymbolByID fetches one symbol; (nil, nil) when absent.
func (s *Store) SymbolByID(id string) (*symbols.Symbol, error) {
	row := s.DB.QueryRow(`SELECT `+symbolColumns+` FROM symbols WHERE id = ?`, id)
	sym, err := scanSymbol(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sym, nil
}

// SymbolsByIDs fetches symbols preserving the order of ids.
func (s *Store) SymbolsByIDs(ids []string) ([]symbols.Symbol, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(
		`SELECT `+symbolColumns+` FROM symbols WHERE id IN (`+placeholders(len(ids))+`)`,
		idArgs(ids)...,
	)
	if err != nil {
		return nil, err
	}
	found, err := collectSymbols(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]symbols.Symbol, len(found))
	for _, sym := range found {
		byID[sym.ID] = sym
	}
	out := make([]symbols.Symbol, 0, len(found))
	for _, id := range ids {
		if sym, ok := byID[id]; ok {
			out = append(out, sym)
		}
	}
	return out, nil
}

// SymbolsByName returns all symbols with an exact name match, optionally
// filtered to one file.
func (s *Store) SymbolsByName(name, filePath string) ([]symbols.Symbol, error) {
	if filePath != "" {
		rows, err := s.DB.Query(
			`SELECT `+symbolColumns+` FROM symbols WHERE name = ? AND file_path = ? ORDER BY file_path, start_byte`,
			name, filePath,
		)
		if err != nil {
			return nil, err
		}
		return collectSymbols(rows)
	}
	rows, err := s.DB.Query(
		`SELECT `+symbolColumns+` FROM symbols WHERE name = ? ORDER BY file_path, start_byte`, name,
	)
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

// SymbolsByFile returns all symbols defined in a file.
func (s *Store) SymbolsByFile(filePath string, exportedOnly bool) ([]symbols.Symbol, error) {
	q := `SELECT ` + symbolColumns + ` FROM symbols WHERE file_path = ?`
	if exportedOnly {
		q += ` AND exported = 1`
	}
	q += ` ORDER BY start_byte`
	rows, err := s.DB.Query(q, filePath)
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

// AllSymbolNames returns the distinct symbol names in the store; used for
// fuzzy did-you-mean suggestions.
func (s *Store) AllSymbolNames() ([]string, error) {
	rows, err := s.DB.Query(`SELECT DISTINCT name FROM symbols WHERE kind != 'file'`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NonFileSymbolIDs returns ids of all symbols with kind != "file".
func (s *Store) NonFileSymbolIDs() ([]string, error) {
	rows, err := s.DB.Query(`SELECT id FROM symbols WHERE kind != 'file'`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SymbolsByPathPrefix returns symbols whose file path starts with prefix.
func (s *Store) SymbolsByPathPrefix(prefix string, exportedOnly bool) ([]symbols.Symbol, error) {
	q := `SELECT ` + symbolColumns + ` FROM symbols WHERE file_path LIKE ? ESCAPE '\'`
	if exportedOnly {
		q += ` AND exported = 1`
	}
	q += ` ORDER BY file_path, start_byte`
	rows, err := s.DB.Query(q, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

func likePrefix(prefix string) string {
	escaped := ""
	for _, r := range prefix {
		switch r {
		case '%', '_', '\\':
			escaped += `\` + string(r)
		default:
			escaped += string(r)
		}
	}
	return escaped + "%"
}
