package store

import (
	"github.com/cimcp/cimcp/internal/symbols"
)

// upsertEdge inserts an edge, merging an existing (from, to, type) row by
// max(confidence) and max(evidence_count).
func upsertEdge(q querier, e symbols.Edge) error {
	if e.EvidenceCount < 1 {
		e.EvidenceCount = 1
	}
	_, err := q.Exec(`
		INSERT INTO edges (from_symbol_id, to_symbol_id, edge_type, at_file, at_line, confidence, evidence_count, resolution)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (from_symbol_id, to_symbol_id, edge_type) DO UPDATE SET
			confidence = MAX(confidence, excluded.confidence),
			evidence_count = MAX(evidence_count, excluded.evidence_count),
			at_file = excluded.at_file,
			at_line = excluded.at_line,
			resolution = excluded.resolution`,
		e.FromID, e.ToID, string(e.Type), e.AtFile, e.AtLine, e.Confidence, e.EvidenceCount, string(e.Resolution),
	)
	return err
}

func upsertEvidence(q querier, ev symbols.Evidence) error {
	if ev.Count < 1 {
		ev.Count = 1
	}
	_, err := q.Exec(`
		INSERT INTO edge_evidence (from_symbol_id, to_symbol_id, edge_type, at_file, at_line, count)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (from_symbol_id, to_symbol_id, edge_type, at_file, at_line) DO UPDATE SET
			count = MAX(count, excluded.count)`,
		ev.FromID, ev.ToID, string(ev.Type), ev.AtFile, ev.AtLine, ev.Count,
	)
	return err
}

// UpsertEdge is the exported single-edge form used outside the per-file
// transaction.
func (s *Store) UpsertEdge(e symbols.Edge) error {
	return upsertEdge(s.DB, e)
}

func scanEdges(q querier, query string, args ...any) ([]symbols.Edge, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []symbols.Edge
	for rows.Next() {
		var e symbols.Edge
		var et, res string
		if err := rows.Scan(&e.FromID, &e.ToID, &et, &e.AtFile, &e.AtLine, &e.Confidence, &e.EvidenceCount, &res); err != nil {
			return nil, err
		}
		e.Type = symbols.EdgeType(et)
		e.Resolution = symbols.Resolution(res)
		out = append(out, e)
	}
	return out, rows.Err()
}

const edgeColumns = `from_symbol_id, to_symbol_id, edge_type, at_file, at_line, confidence, evidence_count, resolution`

// OutgoingEdges returns edges from a symbol, optionally filtered by types.
func (s *Store) OutgoingEdges(fromID string, types []symbols.EdgeType, limit int) ([]symbols.Edge, error) {
	q := `SELECT ` + edgeColumns + ` FROM edges WHERE from_symbol_id = ?`
	args := []any{fromID}
	q, args = appendTypeFilter(q, args, types)
	q += ` ORDER BY confidence DESC, evidence_count DESC, to_symbol_id`
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT ?`
	}
	return scanEdges(s.DB, q, args...)
}

// IncomingEdges returns edges into a symbol, optionally filtered by types.
func (s *Store) IncomingEdges(toID string, types []symbols.EdgeType, limit int) ([]symbols.Edge, error) {
	q := `SELECT ` + edgeColumns + ` FROM edges WHERE to_symbol_id = ?`
	args := []any{toID}
	q, args = appendTypeFilter(q, args, types)
	q += ` ORDER BY confidence DESC, evidence_count DESC, from_symbol_id`
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT ?`
	}
	return scanEdges(s.DB, q, args...)
}

func appendTypeFilter(q string, args []any, types []symbols.EdgeType) (string, []any) {
	if len(types) == 0 {
		return q, args
	}
	q += ` AND edge_type IN (` + placeholders(len(types)) + `)`
	for _, t := range types {
		args = append(args, string(t))
	}
	return q, args
}

// AllNonFileEdges returns (from, to) pairs where both endpoints are
// non-file symbols; the adjacency input for PageRank.
func (s *Store) AllNonFileEdges() ([][2]string, error) {
	rows, err := s.DB.Query(`
		SELECT e.from_symbol_id, e.to_symbol_id
		FROM edges e
		JOIN symbols sf ON sf.id = e.from_symbol_id AND sf.kind != 'file'
		JOIN symbols st ON st.id = e.to_symbol_id AND st.kind != 'file'`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out [][2]string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out = append(out, [2]string{from, to})
	}
	return out, rows.Err()
}

// IncomingEdgeCounts returns the number of incoming edges per symbol id.
func (s *Store) IncomingEdgeCounts(ids []string) (map[string]int64, error) {
	if len(ids) == 0 {
		return map[string]int64{}, nil
	}
	rows, err := s.DB.Query(
		`SELECT to_symbol_id, COUNT(*) FROM edges WHERE to_symbol_id IN (`+placeholders(len(ids))+`) GROUP BY to_symbol_id`,
		idArgs(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int64, len(ids))
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// EvidenceFor returns the evidence rows backing one edge.
func (s *Store) EvidenceFor(fromID, toID string, edgeType symbols.EdgeType) ([]symbols.Evidence, error) {
	rows, err := s.DB.Query(`
		SELECT from_symbol_id, to_symbol_id, edge_type, at_file, at_line, count
		FROM edge_evidence
		WHERE from_symbol_id = ? AND to_symbol_id = ? AND edge_type = ?
		ORDER BY at_file, at_line`,
		fromID, toID, string(edgeType))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []symbols.Evidence
	for rows.Next() {
		var ev symbols.Evidence
		var et string
		if err := rows.Scan(&ev.FromID, &ev.ToID, &et, &ev.AtFile, &ev.AtLine, &ev.Count); err != nil {
			return nil, err
		}
		ev.Type = symbols.EdgeType(et)
		out = append(out, ev)
	}
	return out, rows.Err()
}
