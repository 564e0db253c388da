package store

import (
	"time"
)

// Metrics is the per-symbol graph popularity record.
type Metrics struct {
	SymbolID  string
	PageRank  float64
	InDegree  int64
	OutDegree int64
}

// ReplaceMetrics atomically replaces the full symbol_metrics table.
// PageRank recomputation is bulk by nature; partial updates would leave
// stale ranks behind.
func (s *Store) ReplaceMetrics(metrics []Metrics) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM symbol_metrics`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, m := range metrics {
		if _, err := tx.Exec(
			`INSERT INTO symbol_metrics (symbol_id, pagerank, in_degree, out_degree, updated_at) VALUES (?,?,?,?,?)`,
			m.SymbolID, m.PageRank, m.InDegree, m.OutDegree, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MetricsFor returns stored metrics for the given symbol ids.
func (s *Store) MetricsFor(ids []string) (map[string]Metrics, error) {
	out := map[string]Metrics{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(
		`SELECT symbol_id, pagerank, in_degree, out_degree FROM symbol_metrics WHERE symbol_id IN (`+placeholders(len(ids))+`)`,
		idArgs(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var m Metrics
		if err := rows.Scan(&m.SymbolID, &m.PageRank, &m.InDegree, &m.OutDegree); err != nil {
			return nil, err
		}
		out[m.SymbolID] = m
	}
	return out, rows.Err()
}

// ClusterKeysFor returns cluster keys for the given symbol ids.
func (s *Store) ClusterKeysFor(ids []string) (map[string]string, error) {
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(
		`SELECT symbol_id, cluster_key FROM similarity_clusters WHERE symbol_id IN (`+placeholders(len(ids))+`)`,
		idArgs(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		out[id] = key
	}
	return out, rows.Err()
}

// SymbolIDsInCluster returns the members of one similarity cluster.
func (s *Store) SymbolIDsInCluster(clusterKey string, limit int) ([]string, error) {
	q := `SELECT symbol_id FROM similarity_clusters WHERE cluster_key = ? ORDER BY symbol_id`
	args := []any{clusterKey}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.Query(q, args...)
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
