package store

import (
	"time"
)

// learningDecayLambda is the per-day exponential decay applied to
// historical selections.
const learningDecayLambda = 0.1

// RecordSelection appends one query selection. The table is append-only.
func (s *Store) RecordSelection(queryText, queryNormalized, symbolID string, position int, at time.Time) error {
	_, err := s.DB.Exec(
		`INSERT INTO query_selections (query_text, query_normalized, selected_symbol_id, position, created_at) VALUES (?,?,?,?,?)`,
		queryText, queryNormalized, symbolID, position, at.Unix(),
	)
	return err
}

// BatchBoost computes the learning boost for each candidate symbol id under
// one normalized query: sum over historical selections of
// (1/ln(position+2)) * exp(-lambda * age_days). Computed in SQL in a single
// query per search.
func (s *Store) BatchBoost(queryNormalized string, ids []string, now time.Time) (map[string]float64, error) {
	out := map[string]float64{}
	if len(ids) == 0 {
		return out, nil
	}
	args := append([]any{now.Unix(), learningDecayLambda, queryNormalized}, idArgs(ids)...)
	rows, err := s.DB.Query(`
		SELECT selected_symbol_id,
		       SUM((1.0 / LN(position + 2)) * EXP(-?2 * ((?1 - created_at) / 86400.0)))
		FROM query_selections
		WHERE query_normalized = ?3 AND selected_symbol_id IN (`+placeholders(len(ids))+`)
		GROUP BY selected_symbol_id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var boost float64
		if err := rows.Scan(&id, &boost); err != nil {
			return nil, err
		}
		out[id] = boost
	}
	return out, rows.Err()
}

// RecentlySelectedFiles returns file paths of symbols selected within the
// window, for the file-affinity signal.
func (s *Store) RecentlySelectedFiles(window time.Duration, now time.Time) (map[string]bool, error) {
	cutoff := now.Add(-window).Unix()
	rows, err := s.DB.Query(`
		SELECT DISTINCT sym.file_path
		FROM query_selections q
		JOIN symbols sym ON sym.id = q.selected_symbol_id
		WHERE q.created_at >= ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := map[string]bool{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = true
	}
	return out, rows.Err()
}
