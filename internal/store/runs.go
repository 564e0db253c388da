package store

import "time"

// IndexRun is one telemetry row for an indexing pass.
type IndexRun struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	FilesScanned   int
	FilesIndexed   int
	FilesUnchanged int
	FilesSkipped   int
	FilesDeleted   int
	SymbolsIndexed int
	EdgesIndexed   int
}

// RecordIndexRun appends one index run row.
func (s *Store) RecordIndexRun(r IndexRun) error {
	_, err := s.DB.Exec(`
		INSERT INTO index_runs (run_id, started_at, duration_ms, files_scanned, files_indexed, files_unchanged, files_skipped, files_deleted, symbols_indexed, edges_indexed)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.StartedAt.Unix(), r.Duration.Milliseconds(),
		r.FilesScanned, r.FilesIndexed, r.FilesUnchanged, r.FilesSkipped,
		r.FilesDeleted, r.SymbolsIndexed, r.EdgesIndexed,
	)
	return err
}

// SearchRun is one telemetry row for a search.
type SearchRun struct {
	Query      string
	StartedAt  time.Time
	Duration   time.Duration
	KeywordMs  int64
	VectorMs   int64
	RankMs     int64
	AssembleMs int64
	Hits       int
}

// RecordSearchRun appends one search run row.
func (s *Store) RecordSearchRun(r SearchRun) error {
	_, err := s.DB.Exec(`
		INSERT INTO search_runs (query, started_at, duration_ms, keyword_ms, vector_ms, rank_ms, assemble_ms, hits)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.Query, r.StartedAt.Unix(), r.Duration.Milliseconds(),
		r.KeywordMs, r.VectorMs, r.RankMs, r.AssembleMs, r.Hits,
	)
	return err
}

// IndexStats summarizes the store contents for get_index_stats.
type IndexStats struct {
	Symbols       int64
	Edges         int64
	Files         int64
	UsageExamples int64
	Todos         int64
	Packages      int64
	Clusters      int64
}

// Stats counts the rows of the symbols, edges, file_fingerprints,
// usage_examples, todos, packages, and similarity_clusters tables.
func (s *Store) Stats() (*IndexStats, error) {
	stats := &IndexStats{}
	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM symbols`, &stats.Symbols},
		{`SELECT COUNT(*) FROM edges`, &stats.Edges},
		{`SELECT COUNT(*) FROM file_fingerprints`, &stats.Files},
		{`SELECT COUNT(*) FROM usage_examples`, &stats.UsageExamples},
		{`SELECT COUNT(*) FROM todos`, &stats.Todos},
		{`SELECT COUNT(*) FROM packages`, &stats.Packages},
		{`SELECT COUNT(*) FROM similarity_clusters`, &stats.Clusters},
	}
	for _, c := range counts {
		if err := s.DB.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
