// Package keyword provides the Bleve-backed full-text index over symbol
// names and bodies, with code-aware tokenization and a character-n-gram
// fallback for short partial queries.
package keyword

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/cimcp/cimcp/internal/symbols"
)

// schemaVersion is bumped whenever the document shape changes; a mismatch
// erases and rebuilds the index directory.
const schemaVersion = "3"

const sentinelFileName = "schema_version"

// Doc is the indexed document shape for one symbol.
type Doc struct {
	Kind       string `json:"kind"`
	FilePath   string `json:"filePath"`
	Language   string `json:"language"`
	Name       string `json:"name"`
	Exported   bool   `json:"exported"`
	NameTokens string `json:"nameTokens"`
	TextTokens string `json:"textTokens"`
	Trigrams   string `json:"trigrams"`
}

// Hit is one keyword search result.
type Hit struct {
	ID    string
	Score float64
}

// Index wraps a Bleve index with a single-writer mutex. Readers go through
// Bleve's own snapshot isolation.
type Index struct {
	path string

	mu  sync.Mutex // serializes writers
	idx bleve.Index
}

// Open opens or creates the keyword index at path. A schema_version
// sentinel mismatch erases the directory; stale writer lock files are
// removed first.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("mkdir index dir: %w", err)
	}

	removeStaleLocks(path)

	sentinel := filepath.Join(path, sentinelFileName)
	current, _ := os.ReadFile(sentinel)
	if string(current) != schemaVersion {
		if len(current) != 0 {
			if err := os.RemoveAll(path); err != nil {
				return nil, fmt.Errorf("reset keyword index: %w", err)
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
		}
	}

	bleveDir := filepath.Join(path, "index.bleve")
	var idx bleve.Index
	if _, err := os.Stat(bleveDir); err == nil {
		idx, err = bleve.Open(bleveDir)
		if err != nil {
			return nil, fmt.Errorf("bleve open: %w", err)
		}
	} else {
		idx, err = bleve.New(bleveDir, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("bleve new: %w", err)
		}
	}
	if err := os.WriteFile(sentinel, []byte(schemaVersion), 0644); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("write schema sentinel: %w", err)
	}
	return &Index{path: path, idx: idx}, nil
}

func removeStaleLocks(path string) {
	for _, name := range []string{"index.bleve/store/root.bolt.lock", "writer.lock", "meta.lock"} {
		_ = os.Remove(filepath.Join(path, name))
	}
}

func buildMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.TypeField = "docType"
	m.DefaultType = "symbol"

	docMapping := mapping.NewDocumentMapping()

	text := mapping.NewTextFieldMapping()
	text.Store = true

	kw := mapping.NewKeywordFieldMapping()
	kw.Store = true

	boolField := mapping.NewBooleanFieldMapping()
	boolField.Store = true

	docMapping.AddFieldMappingsAt("filePath", kw)
	docMapping.AddFieldMappingsAt("kind", kw)
	docMapping.AddFieldMappingsAt("language", kw)
	docMapping.AddFieldMappingsAt("exported", boolField)

	docMapping.AddFieldMappingsAt("name", kw)
	docMapping.AddFieldMappingsAt("nameTokens", text)
	docMapping.AddFieldMappingsAt("textTokens", text)
	docMapping.AddFieldMappingsAt("trigrams", text)

	m.AddDocumentMapping("symbol", docMapping)
	return m
}

// Close releases the underlying index.
func (x *Index) Close() error {
	if x == nil || x.idx == nil {
		return nil
	}
	return x.idx.Close()
}

// IndexSymbols writes documents for a batch of symbols in one Bleve batch.
// The caller batches per file; this is the per-file commit.
func (x *Index) IndexSymbols(syms []symbols.Symbol) error {
	if len(syms) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	batch := x.idx.NewBatch()
	for _, s := range syms {
		// Bodies are indexed token-split but capped so the file root of a
		// large file does not dominate the postings.
		text := s.Text
		if len(text) > 16*1024 {
			text = text[:16*1024]
		}
		doc := Doc{
			Kind:       string(s.Kind),
			FilePath:   s.FilePath,
			Language:   s.Language,
			Name:       s.Name,
			Exported:   s.Exported,
			NameTokens: TokenizeJoined(s.Name),
			TextTokens: TokenizeJoined(text),
			Trigrams:   NGrams(s.Name),
		}
		if err := batch.Index(s.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", s.ID, err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve batch: %w", err)
	}
	return nil
}

// DeleteByFile removes every document whose filePath matches.
func (x *Index) DeleteByFile(filePath string) error {
	ids, err := x.idsForFile(filePath)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	batch := x.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return x.idx.Batch(batch)
}

func (x *Index) idsForFile(filePath string) ([]string, error) {
	tq := bleve.NewTermQuery(filePath)
	tq.SetField("filePath")
	req := bleve.NewSearchRequestOptions(tq, 10000, 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search by file: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// DocCount returns the number of indexed documents.
func (x *Index) DocCount() (uint64, error) {
	return x.idx.DocCount()
}

// CountForFile returns the number of documents indexed under one file path.
func (x *Index) CountForFile(filePath string) (int, error) {
	ids, err := x.idsForFile(filePath)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Filters restricts a search to specific field values.
type Filters struct {
	FilePath    string
	Language    string
	Kind        string
	Exported    bool // only applied when ExportedSet is true
	ExportedSet bool
}

// Search runs the relevance query for the normalized query tokens. When a
// single short token (3 to 12 characters) yields too few hits, the n-gram
// fallback widens the net.
func (x *Index) Search(tokens []string, filters Filters, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	joined := strings.Join(tokens, " ")
	if strings.TrimSpace(joined) == "" {
		return nil, nil
	}

	hits, err := x.search(relevanceQuery(joined, tokens), filters, limit)
	if err != nil {
		return nil, err
	}

	if len(hits) < limit/2 && len(tokens) == 1 {
		if n := len(tokens[0]); n >= 3 && n <= 12 {
			gramQ := bleve.NewMatchQuery(NGrams(tokens[0]))
			gramQ.SetField("trigrams")
			more, err := x.search(gramQ, filters, limit)
			if err != nil {
				return nil, err
			}
			seen := map[string]bool{}
			for _, h := range hits {
				seen[h.ID] = true
			}
			for _, h := range more {
				if !seen[h.ID] {
					hits = append(hits, h)
				}
			}
			if len(hits) > limit {
				hits = hits[:limit]
			}
		}
	}
	return hits, nil
}

func relevanceQuery(joined string, tokens []string) query.Query {
	qName := bleve.NewMatchQuery(joined)
	qName.SetField("nameTokens")
	qName.SetBoost(3.0)

	qText := bleve.NewMatchQuery(joined)
	qText.SetField("textTokens")
	qText.SetBoost(1.0)

	parts := []query.Query{qName, qText}

	// Exact name matches rank above token matches.
	for _, tok := range tokens {
		tq := bleve.NewTermQuery(tok)
		tq.SetField("name")
		tq.SetBoost(5.0)
		parts = append(parts, tq)
	}

	return bleve.NewDisjunctionQuery(parts...)
}

func (x *Index) search(relQ query.Query, filters Filters, limit int) ([]Hit, error) {
	conj := []query.Query{relQ}
	addTerm := func(field, value string) {
		tq := bleve.NewTermQuery(value)
		tq.SetField(field)
		conj = append(conj, tq)
	}
	if filters.FilePath != "" {
		addTerm("filePath", filters.FilePath)
	}
	if filters.Language != "" {
		addTerm("language", filters.Language)
	}
	if filters.Kind != "" {
		addTerm("kind", filters.Kind)
	}
	if filters.ExportedSet {
		bq := bleve.NewBoolFieldQuery(filters.Exported)
		bq.SetField("exported")
		conj = append(conj, bq)
	}

	var final query.Query = conj[0]
	if len(conj) > 1 {
		final = bleve.NewConjunctionQuery(conj...)
	}

	req := bleve.NewSearchRequestOptions(final, limit, 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}
