package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/cimcp/cimcp/internal/symbols"
)

// tableName is the single logical table each process maintains.
const tableName = "symbols"

// Row is one stored embedding with its display columns.
type Row struct {
	Symbol symbols.Symbol
	Vector []float32
}

// Hit is one ANN search result; Score is cosine similarity.
type Hit struct {
	ID    string
	Score float64
}

// vectorDoc is the indexed document shape. Requires a Bleve build with
// vector support (the "vectors" build tag).
type vectorDoc struct {
	DocType  string    `json:"docType"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	FilePath string    `json:"filePath"`
	Exported bool      `json:"exported"`
	Language string    `json:"language"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
}

// Index is the ANN store. Writes go through a single connection guarded by
// a mutex; reads share the Bleve handle.
type Index struct {
	path string
	dim  int

	mu  sync.Mutex
	idx bleve.Index
}

// Open opens or creates the vector index at dir for vectors of the given
// dimension. A stored index with a different dimension is rebuilt.
func Open(dir string, dim int) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir vector dir: %w", err)
	}

	dimSentinel := filepath.Join(dir, "dim")
	blevePath := filepath.Join(dir, tableName+".bleve")

	stored, _ := os.ReadFile(dimSentinel)
	want := fmt.Sprintf("%d", dim)
	if len(stored) > 0 && string(stored) != want {
		if err := os.RemoveAll(blevePath); err != nil {
			return nil, fmt.Errorf("reset vector index: %w", err)
		}
	}

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(blevePath); statErr == nil {
		idx, err = bleve.Open(blevePath)
		if err != nil {
			return nil, fmt.Errorf("bleve open vectors: %w", err)
		}
	} else {
		idx, err = bleve.New(blevePath, buildVectorMapping(dim))
		if err != nil {
			return nil, fmt.Errorf("bleve new vectors: %w", err)
		}
	}
	if err := os.WriteFile(dimSentinel, []byte(want), 0644); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("write dim sentinel: %w", err)
	}
	return &Index{path: dir, dim: dim, idx: idx}, nil
}

func buildVectorMapping(dim int) mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.TypeField = "docType"
	m.DefaultType = tableName

	docMapping := mapping.NewDocumentMapping()

	kw := mapping.NewKeywordFieldMapping()
	kw.Store = true
	for _, f := range []string{"name", "kind", "filePath", "language"} {
		docMapping.AddFieldMappingsAt(f, kw)
	}
	boolField := mapping.NewBooleanFieldMapping()
	boolField.Store = true
	docMapping.AddFieldMappingsAt("exported", boolField)

	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = false
	docMapping.AddFieldMappingsAt("text", text)

	vec := mapping.NewVectorFieldMapping()
	vec.Dims = dim
	vec.Similarity = "cosine"
	docMapping.AddFieldMappingsAt("vector", vec)

	m.AddDocumentMapping(tableName, docMapping)
	return m
}

// Close releases the underlying index.
func (x *Index) Close() error {
	if x == nil || x.idx == nil {
		return nil
	}
	return x.idx.Close()
}

// Dim returns the fixed vector dimension.
func (x *Index) Dim() int { return x.dim }

// Append writes rows for one file in a single batch.
func (x *Index) Append(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	batch := x.idx.NewBatch()
	for _, r := range rows {
		if len(r.Vector) != x.dim {
			return fmt.Errorf("vector for %s has dim %d, want %d", r.Symbol.ID, len(r.Vector), x.dim)
		}
		text := r.Symbol.Text
		if len(text) > 8*1024 {
			text = text[:8*1024]
		}
		doc := vectorDoc{
			DocType:  tableName,
			Name:     r.Symbol.Name,
			Kind:     string(r.Symbol.Kind),
			FilePath: r.Symbol.FilePath,
			Exported: r.Symbol.Exported,
			Language: r.Symbol.Language,
			Text:     text,
			Vector:   r.Vector,
		}
		if err := batch.Index(r.Symbol.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", r.Symbol.ID, err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("bleve vector batch: %w", err)
	}
	return nil
}

// DeleteByFile removes every row whose filePath matches.
func (x *Index) DeleteByFile(filePath string) error {
	tq := bleve.NewTermQuery(filePath)
	tq.SetField("filePath")
	req := bleve.NewSearchRequestOptions(tq, 10000, 0, false)
	res, err := x.idx.Search(req)
	if err != nil {
		return fmt.Errorf("vector search by file: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	batch := x.idx.NewBatch()
	for _, h := range res.Hits {
		batch.Delete(h.ID)
	}
	return x.idx.Batch(batch)
}

// Search returns the k nearest rows to the query vector.
func (x *Index) Search(queryVec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	if len(queryVec) != x.dim {
		return nil, fmt.Errorf("query vector has dim %d, want %d", len(queryVec), x.dim)
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchNoneQuery(), k, 0, false)
	req.AddKNN("vector", queryVec, int64(k), 1.0)
	res, err := x.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of stored rows.
func (x *Index) Count() (uint64, error) {
	return x.idx.DocCount()
}
