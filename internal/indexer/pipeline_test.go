package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/db"
	"github.com/cimcp/cimcp/internal/keyword"
	"github.com/cimcp/cimcp/internal/retrieval"
	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/symbols"
	"github.com/cimcp/cimcp/internal/vector"
)

// setupPipeline builds a full stack over a temp base dir with the hash
// embedder.
func setupPipeline(t *testing.T) (*Indexer, *retrieval.Retriever, *config.Config) {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		BaseDir:              base,
		DBPath:               filepath.Join(base, ".cimcp", "code-intelligence.db"),
		VectorDBPath:         filepath.Join(base, ".cimcp", "vectors"),
		TantivyIndexPath:     filepath.Join(base, ".cimcp", "tantivy-index"),
		RepoRoots:            []string{base},
		HashEmbeddingDim:     64,
		EmbeddingBatchSize:   32,
		VectorSearchLimit:    20,
		HybridAlpha:          0.7,
		RankVectorWeight:     0.7,
		RankKeywordWeight:    0.3,
		RankExportedBoost:    0.1,
		RankPopularityWeight: 0.05,
		RankPopularityCap:    50,
		MaxContextTokens:     8192,
		TokenEncoding:        "bogus-encoding",
		PagerankDamping:      0.85,
		PagerankIterations:   20,
		RRFK:                 60,
		RRFKeywordWeight:     1,
		RRFVectorWeight:      1,
		RRFGraphWeight:       1,
	}

	d, err := db.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := db.Migrate(d); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}

	kw, err := keyword.Open(cfg.TantivyIndexPath)
	if err != nil {
		t.Fatalf("keyword.Open: %v", err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	emb := vector.NewHashEmbedder(cfg.HashEmbeddingDim)
	vec, err := vector.Open(cfg.VectorDBPath, emb.Dim())
	if err != nil {
		t.Fatalf("vector.Open: %v", err)
	}
	t.Cleanup(func() { _ = vec.Close() })

	st := store.New(d)
	return New(cfg, st, kw, vec, emb), retrieval.New(cfg, st, kw, vec, emb), cfg
}

func writeFile(t *testing.T, base, rel, content string) {
	t.Helper()
	path := filepath.Join(base, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const sampleTS = "export function alpha(){ return 1 }\nexport function beta(){ return alpha() }"

func TestIndexAndSearchEndToEnd(t *testing.T) {
	ix, rt, cfg := setupPipeline(t)
	writeFile(t, cfg.BaseDir, "src/a.ts", sampleTS)

	stats, err := ix.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.FilesIndexed != 1 {
		t.Fatalf("files indexed = %d", stats.FilesIndexed)
	}
	if stats.SymbolsIndexed < 3 {
		t.Fatalf("symbols = %d, want >= 3 including file root", stats.SymbolsIndexed)
	}

	resp, err := rt.Search(context.Background(), "alpha", retrieval.SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Hits) == 0 {
		t.Fatal("no hits for alpha")
	}
	wantID := symbols.StableID("src/a.ts", "alpha", 0, true)
	if resp.Hits[0].ID != wantID {
		t.Errorf("top hit = %s (%s), want alpha", resp.Hits[0].Name, resp.Hits[0].ID)
	}
	if !strings.Contains(resp.Context, "export function alpha") {
		t.Error("context missing alpha definition")
	}
}

func TestCallersIntentBypassesVectorSearch(t *testing.T) {
	ix, rt, cfg := setupPipeline(t)
	writeFile(t, cfg.BaseDir, "src/a.ts", sampleTS)
	if _, err := ix.IndexAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := rt.Search(context.Background(), "who calls alpha", retrieval.SearchOptions{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Hits) == 0 {
		t.Fatal("no callers found")
	}
	if resp.Hits[0].Name != "beta" {
		t.Errorf("top caller = %s, want beta", resp.Hits[0].Name)
	}
	if resp.Hits[0].Score != 1.0 {
		t.Errorf("caller score = %v, want 1.0", resp.Hits[0].Score)
	}
	sig := resp.Signals[resp.Hits[0].ID]
	if sig == nil || sig.VectorScore != 0 {
		t.Error("callers search should not consult the vector index")
	}
}

func TestFingerprintSkipAndIdempotence(t *testing.T) {
	ix, _, cfg := setupPipeline(t)
	writeFile(t, cfg.BaseDir, "src/a.ts", sampleTS)
	writeFile(t, cfg.BaseDir, "src/b.ts", "export const x = 1\n")

	first, err := ix.IndexAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.FilesIndexed != 2 {
		t.Fatalf("first pass indexed %d", first.FilesIndexed)
	}
	statsBefore, err := ix.Store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	kwBefore, _ := ix.Keyword.DocCount()
	vecBefore, _ := ix.Vector.Count()

	second, err := ix.IndexAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.FilesIndexed != 0 || second.SymbolsIndexed != 0 {
		t.Errorf("second pass should be a no-op: %s", second)
	}
	if second.FilesUnchanged != second.FilesScanned {
		t.Errorf("unchanged=%d scanned=%d", second.FilesUnchanged, second.FilesScanned)
	}

	statsAfter, err := ix.Store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if *statsBefore != *statsAfter {
		t.Errorf("store counts changed on no-op pass: %+v vs %+v", statsBefore, statsAfter)
	}
	kwAfter, _ := ix.Keyword.DocCount()
	vecAfter, _ := ix.Vector.Count()
	if kwBefore != kwAfter || vecBefore != vecAfter {
		t.Error("index counts changed on no-op pass")
	}
}

func TestCleanupRemovesVanishedFiles(t *testing.T) {
	ix, _, cfg := setupPipeline(t)
	writeFile(t, cfg.BaseDir, "src/a.ts", sampleTS)
	writeFile(t, cfg.BaseDir, "src/gone.ts", "export const g = 1\n")

	if _, err := ix.IndexAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(cfg.BaseDir, "src/gone.ts")); err != nil {
		t.Fatal(err)
	}

	stats, err := ix.IndexAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesDeleted != 1 {
		t.Errorf("deleted = %d, want 1", stats.FilesDeleted)
	}
	syms, err := ix.Store.SymbolsByFile("src/gone.ts", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 0 {
		t.Error("stale symbols survived cleanup")
	}
	if n, _ := ix.Keyword.CountForFile("src/gone.ts"); n != 0 {
		t.Error("stale keyword docs survived cleanup")
	}
}

func TestCrossStoreConsistency(t *testing.T) {
	ix, _, cfg := setupPipeline(t)
	writeFile(t, cfg.BaseDir, "src/a.ts", sampleTS)
	if _, err := ix.IndexAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	syms, err := ix.Store.SymbolsByFile("src/a.ts", false)
	if err != nil {
		t.Fatal(err)
	}
	kwDocs, err := ix.Keyword.CountForFile("src/a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if kwDocs != len(syms) {
		t.Errorf("keyword docs = %d, symbols = %d", kwDocs, len(syms))
	}
	vecRows, err := ix.Vector.Count()
	if err != nil {
		t.Fatal(err)
	}
	if int(vecRows) != len(syms) {
		t.Errorf("vector rows = %d, symbols = %d", vecRows, len(syms))
	}
}

func TestLearningBoostSignal(t *testing.T) {
	ix, rt, cfg := setupPipeline(t)
	cfg.LearningEnabled = true
	cfg.LearningSelectionBoost = 0.1
	writeFile(t, cfg.BaseDir, "src/a.ts", sampleTS)
	if _, err := ix.IndexAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	alphaID := symbols.StableID("src/a.ts", "alpha", 0, true)
	if err := rt.ReportSelection("alpha", alphaID, 0); err != nil {
		t.Fatalf("ReportSelection: %v", err)
	}

	resp, err := rt.Search(context.Background(), "alpha", retrieval.SearchOptions{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	sig := resp.Signals[alphaID]
	if sig == nil || sig.LearningBoost <= 0 {
		t.Errorf("learning boost not applied: %+v", sig)
	}
}
