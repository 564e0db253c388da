package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cimcp/cimcp/internal/db"
	"github.com/cimcp/cimcp/internal/symbols"
)

// setupTestStore creates a temporary migrated DB and returns a Store.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	d, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := db.Migrate(d); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	return New(d)
}

func testSymbol(filePath, name string, kind symbols.Kind, exported bool, start int) symbols.Symbol {
	return symbols.Symbol{
		ID:        symbols.StableID(filePath, name, start, exported),
		FilePath:  filePath,
		Language:  "typescript",
		Kind:      kind,
		Name:      name,
		Exported:  exported,
		StartByte: start,
		EndByte:   start + 20,
		StartLine: 1,
		EndLine:   2,
		Text:      "function " + name + "() {}",
	}
}

func TestReplaceFileDataRoundTrip(t *testing.T) {
	st := setupTestStore(t)

	alpha := testSymbol("src/a.ts", "alpha", symbols.KindFunction, true, 0)
	beta := testSymbol("src/a.ts", "beta", symbols.KindFunction, true, 40)
	data := &FileData{
		FilePath: "src/a.ts",
		Symbols:  []symbols.Symbol{alpha, beta},
		Edges: []symbols.Edge{{
			FromID: beta.ID, ToID: alpha.ID, Type: symbols.EdgeCall,
			AtFile: "src/a.ts", AtLine: 2, Confidence: 1.0, EvidenceCount: 1,
			Resolution: symbols.ResolutionLocal,
		}},
		Examples: []symbols.UsageExample{{
			ToID: alpha.ID, FromID: beta.ID, Type: symbols.ExampleCall,
			FilePath: "src/a.ts", Line: 2, Snippet: "return alpha()",
		}},
		Clusters:  map[string]string{alpha.ID: "k1", beta.ID: "k1"},
		MtimeNs:   123,
		SizeBytes: 456,
	}
	if err := st.ReplaceFileData(data); err != nil {
		t.Fatalf("ReplaceFileData: %v", err)
	}

	got, err := st.SymbolByID(alpha.ID)
	if err != nil || got == nil {
		t.Fatalf("SymbolByID: %v %v", got, err)
	}
	if got.Name != "alpha" || !got.Exported {
		t.Errorf("symbol round trip mismatch: %+v", got)
	}

	fp, err := st.FingerprintFor("src/a.ts")
	if err != nil || fp == nil {
		t.Fatalf("FingerprintFor: %v %v", fp, err)
	}
	if fp.MtimeNs != 123 || fp.SizeBytes != 456 {
		t.Errorf("fingerprint mismatch: %+v", fp)
	}

	edges, err := st.IncomingEdges(alpha.ID, nil, 0)
	if err != nil || len(edges) != 1 {
		t.Fatalf("IncomingEdges: %v %v", edges, err)
	}

	// Replacing the file again must not duplicate anything.
	if err := st.ReplaceFileData(data); err != nil {
		t.Fatalf("ReplaceFileData again: %v", err)
	}
	syms, err := st.SymbolsByFile("src/a.ts", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 2 {
		t.Errorf("symbols after reindex = %d, want 2", len(syms))
	}
}

func TestEdgeUpsertMergesByMax(t *testing.T) {
	st := setupTestStore(t)
	from := testSymbol("src/a.ts", "f", symbols.KindFunction, true, 0)
	to := testSymbol("src/a.ts", "g", symbols.KindFunction, true, 40)
	if err := st.ReplaceFileData(&FileData{FilePath: "src/a.ts", Symbols: []symbols.Symbol{from, to}}); err != nil {
		t.Fatal(err)
	}

	for _, ec := range []struct {
		conf  float64
		count int
	}{{0.8, 1}, {0.5, 7}, {0.9, 3}} {
		if err := st.UpsertEdge(symbols.Edge{
			FromID: from.ID, ToID: to.ID, Type: symbols.EdgeCall,
			Confidence: ec.conf, EvidenceCount: ec.count,
		}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}

	edges, err := st.OutgoingEdges(from.ID, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %d, want 1 merged row", len(edges))
	}
	if edges[0].Confidence != 0.9 || edges[0].EvidenceCount != 7 {
		t.Errorf("merged edge = conf %v count %d, want 0.9 and 7", edges[0].Confidence, edges[0].EvidenceCount)
	}
}

func TestDeleteFileCascades(t *testing.T) {
	st := setupTestStore(t)
	a := testSymbol("src/a.ts", "a", symbols.KindFunction, true, 0)
	b := testSymbol("src/b.ts", "b", symbols.KindFunction, true, 0)
	if err := st.ReplaceFileData(&FileData{
		FilePath: "src/a.ts",
		Symbols:  []symbols.Symbol{a},
		Clusters: map[string]string{a.ID: "k"},
		Todos:    []symbols.Todo{{FilePath: "src/a.ts", Line: 3, Marker: "TODO", Text: "x"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.ReplaceFileData(&FileData{
		FilePath: "src/b.ts",
		Symbols:  []symbols.Symbol{b},
		Edges: []symbols.Edge{{
			FromID: b.ID, ToID: a.ID, Type: symbols.EdgeCall, Confidence: 1, EvidenceCount: 1,
		}},
	}); err != nil {
		t.Fatal(err)
	}

	if err := st.DeleteFile("src/a.ts"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if got, _ := st.SymbolByID(a.ID); got != nil {
		t.Error("symbol survived delete")
	}
	if fp, _ := st.FingerprintFor("src/a.ts"); fp != nil {
		t.Error("fingerprint survived delete")
	}
	if edges, _ := st.IncomingEdges(a.ID, nil, 0); len(edges) != 0 {
		t.Error("edges into deleted symbol survived")
	}
	stats, err := st.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Todos != 0 || stats.Clusters != 0 {
		t.Errorf("cascade left todos=%d clusters=%d", stats.Todos, stats.Clusters)
	}
}

func TestLearningBoostDecays(t *testing.T) {
	st := setupTestStore(t)
	now := time.Now()

	if err := st.RecordSelection("foo", "foo", "sym-xyz", 0, now); err != nil {
		t.Fatalf("RecordSelection: %v", err)
	}

	fresh, err := st.BatchBoost("foo", []string{"sym-xyz"}, now)
	if err != nil {
		t.Fatalf("BatchBoost: %v", err)
	}
	if fresh["sym-xyz"] <= 0 {
		t.Fatalf("fresh boost = %v, want > 0", fresh["sym-xyz"])
	}

	aged, err := st.BatchBoost("foo", []string{"sym-xyz"}, now.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("BatchBoost aged: %v", err)
	}
	if aged["sym-xyz"] <= 0 {
		t.Fatalf("aged boost = %v, want > 0", aged["sym-xyz"])
	}
	// exp(-0.1 * 30) = e^-3 of the initial value.
	ratio := aged["sym-xyz"] / fresh["sym-xyz"]
	if ratio < 0.0497 || ratio > 0.0499 {
		t.Errorf("decay ratio = %v, want ~e^-3", ratio)
	}

	other, err := st.BatchBoost("bar", []string{"sym-xyz"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if other["sym-xyz"] != 0 {
		t.Errorf("boost leaked across queries: %v", other)
	}
}

func TestPackageForFilePicksDeepest(t *testing.T) {
	st := setupTestStore(t)
	pkgs := []Package{
		{ID: "root", ManifestPath: "package.json", Name: "root"},
		{ID: "web", ManifestPath: "apps/web/package.json", Name: "web"},
	}
	for _, p := range pkgs {
		if err := st.UpsertPackage(p); err != nil {
			t.Fatal(err)
		}
	}

	id, err := st.PackageForFile("apps/web/src/index.ts")
	if err != nil {
		t.Fatal(err)
	}
	if id != "web" {
		t.Errorf("PackageForFile = %q, want web", id)
	}

	id, err = st.PackageForFile("lib/util.ts")
	if err != nil {
		t.Fatal(err)
	}
	if id != "root" {
		t.Errorf("PackageForFile = %q, want root", id)
	}
}

func TestRecentlySelectedFiles(t *testing.T) {
	st := setupTestStore(t)
	sym := testSymbol("src/a.ts", "a", symbols.KindFunction, true, 0)
	if err := st.ReplaceFileData(&FileData{FilePath: "src/a.ts", Symbols: []symbols.Symbol{sym}}); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := st.RecordSelection("q", "q", sym.ID, 0, now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	files, err := st.RecentlySelectedFiles(24*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if !files["src/a.ts"] {
		t.Error("recent selection not reflected")
	}

	files, err = st.RecentlySelectedFiles(30*time.Minute, now)
	if err != nil {
		t.Fatal(err)
	}
	if files["src/a.ts"] {
		t.Error("selection outside window should not count")
	}
}
