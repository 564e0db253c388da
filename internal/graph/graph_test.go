package graph

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cimcp/cimcp/internal/db"
	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/symbols"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := db.Migrate(d); err != nil {
		t.Fatalf("db.Migrate: %v", err)
	}
	return store.New(d)
}

func seedSymbol(t *testing.T, st *store.Store, file, name string, kind symbols.Kind) symbols.Symbol {
	t.Helper()
	s := symbols.Symbol{
		ID:       symbols.StableID(file, name, 0, true),
		FilePath: file,
		Kind:     kind,
		Name:     name,
		Exported: true,
		EndByte:  1,
		Text:     name,
	}
	if err := st.ReplaceFileData(&store.FileData{FilePath: file, Symbols: []symbols.Symbol{s}}); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return s
}

func seedEdge(t *testing.T, st *store.Store, from, to symbols.Symbol, et symbols.EdgeType) {
	t.Helper()
	if err := st.UpsertEdge(symbols.Edge{
		FromID: from.ID, ToID: to.ID, Type: et,
		Confidence: et.Confidence(), EvidenceCount: 1,
		Resolution: symbols.ResolutionLocal,
	}); err != nil {
		t.Fatalf("seed edge: %v", err)
	}
}

func TestPageRankEmptyGraph(t *testing.T) {
	st := setupTestStore(t)
	if err := ComputeAndStorePageRank(st, 0.85, 20); err != nil {
		t.Fatalf("empty graph: %v", err)
	}
}

func TestPageRankMassConservedWithoutSinks(t *testing.T) {
	st := setupTestStore(t)
	// Three-node cycle: no dangling sinks, total mass stays 1.
	a := seedSymbol(t, st, "a.ts", "a", symbols.KindFunction)
	b := seedSymbol(t, st, "b.ts", "b", symbols.KindFunction)
	c := seedSymbol(t, st, "c.ts", "c", symbols.KindFunction)
	seedEdge(t, st, a, b, symbols.EdgeCall)
	seedEdge(t, st, b, c, symbols.EdgeCall)
	seedEdge(t, st, c, a, symbols.EdgeCall)

	if err := ComputeAndStorePageRank(st, 0.85, 20); err != nil {
		t.Fatalf("pagerank: %v", err)
	}

	metrics, err := st.MetricsFor([]string{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, m := range metrics {
		sum += m.PageRank
	}
	if math.Abs(sum-1.0) > 1e-3 {
		t.Errorf("pagerank mass = %v, want ~1", sum)
	}
	for id, m := range metrics {
		if m.InDegree != 1 || m.OutDegree != 1 {
			t.Errorf("%s degrees = in %d out %d", id, m.InDegree, m.OutDegree)
		}
	}
}

func TestPageRankExcludesFileSymbols(t *testing.T) {
	st := setupTestStore(t)
	f := seedSymbol(t, st, "a.ts", "a.ts", symbols.KindFile)
	fn := seedSymbol(t, st, "b.ts", "fn", symbols.KindFunction)
	seedEdge(t, st, f, fn, symbols.EdgeContains)

	if err := ComputeAndStorePageRank(st, 0.85, 20); err != nil {
		t.Fatal(err)
	}
	metrics, err := st.MetricsFor([]string{f.ID, fn.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := metrics[f.ID]; ok {
		t.Error("file symbol has pagerank metrics")
	}
	if _, ok := metrics[fn.ID]; !ok {
		t.Error("non-file symbol missing metrics")
	}
}

func TestExpandFunctionPullsCallees(t *testing.T) {
	st := setupTestStore(t)
	f := seedSymbol(t, st, "a.ts", "f", symbols.KindFunction)
	g := seedSymbol(t, st, "b.ts", "g", symbols.KindFunction)
	h := seedSymbol(t, st, "c.ts", "h", symbols.KindFunction)
	seedEdge(t, st, f, g, symbols.EdgeCall)
	seedEdge(t, st, f, h, symbols.EdgeCall)

	exps, err := Expand(st, []Seed{{ID: f.ID, Kind: symbols.KindFunction, Score: 2.0}},
		map[string]bool{f.ID: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(exps) != 2 {
		t.Fatalf("expansions = %d, want 2", len(exps))
	}
	for _, e := range exps {
		if e.Score != 1.6 {
			t.Errorf("expansion score = %v, want 0.8 * 2.0", e.Score)
		}
		if e.ParentID != f.ID {
			t.Errorf("parent = %s", e.ParentID)
		}
	}
}

func TestExpandTypePullsIncomingReferences(t *testing.T) {
	st := setupTestStore(t)
	typ := seedSymbol(t, st, "t.ts", "Shape", symbols.KindInterface)
	user := seedSymbol(t, st, "u.ts", "draw", symbols.KindFunction)
	seedEdge(t, st, user, typ, symbols.EdgeReference)

	exps, err := Expand(st, []Seed{{ID: typ.ID, Kind: symbols.KindInterface, Score: 1.0}},
		map[string]bool{typ.ID: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(exps) != 1 || exps[0].ID != user.ID {
		t.Fatalf("expansions = %+v, want draw", exps)
	}
}

func TestCallHierarchyUpstream(t *testing.T) {
	st := setupTestStore(t)
	callee := seedSymbol(t, st, "a.ts", "alpha", symbols.KindFunction)
	caller := seedSymbol(t, st, "b.ts", "beta", symbols.KindFunction)
	seedEdge(t, st, caller, callee, symbols.EdgeCall)

	res, err := CallHierarchy(st, "alpha", DirectionUpstream, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("no result")
	}
	foundCaller := false
	for _, n := range res.Nodes {
		if n.ID == caller.ID {
			foundCaller = true
		}
	}
	if !foundCaller {
		t.Error("caller missing from upstream hierarchy")
	}
	if len(res.Edges) != 1 || res.Edges[0].Type != "call" {
		t.Errorf("edges = %+v", res.Edges)
	}
}

func TestExploreUnknownSymbol(t *testing.T) {
	st := setupTestStore(t)
	res, err := Explore(st, "missing", DirectionBidirectional, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Error("expected nil result for unknown symbol")
	}
}

func TestParseDirection(t *testing.T) {
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("invalid direction accepted")
	}
	d, err := ParseDirection("")
	if err != nil || d != DirectionBidirectional {
		t.Errorf("empty direction = %v, %v", d, err)
	}
}
