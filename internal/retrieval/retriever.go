package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cimcp/cimcp/internal/assemble"
	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/graph"
	"github.com/cimcp/cimcp/internal/keyword"
	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/symbols"
	"github.com/cimcp/cimcp/internal/vector"
)

// affinityWindow bounds how far back recent selections count toward the
// file-affinity signal.
const affinityWindow = 7 * 24 * time.Hour

// examplesPerRoot caps stitched usage examples per root hit.
const examplesPerRoot = 5

// Reranker reorders the top candidates; when absent the base ranker is
// authoritative.
type Reranker interface {
	Rerank(query string, hits []Hit) ([]Hit, error)
}

// Retriever answers queries against the three stores.
type Retriever struct {
	Cfg       *config.Config
	Store     *store.Store
	Keyword   *keyword.Index
	Vector    *vector.Index
	Embedder  vector.Embedder
	Assembler *assemble.Assembler
	Reranker  Reranker // optional
}

// New wires a Retriever.
func New(cfg *config.Config, st *store.Store, kw *keyword.Index, vec *vector.Index, emb vector.Embedder) *Retriever {
	return &Retriever{
		Cfg:       cfg,
		Store:     st,
		Keyword:   kw,
		Vector:    vec,
		Embedder:  emb,
		Assembler: assemble.New(cfg),
	}
}

// RankedHit is the wire form of one search result.
type RankedHit struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	FilePath  string  `json:"filePath"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Exported  bool    `json:"exported"`
	Score     float64 `json:"score"`
	Expanded  bool    `json:"expanded,omitempty"`
}

// SearchResponse is the full payload for the search operation.
type SearchResponse struct {
	Hits         []RankedHit            `json:"hits"`
	Context      string                 `json:"context"`
	ContextItems []assemble.ContextItem `json:"contextItems"`
	Signals      map[string]*Signals    `json:"signals,omitempty"`
	Intent       string                 `json:"intent,omitempty"`
	Query        string                 `json:"query"`
}

// SearchOptions tune one search call.
type SearchOptions struct {
	Limit        int
	ExportedOnly bool
	// QueryPackage is the caller-supplied package id context; when empty
	// the package is auto-detected from the top hit's file.
	QueryPackage string
	SkipContext  bool
}

// Search runs the full hybrid retrieval pipeline.
func (r *Retriever) Search(ctx context.Context, rawQuery string, opts SearchOptions) (*SearchResponse, error) {
	start := time.Now()
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	query := TrimQuery(rawQuery, maxQueryLen)
	cleaned, controls := ParseControls(query)
	intent := DetectIntent(cleaned)

	var timings searchTimings
	var hits []Hit
	var signals map[string]*Signals
	var err error

	if intent.Kind == IntentCallers && intent.Target != "" {
		hits, signals, err = r.callersSearch(intent.Target, controls)
	} else {
		hits, signals, err = r.hybridSearch(ctx, cleaned, controls, intent, opts, &timings)
	}
	if err != nil {
		return nil, err
	}

	if opts.ExportedOnly {
		filtered := hits[:0]
		for _, h := range hits {
			if h.Symbol.Exported {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	rankStart := time.Now()
	hits = diversifyByCluster(hits, opts.Limit)
	hits = diversifyByKind(hits, opts.Limit)
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	// Graph expansion of the top hits; expansion ids route to the
	// "extra"/"expanded" roles during assembly.
	hits, err = r.expand(hits, opts.Limit)
	if err != nil {
		return nil, err
	}
	timings.rank += time.Since(rankStart)

	resp := &SearchResponse{
		Query:   cleaned,
		Intent:  string(intent.Kind),
		Signals: signals,
		Hits:    make([]RankedHit, 0, len(hits)),
	}
	for _, h := range hits {
		resp.Hits = append(resp.Hits, toRankedHit(h))
	}

	if !opts.SkipContext {
		assembleStart := time.Now()
		resp.Context, resp.ContextItems = r.assembleFromHits(hits, cleaned, assemble.ModeDefault)
		timings.assemble = time.Since(assembleStart)
	}

	if err := r.Store.RecordSearchRun(store.SearchRun{
		Query:      cleaned,
		StartedAt:  start,
		Duration:   time.Since(start),
		KeywordMs:  timings.keyword.Milliseconds(),
		VectorMs:   timings.vector.Milliseconds(),
		RankMs:     timings.rank.Milliseconds(),
		AssembleMs: timings.assemble.Milliseconds(),
		Hits:       len(resp.Hits),
	}); err != nil {
		log.Printf("warning: record search run: %v", err)
	}
	return resp, nil
}

type searchTimings struct {
	keyword  time.Duration
	vector   time.Duration
	rank     time.Duration
	assemble time.Duration
}

// callersSearch bypasses both indices: an exact name lookup plus incoming
// call and reference edges, every hit scored 1.0.
func (r *Retriever) callersSearch(name string, controls Controls) ([]Hit, map[string]*Signals, error) {
	targets, err := r.Store.SymbolsByName(name, controls.File)
	if err != nil {
		return nil, nil, err
	}
	signals := map[string]*Signals{}
	var callerIDs []string
	seen := map[string]bool{}
	for _, t := range targets {
		edges, err := r.Store.IncomingEdges(t.ID, []symbols.EdgeType{symbols.EdgeCall, symbols.EdgeReference}, 0)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range edges {
			if !seen[e.FromID] {
				seen[e.FromID] = true
				callerIDs = append(callerIDs, e.FromID)
			}
		}
	}
	syms, err := r.Store.SymbolsByIDs(callerIDs)
	if err != nil {
		return nil, nil, err
	}
	clusterKeys, err := r.Store.ClusterKeysFor(callerIDs)
	if err != nil {
		return nil, nil, err
	}
	hits := make([]Hit, 0, len(syms))
	for _, s := range syms {
		if !matchesControls(s, controls) {
			continue
		}
		hits = append(hits, Hit{Symbol: s, Score: 1.0, ClusterKey: clusterKeys[s.ID]})
		signals[s.ID] = &Signals{BaseScore: 1.0, IntentMult: 1, VectorScore: 0}
	}
	sortHits(hits)
	return hits, signals, nil
}

// hybridSearch fetches keyword and vector hits for every sub-query, ranks
// them, and fuses compound queries by RRF.
func (r *Retriever) hybridSearch(ctx context.Context, cleaned string, controls Controls, intent Intent, opts SearchOptions, timings *searchTimings) ([]Hit, map[string]*Signals, error) {
	if controls.ID != "" {
		sym, err := r.Store.SymbolByID(controls.ID)
		if err != nil {
			return nil, nil, err
		}
		if sym == nil {
			return nil, map[string]*Signals{}, nil
		}
		return []Hit{{Symbol: *sym, Score: 1.0}},
			map[string]*Signals{sym.ID: {BaseScore: 1.0, IntentMult: 1}}, nil
	}

	subQueries := Decompose(cleaned, decomposeMaxDepth)
	if len(subQueries) == 0 {
		subQueries = []string{cleaned}
	}

	if len(subQueries) == 1 {
		return r.rankOne(ctx, subQueries[0], controls, intent, opts, timings)
	}

	// Compound query: execute each sub-query independently and merge the
	// ranked lists by reciprocal-rank fusion.
	lists := make([]rrfList, 0, len(subQueries))
	allHits := map[string]Hit{}
	allSignals := map[string]*Signals{}
	for _, sq := range subQueries {
		hits, signals, err := r.rankOne(ctx, sq, controls, intent, opts, timings)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]string, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, h.Symbol.ID)
			if _, ok := allHits[h.Symbol.ID]; !ok {
				allHits[h.Symbol.ID] = h
				allSignals[h.Symbol.ID] = signals[h.Symbol.ID]
			}
		}
		lists = append(lists, rrfList{weight: 1, ids: ids})
	}

	fusedIDs, fusedScores := fuseRRF(r.Cfg.RRFK, lists)
	fused := make([]Hit, 0, len(fusedIDs))
	for _, id := range fusedIDs {
		h := allHits[id]
		h.Score = fusedScores[id]
		fused = append(fused, h)
	}
	sortHits(fused)
	return fused, allSignals, nil
}

// rankOne runs one sub-query through both indices and the ranker.
func (r *Retriever) rankOne(ctx context.Context, subQuery string, controls Controls, intent Intent, opts SearchOptions, timings *searchTimings) ([]Hit, map[string]*Signals, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	k := r.Cfg.VectorSearchLimit
	if opts.Limit > k {
		k = opts.Limit
	}
	if k < 5 {
		k = 5
	}

	tokens := strings.Fields(Normalize(subQuery))

	kwStart := time.Now()
	kwHits, err := r.Keyword.Search(tokens, keyword.Filters{
		FilePath: controls.File,
		Language: controls.Lang,
		Kind:     controls.Kind,
	}, k)
	if err != nil {
		return nil, nil, fmt.Errorf("keyword search: %w", err)
	}
	timings.keyword += time.Since(kwStart)

	vecStart := time.Now()
	vecHits, err := r.vectorHits(ctx, subQuery, k)
	if err != nil {
		log.Printf("warning: vector search: %v", err)
		vecHits = nil
	}
	timings.vector += time.Since(vecStart)

	keywordScore := map[string]float64{}
	for _, h := range kwHits {
		keywordScore[h.ID] = h.Score
	}
	vectorScore := map[string]float64{}
	for _, h := range vecHits {
		vectorScore[h.ID] = h.Score
	}

	ids := make([]string, 0, len(keywordScore)+len(vectorScore))
	for id := range keywordScore {
		ids = append(ids, id)
	}
	for id := range vectorScore {
		if _, ok := keywordScore[id]; !ok {
			ids = append(ids, id)
		}
	}

	candidates, err := r.Store.SymbolsByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	candidates = filterByControls(candidates, controls)

	in := rankInput{
		cfg:          r.Cfg,
		query:        subQuery,
		intent:       intent,
		candidates:   candidates,
		keywordScore: keywordScore,
		vectorScore:  vectorScore,
		queryPackage: opts.QueryPackage,
	}
	if in.clusterKeys, err = r.Store.ClusterKeysFor(ids); err != nil {
		return nil, nil, err
	}
	if in.popularity, err = r.Store.IncomingEdgeCounts(ids); err != nil {
		return nil, nil, err
	}
	if r.Cfg.LearningEnabled {
		now := time.Now()
		if in.learning, err = r.Store.BatchBoost(Normalize(subQuery), ids, now); err != nil {
			return nil, nil, err
		}
		if in.affinity, err = r.Store.RecentlySelectedFiles(affinityWindow, now); err != nil {
			return nil, nil, err
		}
	}
	in.packageOf = func(filePath string) string {
		id, err := r.Store.PackageForFile(filePath)
		if err != nil {
			return ""
		}
		return id
	}

	hits, signals := rankHits(in)

	// Package context auto-detection: when the caller supplied none, the
	// top hit's package becomes the context and the list is re-ranked once.
	if in.queryPackage == "" && len(hits) > 0 {
		if pkg := in.packageOf(hits[0].Symbol.FilePath); pkg != "" {
			in.queryPackage = pkg
			hits, signals = rankHits(in)
		}
	}

	if r.Reranker != nil && len(hits) > 0 {
		topK := r.Cfg.RerankerTopK
		if topK > len(hits) {
			topK = len(hits)
		}
		reranked, err := r.Reranker.Rerank(subQuery, hits[:topK])
		if err != nil {
			log.Printf("warning: reranker: %v", err)
		} else {
			hits = append(reranked, hits[topK:]...)
		}
	}

	return hits, signals, nil
}

// vectorHits embeds the query once and searches the ANN store.
func (r *Retriever) vectorHits(ctx context.Context, query string, k int) ([]vector.Hit, error) {
	prompt := vector.QueryPrompt(query, ContainsCodeSnippet(query))
	vecs, err := r.Embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return r.Vector.Search(vecs[0], k)
}

// expand merges the one-hop graph neighborhood of the top hits into the
// list, re-sorts, and truncates.
func (r *Retriever) expand(hits []Hit, limit int) ([]Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}
	seen := map[string]bool{}
	seeds := make([]graph.Seed, 0, len(hits))
	for _, h := range hits {
		seen[h.Symbol.ID] = true
		seeds = append(seeds, graph.Seed{ID: h.Symbol.ID, Kind: h.Symbol.Kind, Score: h.Score})
	}
	expansions, err := graph.Expand(r.Store, seeds, seen)
	if err != nil {
		return nil, err
	}
	if len(expansions) == 0 {
		return hits, nil
	}

	ids := make([]string, 0, len(expansions))
	scoreByID := map[string]float64{}
	for _, e := range expansions {
		ids = append(ids, e.ID)
		scoreByID[e.ID] = e.Score
	}
	syms, err := r.Store.SymbolsByIDs(ids)
	if err != nil {
		return nil, err
	}
	clusterKeys, err := r.Store.ClusterKeysFor(ids)
	if err != nil {
		return nil, err
	}
	for _, s := range syms {
		hits = append(hits, Hit{
			Symbol:     s,
			Score:      scoreByID[s.ID],
			ClusterKey: clusterKeys[s.ID],
			Expanded:   true,
		})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// assembleFromHits routes ranked hits to roots, stitched usage examples to
// extras, and graph expansions to the expanded role.
func (r *Retriever) assembleFromHits(hits []Hit, query string, mode assemble.Mode) (string, []assemble.ContextItem) {
	var inputs []assemble.Input
	var extras []assemble.Input
	var expanded []assemble.Input
	seen := map[string]bool{}

	for _, h := range hits {
		if h.Expanded {
			expanded = append(expanded, assemble.Input{
				Symbol:     h.Symbol,
				Role:       assemble.RoleExpanded,
				ClusterKey: h.ClusterKey,
				Reasons:    []string{"graph-neighborhood"},
			})
			continue
		}
		seen[h.Symbol.ID] = true
		inputs = append(inputs, assemble.Input{
			Symbol:     h.Symbol,
			Role:       assemble.RoleRoot,
			ClusterKey: h.ClusterKey,
			Reasons:    []string{"ranked"},
		})
	}

	// Stitch usage examples for roots: the defining symbols of up to five
	// example sites per root.
	for _, in := range inputs {
		examples, err := r.Store.UsageExamplesFor(in.Symbol.ID, examplesPerRoot)
		if err != nil {
			continue
		}
		for _, ex := range examples {
			if ex.FromID == "" || seen[ex.FromID] {
				continue
			}
			caller, err := r.Store.SymbolByID(ex.FromID)
			if err != nil || caller == nil || caller.Kind == symbols.KindFile {
				continue
			}
			seen[ex.FromID] = true
			extras = append(extras, assemble.Input{
				Symbol:  *caller,
				Role:    assemble.RoleExtra,
				Reasons: []string{fmt.Sprintf("usage of %s", in.Symbol.Name)},
			})
		}
	}

	all := append(append(inputs, extras...), expanded...)
	return r.Assembler.Assemble(all, query, mode)
}

func toRankedHit(h Hit) RankedHit {
	return RankedHit{
		ID:        h.Symbol.ID,
		Name:      h.Symbol.Name,
		Kind:      string(h.Symbol.Kind),
		FilePath:  h.Symbol.FilePath,
		StartLine: h.Symbol.StartLine,
		EndLine:   h.Symbol.EndLine,
		Exported:  h.Symbol.Exported,
		Score:     h.Score,
		Expanded:  h.Expanded,
	}
}

func matchesControls(s symbols.Symbol, c Controls) bool {
	if c.File != "" && s.FilePath != c.File {
		return false
	}
	if c.Path != "" && !pathHasPrefix(s.FilePath, c.Path) {
		return false
	}
	if c.Lang != "" && s.Language != c.Lang {
		return false
	}
	if c.Kind != "" && string(s.Kind) != c.Kind {
		return false
	}
	return true
}

func filterByControls(syms []symbols.Symbol, c Controls) []symbols.Symbol {
	if c.File == "" && c.Path == "" && c.Lang == "" && c.Kind == "" {
		return syms
	}
	out := syms[:0]
	for _, s := range syms {
		if matchesControls(s, c) {
			out = append(out, s)
		}
	}
	return out
}

func pathHasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	if path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || prefix[len(prefix)-1] == '/'
}

