package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	edlib "github.com/hbollon/go-edlib"

	"github.com/cimcp/cimcp/internal/assemble"
	"github.com/cimcp/cimcp/internal/symbols"
)

// StatusSymbolNotFound is the explicit status token for empty lookups;
// a missing symbol is not an error.
const StatusSymbolNotFound = "SYMBOL_NOT_FOUND"

// maxSuggestions caps fuzzy did-you-mean hints.
const maxSuggestions = 5

// DefinitionResponse is the payload for get_definition.
type DefinitionResponse struct {
	Rows         []RankedHit            `json:"rows"`
	Context      string                 `json:"context"`
	ContextItems []assemble.ContextItem `json:"contextItems"`
	Error        string                 `json:"error,omitempty"`
	Suggestions  []string               `json:"suggestions,omitempty"`
}

// GetDefinition looks a symbol up by exact name, assembling context for
// the matching rows. Unknown names return suggestions from a fuzzy pass
// over the stored names.
func (r *Retriever) GetDefinition(name, file string, limit int) (*DefinitionResponse, error) {
	if limit <= 0 {
		limit = 10
	}
	syms, err := r.Store.SymbolsByName(name, file)
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return &DefinitionResponse{
			Error:       StatusSymbolNotFound,
			Suggestions: r.suggestNames(name),
		}, nil
	}
	if len(syms) > limit {
		syms = syms[:limit]
	}

	resp := &DefinitionResponse{}
	var inputs []assemble.Input
	for _, s := range syms {
		resp.Rows = append(resp.Rows, toRankedHit(Hit{Symbol: s, Score: 1}))
		inputs = append(inputs, assemble.Input{
			Symbol:  s,
			Role:    assemble.RoleRoot,
			Reasons: []string{"definition"},
		})
	}
	resp.Context, resp.ContextItems = r.Assembler.Assemble(inputs, name, assemble.ModeDefault)
	return resp, nil
}

// suggestNames runs a similarity pass over the distinct symbol names.
func (r *Retriever) suggestNames(name string) []string {
	names, err := r.Store.AllSymbolNames()
	if err != nil || len(names) == 0 {
		return nil
	}
	type scored struct {
		name string
		sim  float32
	}
	var close []scored
	for _, n := range names {
		sim, err := edlib.StringsSimilarity(strings.ToLower(name), strings.ToLower(n), edlib.Levenshtein)
		if err != nil {
			continue
		}
		if sim >= 0.6 {
			close = append(close, scored{name: n, sim: sim})
		}
	}
	sort.Slice(close, func(i, j int) bool {
		if close[i].sim != close[j].sim {
			return close[i].sim > close[j].sim
		}
		return close[i].name < close[j].name
	})
	var out []string
	for i, c := range close {
		if i >= maxSuggestions {
			break
		}
		out = append(out, c.name)
	}
	return out
}

// Reference is one find_references entry.
type Reference struct {
	Symbol     RankedHit `json:"symbol"`
	EdgeType   string    `json:"edgeType"`
	AtFile     string    `json:"atFile"`
	AtLine     int       `json:"atLine"`
	Confidence float64   `json:"confidence"`
	Resolution string    `json:"resolution"`
}

// FindReferences lists incoming edges of the named symbol, optionally
// filtered to one edge type.
func (r *Retriever) FindReferences(name, edgeType string, limit int) ([]Reference, error) {
	if limit <= 0 {
		limit = 50
	}
	targets, err := r.Store.SymbolsByName(name, "")
	if err != nil {
		return nil, err
	}
	var types []symbols.EdgeType
	if edgeType != "" {
		types = []symbols.EdgeType{symbols.EdgeType(edgeType)}
	}
	var out []Reference
	for _, t := range targets {
		edges, err := r.Store.IncomingEdges(t.ID, types, limit-len(out))
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			src, err := r.Store.SymbolByID(e.FromID)
			if err != nil {
				return nil, err
			}
			if src == nil {
				continue
			}
			out = append(out, Reference{
				Symbol:     toRankedHit(Hit{Symbol: *src}),
				EdgeType:   string(e.Type),
				AtFile:     e.AtFile,
				AtLine:     e.AtLine,
				Confidence: e.Confidence,
				Resolution: string(e.Resolution),
			})
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UsageExampleEntry is one rendered usage example.
type UsageExampleEntry struct {
	ExampleType string `json:"exampleType"`
	FilePath    string `json:"filePath"`
	Line        int    `json:"line,omitempty"`
	Snippet     string `json:"snippet"`
}

// GetUsageExamples returns stored snippets for the named symbol.
func (r *Retriever) GetUsageExamples(name string, limit int) ([]UsageExampleEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	targets, err := r.Store.SymbolsByName(name, "")
	if err != nil {
		return nil, err
	}
	var out []UsageExampleEntry
	for _, t := range targets {
		examples, err := r.Store.UsageExamplesFor(t.ID, limit-len(out))
		if err != nil {
			return nil, err
		}
		for _, ex := range examples {
			out = append(out, UsageExampleEntry{
				ExampleType: string(ex.Type),
				FilePath:    ex.FilePath,
				Line:        ex.Line,
				Snippet:     ex.Snippet,
			})
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// HydrateSymbols assembles context for explicit symbol ids.
func (r *Retriever) HydrateSymbols(ids []string, mode assemble.Mode) (string, []assemble.ContextItem, error) {
	syms, err := r.Store.SymbolsByIDs(ids)
	if err != nil {
		return "", nil, err
	}
	clusterKeys, err := r.Store.ClusterKeysFor(ids)
	if err != nil {
		return "", nil, err
	}
	var inputs []assemble.Input
	for _, s := range syms {
		inputs = append(inputs, assemble.Input{
			Symbol:     s,
			Role:       assemble.RoleRoot,
			ClusterKey: clusterKeys[s.ID],
			Reasons:    []string{"hydrate"},
		})
	}
	ctx, items := r.Assembler.Assemble(inputs, "", mode)
	return ctx, items, nil
}

// ClusterResponse is the payload for get_similarity_cluster.
type ClusterResponse struct {
	ClusterKey string      `json:"clusterKey"`
	Members    []RankedHit `json:"members"`
	Error      string      `json:"error,omitempty"`
}

// GetSimilarityCluster lists the members of the cluster the named symbol
// belongs to.
func (r *Retriever) GetSimilarityCluster(name string, limit int) (*ClusterResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	syms, err := r.Store.SymbolsByName(name, "")
	if err != nil {
		return nil, err
	}
	if len(syms) == 0 {
		return &ClusterResponse{Error: StatusSymbolNotFound}, nil
	}
	keys, err := r.Store.ClusterKeysFor([]string{syms[0].ID})
	if err != nil {
		return nil, err
	}
	key := keys[syms[0].ID]
	if key == "" {
		return &ClusterResponse{Error: StatusSymbolNotFound}, nil
	}
	memberIDs, err := r.Store.SymbolIDsInCluster(key, limit)
	if err != nil {
		return nil, err
	}
	members, err := r.Store.SymbolsByIDs(memberIDs)
	if err != nil {
		return nil, err
	}
	resp := &ClusterResponse{ClusterKey: key}
	for _, m := range members {
		resp.Members = append(resp.Members, toRankedHit(Hit{Symbol: m}))
	}
	return resp, nil
}

// SimilarCodeHit is one find_similar_code result.
type SimilarCodeHit struct {
	Symbol     RankedHit `json:"symbol"`
	Similarity float64   `json:"similarity"`
}

// FindSimilarCode embeds the snippet and runs a pure vector search,
// keeping hits at or above the similarity threshold.
func (r *Retriever) FindSimilarCode(ctx context.Context, text string, threshold float64, limit int) ([]SimilarCodeHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vecs, err := r.Embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	hits, err := r.Vector.Search(vecs[0], limit*2)
	if err != nil {
		return nil, err
	}
	var ids []string
	scoreByID := map[string]float64{}
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		ids = append(ids, h.ID)
		scoreByID[h.ID] = h.Score
	}
	syms, err := r.Store.SymbolsByIDs(ids)
	if err != nil {
		return nil, err
	}
	var out []SimilarCodeHit
	for _, s := range syms {
		if len(out) >= limit {
			break
		}
		out = append(out, SimilarCodeHit{
			Symbol:     toRankedHit(Hit{Symbol: s}),
			Similarity: scoreByID[s.ID],
		})
	}
	return out, nil
}

// ModuleFileSummary aggregates one file's exported surface.
type ModuleFileSummary struct {
	FilePath   string   `json:"filePath"`
	Signatures []string `json:"signatures"`
}

// GetModuleSummary lists the exported symbols per file under a path
// prefix with extracted signatures.
func (r *Retriever) GetModuleSummary(pathPrefix string, limit int) ([]ModuleFileSummary, error) {
	if limit <= 0 {
		limit = 200
	}
	syms, err := r.Store.SymbolsByPathPrefix(pathPrefix, true)
	if err != nil {
		return nil, err
	}
	byFile := map[string][]string{}
	var order []string
	count := 0
	for _, s := range syms {
		if s.Kind == symbols.KindFile || count >= limit {
			continue
		}
		if _, ok := byFile[s.FilePath]; !ok {
			order = append(order, s.FilePath)
		}
		byFile[s.FilePath] = append(byFile[s.FilePath], extractSignature(s))
		count++
	}
	out := make([]ModuleFileSummary, 0, len(order))
	for _, f := range order {
		out = append(out, ModuleFileSummary{FilePath: f, Signatures: byFile[f]})
	}
	return out, nil
}

// extractSignature renders the first declaration line of a symbol.
func extractSignature(s symbols.Symbol) string {
	line := s.Text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "{"))
	if len(line) > 160 {
		line = line[:160]
	}
	return line
}

// ReportSelection persists one user selection for the learning boost.
func (r *Retriever) ReportSelection(query, symbolID string, position int) error {
	return r.Store.RecordSelection(query, Normalize(query), symbolID, position, time.Now())
}

// ExplainSearch runs a search without context assembly and returns the
// per-hit signal decomposition.
func (r *Retriever) ExplainSearch(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	return r.Search(ctx, query, SearchOptions{Limit: limit, SkipContext: true})
}
