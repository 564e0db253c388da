package graph

import (
	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/symbols"
)

// expansion constants: how many top hits seed expansion, how many edges
// each contributes, and the score decay applied to neighbors.
const (
	expandSeeds        = 3
	expandEdgesPerSeed = 5
	expandScoreFactor  = 0.8
)

// Seed is one ranked hit eligible for neighborhood expansion.
type Seed struct {
	ID    string
	Kind  symbols.Kind
	Score float64
}

// Expansion is one symbol pulled in through the graph neighborhood.
type Expansion struct {
	ID       string
	ParentID string
	Score    float64
}

// Expand pulls one hop of related symbols for the top seeds: outgoing
// calls for function-like hits, incoming type relations for type-like
// hits. Already-seen ids are skipped.
func Expand(st *store.Store, seeds []Seed, seen map[string]bool) ([]Expansion, error) {
	var out []Expansion
	added := map[string]bool{}

	for i, seed := range seeds {
		if i >= expandSeeds {
			break
		}
		switch {
		case symbols.IsFunctionKind(seed.Kind):
			edges, err := st.OutgoingEdges(seed.ID, []symbols.EdgeType{symbols.EdgeCall}, expandEdgesPerSeed)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if seen[e.ToID] || added[e.ToID] {
					continue
				}
				added[e.ToID] = true
				out = append(out, Expansion{ID: e.ToID, ParentID: seed.ID, Score: expandScoreFactor * seed.Score})
			}
		case symbols.IsTypeKind(seed.Kind):
			edges, err := st.IncomingEdges(seed.ID, []symbols.EdgeType{
				symbols.EdgeReference, symbols.EdgeExtends, symbols.EdgeImplements, symbols.EdgeAlias,
			}, expandEdgesPerSeed)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if seen[e.FromID] || added[e.FromID] {
					continue
				}
				added[e.FromID] = true
				out = append(out, Expansion{ID: e.FromID, ParentID: seed.ID, Score: expandScoreFactor * seed.Score})
			}
		}
	}
	return out, nil
}
