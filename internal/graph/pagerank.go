// Package graph builds in-memory adjacency from the relational edge table
// on demand: PageRank, ranked-hit expansion, and the exploration
// traversals. No persistent pointer graph exists; ownership is by id.
package graph

import (
	"fmt"

	"github.com/cimcp/cimcp/internal/store"
)

// ComputeAndStorePageRank recomputes PageRank over all non-file symbols
// and replaces the symbol_metrics table. An empty graph returns
// immediately.
func ComputeAndStorePageRank(st *store.Store, damping float64, iterations int) error {
	ids, err := st.NonFileSymbolIDs()
	if err != nil {
		return fmt.Errorf("load symbol ids: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	edges, err := st.AllNonFileEdges()
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}

	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}

	out := make([][]int, len(ids))
	inDegree := make([]int64, len(ids))
	outDegree := make([]int64, len(ids))
	for _, e := range edges {
		from, okF := idx[e[0]]
		to, okT := idx[e[1]]
		if !okF || !okT {
			continue
		}
		out[from] = append(out[from], to)
		outDegree[from]++
		inDegree[to]++
	}

	n := float64(len(ids))
	scores := make([]float64, len(ids))
	next := make([]float64, len(ids))
	for i := range scores {
		scores[i] = 1 / n
	}

	for iter := 0; iter < iterations; iter++ {
		base := (1 - damping) / n
		for i := range next {
			next[i] = base
		}
		for from, targets := range out {
			if len(targets) == 0 {
				continue
			}
			share := damping * scores[from] / float64(len(targets))
			for _, to := range targets {
				next[to] += share
			}
		}
		scores, next = next, scores
	}

	metrics := make([]store.Metrics, len(ids))
	for i, id := range ids {
		metrics[i] = store.Metrics{
			SymbolID:  id,
			PageRank:  scores[i],
			InDegree:  inDegree[i],
			OutDegree: outDegree[i],
		}
	}
	return st.ReplaceMetrics(metrics)
}
