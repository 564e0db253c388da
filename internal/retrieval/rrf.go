package retrieval

import "sort"

// rrfList is one participating ranked list with its fusion weight.
type rrfList struct {
	weight float64
	ids    []string // rank order, best first
}

// fuseRRF merges ranked lists by reciprocal-rank fusion:
// score(s) = sum_i w_i / (k + rank_i(s)), skipping lists where s is
// absent. Returns ids ordered by fused score descending.
func fuseRRF(k int, lists []rrfList) ([]string, map[string]float64) {
	if k <= 0 {
		k = 60
	}
	scores := map[string]float64{}
	for _, list := range lists {
		w := list.weight
		if w <= 0 {
			continue
		}
		for rank, id := range list.ids {
			scores[id] += w / float64(k+rank+1)
		}
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, scores
}
