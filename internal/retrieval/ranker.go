package retrieval

import (
	"sort"
	"strings"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/symbols"
)

// Hit is one ranked result.
type Hit struct {
	Symbol     symbols.Symbol
	Score      float64
	ClusterKey string
	Expanded   bool
}

// Signals decomposes the contributions behind one hit's score, keyed by
// symbol id in the search response for explain-search.
type Signals struct {
	KeywordScore     float64 `json:"keywordScore"`
	VectorScore      float64 `json:"vectorScore"`
	BaseScore        float64 `json:"baseScore"`
	StructuralAdjust float64 `json:"structuralAdjust"`
	IntentMult       float64 `json:"intentMult"`
	DefinitionBias   float64 `json:"definitionBias"`
	DocstringBoost   float64 `json:"docstringBoost"`
	PopularityBoost  float64 `json:"popularityBoost"`
	LearningBoost    float64 `json:"learningBoost"`
	AffinityBoost    float64 `json:"affinityBoost"`
	PackageBoost     float64 `json:"packageBoost"`
}

// docstringBoost is the flat bonus for documented symbols.
const docstringBoost = 0.1

// glueCodePenalty demotes barrel files that only re-export.
const glueCodePenalty = 5.0

// subdirectoryBoost rewards query tokens matching path components.
const subdirectoryBoost = 2.0

// testPenaltyFactor halves test-file scores outside Test intent.
const testPenaltyFactor = 0.5

// rankInput carries everything the ranker folds together for one query.
type rankInput struct {
	cfg          *config.Config
	query        string // control-stripped raw query text
	intent       Intent
	candidates   []symbols.Symbol
	keywordScore map[string]float64
	vectorScore  map[string]float64
	clusterKeys  map[string]string
	popularity   map[string]int64
	learning     map[string]float64
	affinity     map[string]bool // recently selected file paths
	packageOf    func(filePath string) string
	queryPackage string // package id context, "" when unknown
}

// rankHits computes the base hybrid score and applies the adjustment
// ladder in a fixed order; reordering the float additions would destabilize
// snapshot comparisons.
func rankHits(in rankInput) ([]Hit, map[string]*Signals) {
	vw, kw := normalizePair(in.cfg.RankVectorWeight, in.cfg.RankKeywordWeight)
	maxVec := maxValue(in.vectorScore)
	maxKw := maxValue(in.keywordScore)

	queryTokens := tokensForSubdirMatch(in.query)
	qLower := strings.ToLower(strings.TrimSpace(in.query))

	hits := make([]Hit, 0, len(in.candidates))
	signals := make(map[string]*Signals, len(in.candidates))

	for _, sym := range in.candidates {
		sig := &Signals{
			KeywordScore: in.keywordScore[sym.ID],
			VectorScore:  in.vectorScore[sym.ID],
			IntentMult:   1,
		}

		normVec := 0.0
		if maxVec > 0 {
			normVec = sig.VectorScore / maxVec
		}
		normKw := 0.0
		if maxKw > 0 {
			normKw = sig.KeywordScore / maxKw
		}
		score := vw*normVec + kw*normKw
		sig.BaseScore = score

		// 1. Structural adjustments.
		structural := 0.0
		if sym.Exported {
			structural += in.cfg.RankExportedBoost
		}
		if strings.HasSuffix(sym.FilePath, "index.ts") || strings.HasSuffix(sym.FilePath, "index.tsx") {
			structural -= glueCodePenalty
		}
		structural += subdirectoryBoost * float64(subdirMatches(queryTokens, sym.FilePath))
		score += structural
		sig.StructuralAdjust = structural

		// 2. Test penalty.
		if isTestPath(sym.FilePath) && in.intent.Kind != IntentTest {
			score *= testPenaltyFactor
		}

		// 3. Intent multiplier.
		mult := intentMultiplier(in.intent, sym)
		score *= mult
		sig.IntentMult = mult

		// 4. Definition bias.
		bias := 0.0
		if in.intent.Kind != IntentCallers && qLower != "" {
			nameLower := strings.ToLower(sym.Name)
			if nameLower == qLower && symbols.IsDefinitionKind(sym.Kind) {
				bias = 10
			} else if strings.Contains(nameLower, qLower) {
				bias = 1
			}
		}
		score += bias
		sig.DefinitionBias = bias

		if sym.Docstring != "" {
			score += docstringBoost
			sig.DocstringBoost = docstringBoost
		}

		// 5. Popularity.
		if popCap := in.cfg.RankPopularityCap; popCap > 0 {
			incoming := in.popularity[sym.ID]
			if incoming > popCap {
				incoming = popCap
			}
			pop := in.cfg.RankPopularityWeight * float64(incoming) / float64(popCap)
			score += pop
			sig.PopularityBoost = pop
		}

		// 6. Learning.
		if lb := in.learning[sym.ID]; lb > 0 {
			boost := in.cfg.LearningSelectionBoost * lb
			score += boost
			sig.LearningBoost = boost
		}

		// 7. File affinity.
		if in.affinity[sym.FilePath] {
			score += in.cfg.LearningFileAffinityBoost
			sig.AffinityBoost = in.cfg.LearningFileAffinityBoost
		}

		// 8. Package boost.
		if in.queryPackage != "" && in.packageOf != nil {
			if in.packageOf(sym.FilePath) == in.queryPackage {
				mult := packageMultiplier(in.intent)
				before := score
				score *= mult
				sig.PackageBoost = score - before
			}
		}

		signals[sym.ID] = sig
		hits = append(hits, Hit{
			Symbol:     sym,
			Score:      score,
			ClusterKey: in.clusterKeys[sym.ID],
		})
	}

	sortHits(hits)
	return hits, signals
}

// normalizePair L1-normalizes the two hybrid weights against each other.
func normalizePair(a, b float64) (float64, float64) {
	sum := a + b
	if sum <= 0 {
		return 0.5, 0.5
	}
	return a / sum, b / sum
}

func maxValue(m map[string]float64) float64 {
	max := 0.0
	for _, v := range m {
		if v > max {
			max = v
		}
	}
	return max
}

// tokensForSubdirMatch keeps query tokens of length >= 3 in lowercase.
func tokensForSubdirMatch(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) >= 3 {
			out = append(out, tok)
		}
	}
	return out
}

// subdirMatches counts query tokens equal to a path component or the
// filename stem.
func subdirMatches(tokens []string, filePath string) int {
	if len(tokens) == 0 {
		return 0
	}
	components := strings.Split(strings.ToLower(filePath), "/")
	parts := map[string]bool{}
	for i, c := range components {
		parts[c] = true
		if i == len(components)-1 {
			if dot := strings.Index(c, "."); dot > 0 {
				parts[c[:dot]] = true
			}
		}
	}
	n := 0
	for _, tok := range tokens {
		if parts[tok] {
			n++
		}
	}
	return n
}

var testPathMarkers = []string{".test.", ".spec.", "/__tests__/", "/tests/"}

func isTestPath(path string) bool {
	for _, m := range testPathMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// intentMultiplier applies the per-intent score multiplier.
func intentMultiplier(intent Intent, sym symbols.Symbol) float64 {
	switch intent.Kind {
	case IntentDefinition:
		if symbols.IsDefinitionKind(sym.Kind) && sym.Exported {
			return 1.5
		}
		return 1
	case IntentSchema:
		path := strings.ToLower(sym.FilePath)
		switch {
		case strings.Contains(path, "schema"):
			return 75
		case strings.Contains(path, "model") || strings.Contains(path, "entity") || strings.Contains(path, "entities"):
			return 50
		case strings.Contains(path, "db/") || strings.Contains(path, "database/") ||
			strings.Contains(path, "migrations/") || strings.Contains(path, "sql/"):
			return 25
		default:
			return 0.5
		}
	default:
		return 1
	}
}

// packageMultiplier is the same-package boost per intent.
func packageMultiplier(intent Intent) float64 {
	switch {
	case intent.navigation():
		return 1.2
	case intent.Kind == IntentError:
		return 1.1
	default:
		return 1.15
	}
}

// sortHits applies the deterministic sort key used by every ordering in
// the pipeline: score desc, exported desc, name asc, file path asc, kind
// asc, id asc.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Symbol.Exported != b.Symbol.Exported {
			return a.Symbol.Exported
		}
		if a.Symbol.Name != b.Symbol.Name {
			return a.Symbol.Name < b.Symbol.Name
		}
		if a.Symbol.FilePath != b.Symbol.FilePath {
			return a.Symbol.FilePath < b.Symbol.FilePath
		}
		if a.Symbol.Kind != b.Symbol.Kind {
			return a.Symbol.Kind < b.Symbol.Kind
		}
		return a.Symbol.ID < b.Symbol.ID
	})
}

// diversifyByCluster caps each cluster key at two hits, deferring overflow
// and using it only to fill the tail.
func diversifyByCluster(hits []Hit, limit int) []Hit {
	const perCluster = 2
	counts := map[string]int{}
	var kept, deferred []Hit
	for _, h := range hits {
		if h.ClusterKey == "" {
			kept = append(kept, h)
			continue
		}
		if counts[h.ClusterKey] >= perCluster {
			deferred = append(deferred, h)
			continue
		}
		counts[h.ClusterKey]++
		kept = append(kept, h)
	}
	if limit > 0 && len(kept) < limit {
		need := limit - len(kept)
		if need > len(deferred) {
			need = len(deferred)
		}
		kept = append(kept, deferred[:need]...)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// diversifyByKind guarantees, when the pool exceeds the limit, at least
// one definition-kind hit, one test hit, and one other hit where
// available, before filling the rest by score.
func diversifyByKind(hits []Hit, limit int) []Hit {
	if limit <= 0 || len(hits) <= limit {
		return hits
	}

	group := func(h Hit) int {
		switch {
		case isTestPath(h.Symbol.FilePath):
			return 1
		case symbols.IsDefinitionKind(h.Symbol.Kind):
			return 0
		default:
			return 2
		}
	}

	chosen := make([]bool, len(hits))
	var out []Hit
	for g := 0; g < 3; g++ {
		for i, h := range hits {
			if group(h) == g {
				chosen[i] = true
				out = append(out, h)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	for i, h := range hits {
		if len(out) >= limit {
			break
		}
		if !chosen[i] {
			chosen[i] = true
			out = append(out, h)
		}
	}
	sortHits(out)
	return out
}
