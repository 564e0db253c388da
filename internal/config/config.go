// Package config loads service configuration from the environment, with an
// optional YAML overlay under the state directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StateDirName is the directory under BASE_DIR holding all persisted state.
const StateDirName = ".cimcp"

const overlayFileName = "config.yaml"

// Config is the full runtime configuration. One instance is constructed at
// startup and shared read-only afterwards.
type Config struct {
	BaseDir          string
	DBPath           string
	VectorDBPath     string
	TantivyIndexPath string
	RepoRoots        []string

	EmbeddingsBackend   string // "ollama" or "hash"
	EmbeddingsModelRepo string
	EmbeddingsModelDir  string
	EmbeddingsDevice    string
	EmbeddingBatchSize  int
	HashEmbeddingDim    int

	VectorSearchLimit int
	HybridAlpha       float64

	RankVectorWeight     float64
	RankKeywordWeight    float64
	RankExportedBoost    float64
	RankIndexFileBoost   float64
	RankTestPenalty      float64
	RankPopularityWeight float64
	RankPopularityCap    int64

	IndexPatterns    []string
	ExcludePatterns  []string
	IndexNodeModules bool

	WatchMode       bool
	WatchDebounceMs int

	MaxContextTokens int
	TokenEncoding    string

	PagerankDamping    float64
	PagerankIterations int

	LearningEnabled           bool
	LearningSelectionBoost    float64
	LearningFileAffinityBoost float64

	RerankerTopK int

	RRFK             int
	RRFKeywordWeight float64
	RRFVectorWeight  float64
	RRFGraphWeight   float64

	ParallelWorkers int
}

// env abstracts the variable source so the YAML overlay can act as a
// fallback behind real environment variables.
type env struct {
	overlay map[string]string
}

func (e *env) get(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	if v, ok := e.overlay[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

// FromEnv builds a Config from the process environment. BASE_DIR is
// required and must be an absolute path to an existing directory.
func FromEnv() (*Config, error) {
	baseDir, ok := os.LookupEnv("BASE_DIR")
	if !ok || baseDir == "" {
		return nil, fmt.Errorf("BASE_DIR is required")
	}
	if !filepath.IsAbs(baseDir) {
		return nil, fmt.Errorf("BASE_DIR must be absolute, got %q", baseDir)
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("BASE_DIR: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("BASE_DIR %q is not a directory", baseDir)
	}

	e := &env{overlay: loadOverlay(filepath.Join(baseDir, StateDirName, overlayFileName))}

	cfg := &Config{BaseDir: filepath.Clean(baseDir)}

	cfg.DBPath = resolvePath(cfg.BaseDir, e, "DB_PATH", StateDirName+"/code-intelligence.db")
	cfg.VectorDBPath = resolvePath(cfg.BaseDir, e, "VECTOR_DB_PATH", StateDirName+"/vectors")
	cfg.TantivyIndexPath = resolvePath(cfg.BaseDir, e, "TANTIVY_INDEX_PATH", StateDirName+"/tantivy-index")

	cfg.RepoRoots = []string{cfg.BaseDir}
	if raw, ok := e.get("REPO_ROOTS"); ok {
		for _, r := range splitCSV(raw) {
			if !filepath.IsAbs(r) {
				r = filepath.Join(cfg.BaseDir, r)
			}
			r = filepath.Clean(r)
			if !containsString(cfg.RepoRoots, r) {
				cfg.RepoRoots = append(cfg.RepoRoots, r)
			}
		}
	}

	cfg.EmbeddingsBackend = strings.ToLower(getString(e, "EMBEDDINGS_BACKEND", "ollama"))
	switch cfg.EmbeddingsBackend {
	case "ollama", "hash":
	default:
		return nil, fmt.Errorf("EMBEDDINGS_BACKEND must be %q or %q, got %q", "ollama", "hash", cfg.EmbeddingsBackend)
	}
	cfg.EmbeddingsModelRepo = getString(e, "EMBEDDINGS_MODEL_REPO", "nomic-embed-text")
	cfg.EmbeddingsModelDir = getString(e, "EMBEDDINGS_MODEL_DIR", "")
	cfg.EmbeddingsDevice = getString(e, "EMBEDDINGS_DEVICE", "cpu")

	if cfg.EmbeddingBatchSize, err = getInt(e, "EMBEDDING_BATCH_SIZE", 32); err != nil {
		return nil, err
	}
	if cfg.HashEmbeddingDim, err = getInt(e, "HASH_EMBEDDING_DIM", 64); err != nil {
		return nil, err
	}
	if cfg.VectorSearchLimit, err = getInt(e, "VECTOR_SEARCH_LIMIT", 20); err != nil {
		return nil, err
	}

	if cfg.HybridAlpha, err = getFloat(e, "HYBRID_ALPHA", 0.7); err != nil {
		return nil, err
	}
	if cfg.HybridAlpha < 0 || cfg.HybridAlpha > 1 {
		return nil, fmt.Errorf("HYBRID_ALPHA must be in [0,1], got %v", cfg.HybridAlpha)
	}

	if cfg.RankVectorWeight, err = getFloat(e, "RANK_VECTOR_WEIGHT", cfg.HybridAlpha); err != nil {
		return nil, err
	}
	if cfg.RankKeywordWeight, err = getFloat(e, "RANK_KEYWORD_WEIGHT", 1.0-cfg.HybridAlpha); err != nil {
		return nil, err
	}
	if cfg.RankExportedBoost, err = getFloat(e, "RANK_EXPORTED_BOOST", 0.1); err != nil {
		return nil, err
	}
	if cfg.RankIndexFileBoost, err = getFloat(e, "RANK_INDEX_FILE_BOOST", 0.05); err != nil {
		return nil, err
	}
	if cfg.RankTestPenalty, err = getFloat(e, "RANK_TEST_PENALTY", 0.1); err != nil {
		return nil, err
	}
	if cfg.RankPopularityWeight, err = getFloat(e, "RANK_POPULARITY_WEIGHT", 0.05); err != nil {
		return nil, err
	}
	popCap, err := getInt(e, "RANK_POPULARITY_CAP", 50)
	if err != nil {
		return nil, err
	}
	cfg.RankPopularityCap = int64(popCap)

	cfg.IndexPatterns = getCSV(e, "INDEX_PATTERNS", []string{
		"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.go", "**/*.rs", "**/*.py",
	})
	cfg.ExcludePatterns = getCSV(e, "EXCLUDE_PATTERNS", []string{
		"**/node_modules/**", "**/dist/**", "**/build/**", "**/.git/**",
	})
	if cfg.IndexNodeModules, err = getBool(e, "INDEX_NODE_MODULES", false); err != nil {
		return nil, err
	}

	if cfg.WatchMode, err = getBool(e, "WATCH_MODE", true); err != nil {
		return nil, err
	}
	if cfg.WatchDebounceMs, err = getInt(e, "WATCH_DEBOUNCE_MS", 250); err != nil {
		return nil, err
	}
	if cfg.WatchDebounceMs < 50 {
		cfg.WatchDebounceMs = 50
	}

	if cfg.MaxContextTokens, err = getInt(e, "MAX_CONTEXT_TOKENS", 8192); err != nil {
		return nil, err
	}
	cfg.TokenEncoding = getString(e, "TOKEN_ENCODING", "o200k_base")

	if cfg.PagerankDamping, err = getFloat(e, "PAGERANK_DAMPING", 0.85); err != nil {
		return nil, err
	}
	if cfg.PagerankIterations, err = getInt(e, "PAGERANK_ITERATIONS", 20); err != nil {
		return nil, err
	}

	if cfg.LearningEnabled, err = getBool(e, "LEARNING_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.LearningSelectionBoost, err = getFloat(e, "LEARNING_SELECTION_BOOST", 0.1); err != nil {
		return nil, err
	}
	if cfg.LearningFileAffinityBoost, err = getFloat(e, "LEARNING_FILE_AFFINITY_BOOST", 0.05); err != nil {
		return nil, err
	}

	if cfg.RerankerTopK, err = getInt(e, "RERANKER_TOP_K", 20); err != nil {
		return nil, err
	}

	if cfg.RRFK, err = getInt(e, "RRF_K", 60); err != nil {
		return nil, err
	}
	if cfg.RRFKeywordWeight, err = getFloat(e, "RRF_KEYWORD_WEIGHT", 1.0); err != nil {
		return nil, err
	}
	if cfg.RRFVectorWeight, err = getFloat(e, "RRF_VECTOR_WEIGHT", 1.0); err != nil {
		return nil, err
	}
	if cfg.RRFGraphWeight, err = getFloat(e, "RRF_GRAPH_WEIGHT", 1.0); err != nil {
		return nil, err
	}

	if cfg.ParallelWorkers, err = getInt(e, "PARALLEL_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StateDir returns the state directory under BaseDir.
func (c *Config) StateDir() string {
	return filepath.Join(c.BaseDir, StateDirName)
}

// RelativeToBase converts an absolute path under BaseDir into the
// forward-slash repository-relative form used for symbol rows.
func (c *Config) RelativeToBase(path string) string {
	rel, err := filepath.Rel(c.BaseDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// JoinBase resolves a repository-relative path against BaseDir.
func (c *Config) JoinBase(rel string) string {
	return filepath.Join(c.BaseDir, filepath.FromSlash(rel))
}

// loadOverlay reads the optional YAML overlay. Keys mirror environment
// variable names; environment variables win over overlay entries.
func loadOverlay(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		switch t := v.(type) {
		case string:
			out[key] = t
		case []any:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}

func resolvePath(baseDir string, e *env, key, defaultRel string) string {
	raw, ok := e.get(key)
	if !ok {
		raw = defaultRel
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(baseDir, raw)
	}
	return filepath.Clean(raw)
}

func getString(e *env, key, def string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return def
}

func getInt(e *env, key string, def int) (int, error) {
	v, ok := e.get(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloat(e *env, key string, def float64) (float64, error) {
	v, ok := e.get(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getBool(e *env, key string, def bool) (bool, error) {
	v, ok := e.get(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("%s: invalid boolean %q", key, v)
}

func getCSV(e *env, key string, def []string) []string {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	return splitCSV(v)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
