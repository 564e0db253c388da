package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// setBase points BASE_DIR at a fresh temp dir and clears leaky variables.
func setBase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BASE_DIR", dir)
	for _, key := range []string{
		"DB_PATH", "VECTOR_DB_PATH", "TANTIVY_INDEX_PATH", "REPO_ROOTS",
		"HYBRID_ALPHA", "WATCH_MODE", "WATCH_DEBOUNCE_MS", "EMBEDDINGS_BACKEND",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestFromEnvRequiresBaseDir(t *testing.T) {
	t.Setenv("BASE_DIR", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error without BASE_DIR")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	dir := setBase(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DBPath != filepath.Join(dir, StateDirName, "code-intelligence.db") {
		t.Errorf("unexpected DBPath %s", cfg.DBPath)
	}
	if cfg.HybridAlpha != 0.7 {
		t.Errorf("HybridAlpha = %v", cfg.HybridAlpha)
	}
	if cfg.RankVectorWeight != 0.7 || math.Abs(cfg.RankKeywordWeight-0.3) > 1e-9 {
		t.Errorf("hybrid weights = %v/%v", cfg.RankVectorWeight, cfg.RankKeywordWeight)
	}
	if !cfg.WatchMode {
		t.Error("WatchMode should default to true")
	}
	if cfg.MaxContextTokens != 8192 || cfg.RRFK != 60 {
		t.Errorf("token/rrf defaults wrong: %d %d", cfg.MaxContextTokens, cfg.RRFK)
	}
	if cfg.PagerankDamping != 0.85 || cfg.PagerankIterations != 20 {
		t.Errorf("pagerank defaults wrong")
	}
	if len(cfg.RepoRoots) != 1 || cfg.RepoRoots[0] != dir {
		t.Errorf("RepoRoots = %v", cfg.RepoRoots)
	}
}

func TestHybridAlphaOutOfRangeIsFatal(t *testing.T) {
	setBase(t)
	t.Setenv("HYBRID_ALPHA", "1.5")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected fatal error for HYBRID_ALPHA out of range")
	}
}

func TestBooleanForms(t *testing.T) {
	setBase(t)
	for _, v := range []string{"true", "1", "yes", "y"} {
		t.Setenv("WATCH_MODE", v)
		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv with WATCH_MODE=%s: %v", v, err)
		}
		if !cfg.WatchMode {
			t.Errorf("WATCH_MODE=%s parsed false", v)
		}
	}
	t.Setenv("WATCH_MODE", "maybe")
	if _, err := FromEnv(); err == nil {
		t.Error("expected error for invalid boolean")
	}
}

func TestWatchDebounceFloor(t *testing.T) {
	setBase(t)
	t.Setenv("WATCH_DEBOUNCE_MS", "10")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.WatchDebounceMs != 50 {
		t.Errorf("debounce floor not applied: %d", cfg.WatchDebounceMs)
	}
}

func TestPathRoundTrip(t *testing.T) {
	dir := setBase(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	p := filepath.Join(dir, "src", "deep", "mod.ts")
	rel := cfg.RelativeToBase(p)
	if rel != "src/deep/mod.ts" {
		t.Fatalf("RelativeToBase = %q", rel)
	}
	if got := cfg.RelativeToBase(cfg.JoinBase(rel)); got != rel {
		t.Errorf("round trip changed path: %q vs %q", got, rel)
	}
}

func TestOverlayFallsBehindEnv(t *testing.T) {
	dir := setBase(t)
	stateDir := filepath.Join(dir, StateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		t.Fatal(err)
	}
	overlay := "EMBEDDINGS_BACKEND: hash\nWATCH_DEBOUNCE_MS: 400\n"
	if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.EmbeddingsBackend != "hash" {
		t.Errorf("overlay not applied: %s", cfg.EmbeddingsBackend)
	}
	if cfg.WatchDebounceMs != 400 {
		t.Errorf("overlay debounce not applied: %d", cfg.WatchDebounceMs)
	}

	t.Setenv("EMBEDDINGS_BACKEND", "ollama")
	cfg, err = FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.EmbeddingsBackend != "ollama" {
		t.Errorf("environment should win over overlay, got %s", cfg.EmbeddingsBackend)
	}
}
