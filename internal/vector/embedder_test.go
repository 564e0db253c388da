package vector

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed(context.Background(), []string{"func parseQuery() {}"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), []string{"func parseQuery() {}"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("hash embedding not deterministic")
		}
	}
}

func TestHashEmbedderDimAndNorm(t *testing.T) {
	e := NewHashEmbedder(32)
	vecs, err := e.Embed(context.Background(), []string{"alpha beta gamma", ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 32 {
		t.Fatalf("dims wrong: %d x %d", len(vecs), len(vecs[0]))
	}
	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("vector not normalized: |v|^2 = %v", sum)
	}
	// Empty text embeds to the zero vector.
	for _, v := range vecs[1] {
		if v != 0 {
			t.Error("empty text should embed to zeros")
		}
	}
}

func TestClusterKeyIsSignBits(t *testing.T) {
	vec := make([]float32, 64)
	for i := range vec {
		if i%2 == 0 {
			vec[i] = 1
		} else {
			vec[i] = -1
		}
	}
	key := ClusterKey(vec)
	if len(key) != 16 {
		t.Fatalf("key length = %d, want 16 hex chars", len(key))
	}
	if key != "5555555555555555" {
		t.Errorf("key = %s, want alternating bits", key)
	}

	// Stable across calls and sensitive to sign flips.
	if ClusterKey(vec) != key {
		t.Error("cluster key not stable")
	}
	vec[0] = -1
	if ClusterKey(vec) == key {
		t.Error("cluster key ignored a sign flip")
	}
}

func TestEmbedInBatches(t *testing.T) {
	e := NewHashEmbedder(16)
	texts := make([]string, 70)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := EmbedInBatches(context.Background(), e, texts, 32)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 70 {
		t.Errorf("batched embed returned %d vectors", len(vecs))
	}
}

func TestQueryPrompt(t *testing.T) {
	if QueryPrompt("foo()", true) != "foo()" {
		t.Error("code snippets should embed verbatim")
	}
	if QueryPrompt("find auth", false) != "search_query: find auth" {
		t.Error("natural language should get the retrieval prefix")
	}
}
