// Package vector provides the ANN index over symbol embeddings and the
// embedding backends that feed it.
package vector

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/cimcp/cimcp/internal/keyword"
)

// Embedder turns a batch of strings into dense vectors of a fixed
// dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// HashEmbedder is the deterministic fallback backend: token hashes are
// accumulated into buckets and L2-normalized. It needs no model files and
// produces stable vectors across processes.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with the configured dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dim() int { return h.dim }

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, h.dim)
		for _, tok := range keyword.Tokenize(text) {
			sum := xxhash.Sum64String(tok)
			bucket := int(sum % uint64(h.dim))
			sign := float32(1)
			if (sum>>63)&1 == 1 {
				sign = -1
			}
			vec[bucket] += sign
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

// OllamaEmbedder embeds through a local ollama model. The model runtime is
// not reentrant, so calls are serialized by a mutex.
type OllamaEmbedder struct {
	mu    sync.Mutex
	llm   *ollama.LLM
	model string
	dim   int
}

// NewOllamaEmbedder connects to the local ollama server and probes the
// model once to learn the vector dimension.
func NewOllamaEmbedder(ctx context.Context, model string) (*OllamaEmbedder, error) {
	llm, err := ollama.New(ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("ollama init: %w", err)
	}
	probe, err := llm.CreateEmbedding(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("ollama probe: %w", err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("ollama probe returned no vector")
	}
	return &OllamaEmbedder{llm: llm, model: model, dim: len(probe[0])}, nil
}

func (o *OllamaEmbedder) Dim() int { return o.dim }

func (o *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	vecs, err := o.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// ClusterKey encodes the sign bits of the first 64 dimensions as 16 hex
// characters. Used only for result diversification.
func ClusterKey(vec []float32) string {
	var bits uint64
	for i := 0; i < 64 && i < len(vec); i++ {
		if vec[i] >= 0 {
			bits |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", bits)
}

// EmbedInBatches splits texts into batches of at most batchSize and embeds
// each with one call.
func EmbedInBatches(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// QueryPrompt adjusts the embedded form of a query: code snippets embed
// verbatim, natural-language queries get a retrieval prefix some models
// expect.
func QueryPrompt(query string, isCode bool) string {
	if isCode {
		return query
	}
	return "search_query: " + strings.TrimSpace(query)
}
