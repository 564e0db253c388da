// Package app constructs the process-wide state: configuration plus the
// opened stores, indexer, and retriever. One App exists per process; no
// other global mutable state.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/db"
	"github.com/cimcp/cimcp/internal/indexer"
	"github.com/cimcp/cimcp/internal/keyword"
	"github.com/cimcp/cimcp/internal/retrieval"
	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/vector"
)

// App is the assembled application state.
type App struct {
	Cfg       *config.Config
	DB        *sql.DB
	Store     *store.Store
	Keyword   *keyword.Index
	Vector    *vector.Index
	Embedder  vector.Embedder
	Indexer   *indexer.Indexer
	Retriever *retrieval.Retriever
}

// Open loads configuration from the environment and opens all stores.
func Open(ctx context.Context) (*App, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return OpenWithConfig(ctx, cfg)
}

// OpenWithConfig opens all stores for an already-built configuration.
func OpenWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	d, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("relational store: %w", err)
	}
	if err := db.Migrate(d); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	kw, err := keyword.Open(cfg.TantivyIndexPath)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("keyword index: %w", err)
	}

	emb := buildEmbedder(ctx, cfg)

	vec, err := vector.Open(cfg.VectorDBPath, emb.Dim())
	if err != nil {
		_ = kw.Close()
		_ = d.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}

	st := store.New(d)
	a := &App{
		Cfg:      cfg,
		DB:       d,
		Store:    st,
		Keyword:  kw,
		Vector:   vec,
		Embedder: emb,
	}
	a.Indexer = indexer.New(cfg, st, kw, vec, emb)
	a.Retriever = retrieval.New(cfg, st, kw, vec, emb)
	return a, nil
}

// buildEmbedder constructs the configured backend, falling back to the
// deterministic hash embedder when the remote model is unreachable.
func buildEmbedder(ctx context.Context, cfg *config.Config) vector.Embedder {
	if cfg.EmbeddingsBackend == "ollama" {
		emb, err := vector.NewOllamaEmbedder(ctx, cfg.EmbeddingsModelRepo)
		if err == nil {
			return emb
		}
		log.Printf("warning: ollama embedder unavailable (%v), falling back to hash embeddings", err)
	}
	return vector.NewHashEmbedder(cfg.HashEmbeddingDim)
}

// Close releases every store.
func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Vector.Close(); err != nil {
		log.Printf("warning: close vector index: %v", err)
	}
	if err := a.Keyword.Close(); err != nil {
		log.Printf("warning: close keyword index: %v", err)
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("warning: close database: %v", err)
	}
}
