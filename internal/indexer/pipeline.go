// Package indexer orchestrates the indexing pipeline: scanning,
// fingerprinting, parsing, edge extraction, and the three co-maintained
// stores.
package indexer

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/extract"
	"github.com/cimcp/cimcp/internal/graph"
	"github.com/cimcp/cimcp/internal/keyword"
	"github.com/cimcp/cimcp/internal/parser"
	"github.com/cimcp/cimcp/internal/pkgdetect"
	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/symbols"
	"github.com/cimcp/cimcp/internal/vector"
)

// Indexer drives the per-file loop across the relational, keyword, and
// vector stores. One invocation processes files sequentially; the
// delete-old, insert-new, commit-fingerprint sequence is ordered within
// each file.
type Indexer struct {
	Cfg      *config.Config
	Store    *store.Store
	Keyword  *keyword.Index
	Vector   *vector.Index
	Embedder vector.Embedder
}

// New wires an Indexer over opened stores.
func New(cfg *config.Config, st *store.Store, kw *keyword.Index, vec *vector.Index, emb vector.Embedder) *Indexer {
	return &Indexer{Cfg: cfg, Store: st, Keyword: kw, Vector: vec, Embedder: emb}
}

// Stats reports one indexing pass.
type Stats struct {
	FilesScanned   int           `json:"filesScanned"`
	FilesIndexed   int           `json:"filesIndexed"`
	FilesUnchanged int           `json:"filesUnchanged"`
	FilesSkipped   int           `json:"filesSkipped"`
	FilesDeleted   int           `json:"filesDeleted"`
	SymbolsIndexed int           `json:"symbolsIndexed"`
	EdgesIndexed   int           `json:"edgesIndexed"`
	Duration       time.Duration `json:"duration"`
}

func (s *Stats) String() string {
	return fmt.Sprintf("scanned=%d indexed=%d unchanged=%d skipped=%d deleted=%d symbols=%d edges=%d",
		s.FilesScanned, s.FilesIndexed, s.FilesUnchanged, s.FilesSkipped, s.FilesDeleted,
		s.SymbolsIndexed, s.EdgesIndexed)
}

// IndexAll runs a full pass: scan, cleanup of vanished files, per-file
// loop, PageRank recomputation.
func (ix *Indexer) IndexAll(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	if err := pkgdetect.Detect(ix.Store, ix.Cfg.RepoRoots, ix.Cfg.RelativeToBase); err != nil {
		log.Printf("warning: package detection: %v", err)
	}

	files, err := Scan(ix.Cfg)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	stats.FilesScanned = len(files)

	// Cleanup pass: anything fingerprinted but no longer on disk is
	// cascade-deleted from all three stores.
	scanned := make(map[string]bool, len(files))
	for _, f := range files {
		scanned[ix.Cfg.RelativeToBase(f)] = true
	}
	known, err := ix.Store.AllFingerprintPaths()
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}
	for _, rel := range known {
		if scanned[rel] {
			continue
		}
		if err := ix.removeFile(rel); err != nil {
			log.Printf("warning: cleanup %s: %v", rel, err)
			continue
		}
		stats.FilesDeleted++
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ix.processFile(ctx, f, stats)
	}

	ix.finishRun(start, stats)
	return stats, nil
}

// IndexPaths indexes a specific set of absolute paths. Files that vanished
// are removed; no global cleanup runs.
func (ix *Indexer) IndexPaths(ctx context.Context, paths []string) (*Stats, error) {
	start := time.Now()
	stats := &Stats{FilesScanned: len(paths)}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := os.Stat(p); err != nil {
			if err := ix.removeFile(ix.Cfg.RelativeToBase(p)); err != nil {
				log.Printf("warning: remove %s: %v", p, err)
			} else {
				stats.FilesDeleted++
			}
			continue
		}
		if !Selectable(ix.Cfg, p) {
			continue
		}
		ix.processFile(ctx, p, stats)
	}

	ix.finishRun(start, stats)
	return stats, nil
}

// processFile runs one file through the loop, folding the outcome into
// stats. Per-file failures never abort the pass.
func (ix *Indexer) processFile(ctx context.Context, absPath string, stats *Stats) {
	outcome, err := ix.indexFile(ctx, absPath)
	switch {
	case err != nil:
		log.Printf("warning: index %s: %v", absPath, err)
		stats.FilesSkipped++
	case outcome == nil:
		stats.FilesUnchanged++
	default:
		stats.FilesIndexed++
		stats.SymbolsIndexed += outcome.symbols
		stats.EdgesIndexed += outcome.edges
	}
}

type fileOutcome struct {
	symbols int
	edges   int
}

// indexFile processes a single file. A nil outcome with nil error means
// the fingerprint matched and nothing was done.
func (ix *Indexer) indexFile(ctx context.Context, absPath string) (*fileOutcome, error) {
	rel := ix.Cfg.RelativeToBase(absPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	mtimeNs := info.ModTime().UnixNano()
	size := info.Size()

	prior, err := ix.Store.FingerprintFor(rel)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if prior != nil && prior.MtimeNs == mtimeNs && prior.SizeBytes == size {
		return nil, nil
	}

	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	lang := parser.DetectLang(absPath)
	p := parser.Get(lang)
	if p == nil {
		return nil, fmt.Errorf("no parser for %q", lang)
	}
	parsed, err := p.Parse(rel, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	// Synthetic file root, then the parsed symbols.
	fileRoot := symbols.Symbol{
		ID:        symbols.FileRootID(rel),
		FilePath:  rel,
		Language:  string(lang),
		Kind:      symbols.KindFile,
		Name:      rel,
		Exported:  true,
		StartByte: 0,
		EndByte:   len(src),
		StartLine: 1,
		EndLine:   1 + countNewlines(src),
		Text:      string(src),
	}
	syms := append([]symbols.Symbol{fileRoot}, parsed.Symbols...)

	// One batched embedding call per file. A failed batch aborts this file
	// and the next run retries it (no fingerprint is written).
	texts := make([]string, len(syms))
	for i, s := range syms {
		texts[i] = embeddingText(s)
	}
	vecs, err := vector.EmbedInBatches(ctx, ix.Embedder, texts, ix.Cfg.EmbeddingBatchSize)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	clusters := make(map[string]string, len(syms))
	rows := make([]vector.Row, len(syms))
	for i, s := range syms {
		clusters[s.ID] = vector.ClusterKey(vecs[i])
		rows[i] = vector.Row{Symbol: s, Vector: vecs[i]}
	}

	extracted := extract.Extract(extract.Input{
		FilePath:      rel,
		Symbols:       syms,
		Imports:       parsed.Imports,
		TypeEdges:     parsed.TypeEdges,
		DataflowEdges: parsed.DataflowEdges,
		PackageForFile: func(p string) string {
			id, err := ix.Store.PackageForFile(p)
			if err != nil {
				return ""
			}
			return id
		},
	})

	// Delete-old precedes insert-new in every store.
	if err := ix.Keyword.DeleteByFile(rel); err != nil {
		return nil, fmt.Errorf("keyword delete: %w", err)
	}
	if err := ix.Vector.DeleteByFile(rel); err != nil {
		return nil, fmt.Errorf("vector delete: %w", err)
	}
	if err := ix.Keyword.IndexSymbols(syms); err != nil {
		return nil, fmt.Errorf("keyword insert: %w", err)
	}

	if err := ix.Store.ReplaceFileData(&store.FileData{
		FilePath:  rel,
		Symbols:   syms,
		Edges:     extracted.Edges,
		Evidence:  extracted.Evidence,
		Examples:  extracted.Examples,
		Todos:     parsed.Todos,
		TestLinks: extracted.TestLinks,
		Clusters:  clusters,
		MtimeNs:   mtimeNs,
		SizeBytes: size,
	}); err != nil {
		return nil, fmt.Errorf("relational replace: %w", err)
	}

	// Vector insertion runs after the fingerprint commit: a crash here
	// leaves the file marked clean but missing vectors, which only costs
	// recall until the file changes again. The relational and keyword
	// stores stay internally consistent either way.
	if err := ix.Vector.Append(rows); err != nil {
		log.Printf("warning: vector append %s: %v", rel, err)
	}

	return &fileOutcome{symbols: len(syms), edges: len(extracted.Edges)}, nil
}

// removeFile cascades one file out of all three stores.
func (ix *Indexer) removeFile(rel string) error {
	if err := ix.Store.DeleteFile(rel); err != nil {
		return fmt.Errorf("relational delete: %w", err)
	}
	if err := ix.Keyword.DeleteByFile(rel); err != nil {
		return fmt.Errorf("keyword delete: %w", err)
	}
	if err := ix.Vector.DeleteByFile(rel); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

// finishRun recomputes PageRank when the graph changed and records the
// telemetry row.
func (ix *Indexer) finishRun(start time.Time, stats *Stats) {
	if stats.FilesIndexed > 0 || stats.FilesDeleted > 0 {
		if err := graph.ComputeAndStorePageRank(ix.Store, ix.Cfg.PagerankDamping, ix.Cfg.PagerankIterations); err != nil {
			log.Printf("warning: pagerank: %v", err)
		}
	}
	stats.Duration = time.Since(start)
	if err := ix.Store.RecordIndexRun(store.IndexRun{
		RunID:          uuid.NewString(),
		StartedAt:      start,
		Duration:       stats.Duration,
		FilesScanned:   stats.FilesScanned,
		FilesIndexed:   stats.FilesIndexed,
		FilesUnchanged: stats.FilesUnchanged,
		FilesSkipped:   stats.FilesSkipped,
		FilesDeleted:   stats.FilesDeleted,
		SymbolsIndexed: stats.SymbolsIndexed,
		EdgesIndexed:   stats.EdgesIndexed,
	}); err != nil {
		log.Printf("warning: record index run: %v", err)
	}
}

// embeddingText is the string embedded for one symbol: its name plus a
// bounded slice of its body.
func embeddingText(s symbols.Symbol) string {
	text := s.Text
	if len(text) > 2048 {
		text = text[:2048]
	}
	if s.Kind == symbols.KindFile {
		return "file " + s.Name + "\n" + text
	}
	return string(s.Kind) + " " + s.Name + "\n" + text
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
