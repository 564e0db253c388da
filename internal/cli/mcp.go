package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/cimcp/cimcp/internal/app"
	"github.com/cimcp/cimcp/internal/assemble"
	"github.com/cimcp/cimcp/internal/graph"
	"github.com/cimcp/cimcp/internal/mcpstate"
	"github.com/cimcp/cimcp/internal/retrieval"
	"github.com/cimcp/cimcp/internal/store"
)

const mcpLogFileName = "mcp.log"

func newMcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long:  "Start the Model Context Protocol server over stdio.",
		RunE:  runMcp,
	}
}

func runMcp(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := app.Open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stateDir := a.Cfg.StateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if running, state, err := mcpstate.IsRunning(stateDir); err == nil && running {
		return fmt.Errorf("another server (pid %d) already owns %s", state.PID, stateDir)
	}
	if err := mcpstate.Create(stateDir); err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer func() {
		if err := mcpstate.Remove(stateDir); err != nil {
			log.Printf("warning: remove state file: %v", err)
		}
	}()

	// All logging goes to a file so nothing leaks into the stdio JSON-RPC
	// transport.
	if err := initMCPLog(stateDir); err != nil {
		return fmt.Errorf("initialize mcp log: %w", err)
	}

	// Initial pass, then the watcher keeps the index warm.
	if stats, err := a.Indexer.IndexAll(ctx); err != nil {
		log.Printf("initial index error: %v", err)
	} else {
		log.Printf("initial index: %s", stats)
	}
	if a.Cfg.WatchMode {
		go a.Indexer.Watch(ctx)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "cimcp",
		Version: Version,
	}, nil)
	registerTools(server, a)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func initMCPLog(stateDir string) error {
	logPath := filepath.Join(stateDir, mcpLogFileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	log.SetOutput(f)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("mcp server starting (log: %s)", logPath)
	return nil
}

// --- tool argument types ---

// RefreshIndexArgs is the input for cimcp.refreshIndex.
type RefreshIndexArgs struct {
	Paths []string `json:"paths,omitempty" desc:"Absolute paths to reindex; empty runs a full pass"`
}

// SearchArgs is the input for cimcp.search.
type SearchArgs struct {
	Query        string `json:"query" desc:"Search query; supports id:/file:/path:/lang:/kind: filters and 'who calls X'" required:"true"`
	Limit        int    `json:"limit,omitempty" desc:"Maximum hits (default 10)"`
	ExportedOnly bool   `json:"exportedOnly,omitempty" desc:"Only exported symbols"`
	Package      string `json:"package,omitempty" desc:"Package id context for same-package boosting"`
}

// DefinitionArgs is the input for cimcp.getDefinition.
type DefinitionArgs struct {
	Name  string `json:"name" desc:"Exact symbol name" required:"true"`
	File  string `json:"file,omitempty" desc:"Restrict to one repository-relative file"`
	Limit int    `json:"limit,omitempty" desc:"Maximum rows (default 10)"`
}

// FileSymbolsArgs is the input for cimcp.getFileSymbols.
type FileSymbolsArgs struct {
	File         string `json:"file" desc:"Repository-relative file path" required:"true"`
	ExportedOnly bool   `json:"exportedOnly,omitempty" desc:"Only exported symbols"`
}

// ReferencesArgs is the input for cimcp.findReferences.
type ReferencesArgs struct {
	Name  string `json:"name" desc:"Symbol name" required:"true"`
	Type  string `json:"type,omitempty" desc:"Edge type filter (call, reference, import, ...)"`
	Limit int    `json:"limit,omitempty" desc:"Maximum entries (default 50)"`
}

// HierarchyArgs is the input for the traversal tools.
type HierarchyArgs struct {
	Name      string `json:"name" desc:"Symbol name" required:"true"`
	Direction string `json:"direction,omitempty" desc:"upstream, downstream, or bidirectional"`
	Depth     int    `json:"depth,omitempty" desc:"Traversal depth (default 1)"`
	Limit     int    `json:"limit,omitempty" desc:"Maximum edges (default 50)"`
}

// UsageExamplesArgs is the input for cimcp.getUsageExamples.
type UsageExamplesArgs struct {
	Name  string `json:"name" desc:"Symbol name" required:"true"`
	Limit int    `json:"limit,omitempty" desc:"Maximum examples (default 20)"`
}

// HydrateArgs is the input for cimcp.hydrateSymbols.
type HydrateArgs struct {
	IDs  []string `json:"ids" desc:"Symbol ids to hydrate" required:"true"`
	Mode string   `json:"mode,omitempty" desc:"default or full"`
}

// ClusterArgs is the input for cimcp.getSimilarityCluster.
type ClusterArgs struct {
	Name  string `json:"name" desc:"Symbol name" required:"true"`
	Limit int    `json:"limit,omitempty" desc:"Maximum members (default 20)"`
}

// ReportSelectionArgs is the input for cimcp.reportSelection.
type ReportSelectionArgs struct {
	Query    string `json:"query" desc:"The query that produced the result list" required:"true"`
	SymbolID string `json:"symbolId" desc:"The selected symbol id" required:"true"`
	Position int    `json:"position,omitempty" desc:"Zero-based rank of the selection"`
}

// ExplainSearchArgs is the input for cimcp.explainSearch.
type ExplainSearchArgs struct {
	Query   string `json:"query" desc:"Search query" required:"true"`
	Limit   int    `json:"limit,omitempty" desc:"Maximum hits (default 10)"`
	Verbose bool   `json:"verbose,omitempty" desc:"Include the full signal table"`
}

// SimilarCodeArgs is the input for cimcp.findSimilarCode.
type SimilarCodeArgs struct {
	Text      string  `json:"text" desc:"Code snippet to match" required:"true"`
	Threshold float64 `json:"threshold,omitempty" desc:"Minimum similarity (default 0.7)"`
	Limit     int     `json:"limit,omitempty" desc:"Maximum hits (default 10)"`
}

// ModuleSummaryArgs is the input for cimcp.getModuleSummary.
type ModuleSummaryArgs struct {
	Path  string `json:"path" desc:"Repository-relative path prefix" required:"true"`
	Limit int    `json:"limit,omitempty" desc:"Maximum symbols (default 200)"`
}

// --- registration ---

func registerTools(server *mcp.Server, a *app.App) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.refreshIndex",
		Description: "Reindex the configured repositories (full pass) or specific paths.",
		InputSchema: mustSchema(RefreshIndexArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args RefreshIndexArgs) (*mcp.CallToolResult, any, error) {
		var stats fmt.Stringer
		var err error
		if len(args.Paths) > 0 {
			stats, err = a.Indexer.IndexPaths(ctx, args.Paths)
		} else {
			stats, err = a.Indexer.IndexAll(ctx)
		}
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolText(stats.String()), stats, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.search",
		Description: "Hybrid code search: keyword + vector + graph signals, with an assembled token-budgeted context. Supports id:/file:/path:/lang:/kind: filters, compound queries joined by 'and', and caller queries like 'who calls X'.",
		InputSchema: mustSchema(SearchArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SearchArgs) (*mcp.CallToolResult, any, error) {
		resp, err := a.Retriever.Search(ctx, args.Query, retrieval.SearchOptions{
			Limit:        args.Limit,
			ExportedOnly: args.ExportedOnly,
			QueryPackage: args.Package,
		})
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolText(formatHits(resp)), resp, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getDefinition",
		Description: "Find definitions of a symbol by exact name, with assembled context. Unknown names return fuzzy suggestions.",
		InputSchema: mustSchema(DefinitionArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args DefinitionArgs) (*mcp.CallToolResult, any, error) {
		resp, err := a.Retriever.GetDefinition(args.Name, args.File, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		if resp.Error != "" {
			text := fmt.Sprintf("%s: no definition for %q", resp.Error, args.Name)
			if len(resp.Suggestions) > 0 {
				text += "\ndid you mean: " + strings.Join(resp.Suggestions, ", ")
			}
			return toolText(text), resp, nil
		}
		return toolText(resp.Context), resp, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getFileSymbols",
		Description: "List the symbols defined in one file.",
		InputSchema: mustSchema(FileSymbolsArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FileSymbolsArgs) (*mcp.CallToolResult, any, error) {
		syms, err := a.Store.SymbolsByFile(args.File, args.ExportedOnly)
		if err != nil {
			return toolError(err), nil, nil
		}
		var b strings.Builder
		for _, s := range syms {
			fmt.Fprintf(&b, "%s %s %s:%d-%d\n", s.Kind, s.Name, s.FilePath, s.StartLine, s.EndLine)
		}
		return toolText(b.String()), map[string]any{"symbols": syms}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.findReferences",
		Description: "Find incoming references of a symbol, optionally filtered by edge type.",
		InputSchema: mustSchema(ReferencesArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ReferencesArgs) (*mcp.CallToolResult, any, error) {
		refs, err := a.Retriever.FindReferences(args.Name, args.Type, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		if len(refs) == 0 {
			return toolText(retrieval.StatusSymbolNotFound), map[string]any{"error": retrieval.StatusSymbolNotFound}, nil
		}
		var b strings.Builder
		for _, r := range refs {
			fmt.Fprintf(&b, "%s %s (%s) at %s:%d [%s]\n",
				r.EdgeType, r.Symbol.Name, r.Symbol.Kind, r.AtFile, r.AtLine, r.Resolution)
		}
		return toolText(b.String()), map[string]any{"entries": refs}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getCallHierarchy",
		Description: "Walk call edges from a symbol: upstream lists callers, downstream callees.",
		InputSchema: mustSchema(HierarchyArgs{}),
	}, graphTool(a, graph.CallHierarchy))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getTypeGraph",
		Description: "Walk type relations (extends, implements, alias, type) around a symbol.",
		InputSchema: mustSchema(HierarchyArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args HierarchyArgs) (*mcp.CallToolResult, any, error) {
		res, err := graph.TypeGraph(a.Store, args.Name, args.Depth, args.Limit)
		return graphResult(res, err)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.exploreDependencyGraph",
		Description: "Walk every edge type around a symbol with evidence sites. Direction: upstream, downstream, or bidirectional.",
		InputSchema: mustSchema(HierarchyArgs{}),
	}, graphTool(a, graph.Explore))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.traceDataFlow",
		Description: "Walk dataflow edges (reads/writes, calls treated as reads) from a symbol.",
		InputSchema: mustSchema(HierarchyArgs{}),
	}, graphTool(a, graph.TraceDataFlow))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getUsageExamples",
		Description: "List stored usage snippets for a symbol.",
		InputSchema: mustSchema(UsageExamplesArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UsageExamplesArgs) (*mcp.CallToolResult, any, error) {
		examples, err := a.Retriever.GetUsageExamples(args.Name, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		if len(examples) == 0 {
			return toolText(retrieval.StatusSymbolNotFound), map[string]any{"error": retrieval.StatusSymbolNotFound}, nil
		}
		var b strings.Builder
		for _, ex := range examples {
			fmt.Fprintf(&b, "[%s] %s:%d  %s\n", ex.ExampleType, ex.FilePath, ex.Line, ex.Snippet)
		}
		return toolText(b.String()), map[string]any{"examples": examples}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.hydrateSymbols",
		Description: "Assemble context for explicit symbol ids. Mode full skips body simplification.",
		InputSchema: mustSchema(HydrateArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args HydrateArgs) (*mcp.CallToolResult, any, error) {
		mode := assemble.ModeDefault
		if args.Mode == string(assemble.ModeFull) {
			mode = assemble.ModeFull
		}
		text, items, err := a.Retriever.HydrateSymbols(args.IDs, mode)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolText(text), map[string]any{"context": text, "contextItems": items}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getSimilarityCluster",
		Description: "List the members of the embedding similarity cluster a symbol belongs to.",
		InputSchema: mustSchema(ClusterArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ClusterArgs) (*mcp.CallToolResult, any, error) {
		resp, err := a.Retriever.GetSimilarityCluster(args.Name, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		if resp.Error != "" {
			return toolText(resp.Error), resp, nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "cluster %s\n", resp.ClusterKey)
		for _, m := range resp.Members {
			fmt.Fprintf(&b, "  %s (%s) %s:%d\n", m.Name, m.Kind, m.FilePath, m.StartLine)
		}
		return toolText(b.String()), resp, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getIndexStats",
		Description: "Report row counts across the stores.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args struct{}) (*mcp.CallToolResult, any, error) {
		stats, err := a.Store.Stats()
		if err != nil {
			return toolError(err), nil, nil
		}
		kwCount, _ := a.Keyword.DocCount()
		vecCount, _ := a.Vector.Count()
		text := fmt.Sprintf(
			"symbols=%d edges=%d files=%d examples=%d todos=%d packages=%d clusters=%d keywordDocs=%d vectorRows=%d",
			stats.Symbols, stats.Edges, stats.Files, stats.UsageExamples,
			stats.Todos, stats.Packages, stats.Clusters, kwCount, vecCount)
		return toolText(text), map[string]any{
			"stats":       stats,
			"keywordDocs": kwCount,
			"vectorRows":  vecCount,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.reportSelection",
		Description: "Record that the user selected a search result; feeds the learning boost.",
		InputSchema: mustSchema(ReportSelectionArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ReportSelectionArgs) (*mcp.CallToolResult, any, error) {
		if err := a.Retriever.ReportSelection(args.Query, args.SymbolID, args.Position); err != nil {
			return toolError(err), nil, nil
		}
		return toolText("recorded"), map[string]any{"recorded": true}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.explainSearch",
		Description: "Run a search and return the per-hit scoring breakdown.",
		InputSchema: mustSchema(ExplainSearchArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ExplainSearchArgs) (*mcp.CallToolResult, any, error) {
		resp, err := a.Retriever.ExplainSearch(ctx, args.Query, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolText(formatBreakdown(resp, args.Verbose)), resp, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.findSimilarCode",
		Description: "Embed a code snippet and return the most similar indexed symbols.",
		InputSchema: mustSchema(SimilarCodeArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SimilarCodeArgs) (*mcp.CallToolResult, any, error) {
		threshold := args.Threshold
		if threshold <= 0 {
			threshold = 0.7
		}
		hits, err := a.Retriever.FindSimilarCode(ctx, args.Text, threshold, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		var b strings.Builder
		for _, h := range hits {
			fmt.Fprintf(&b, "%.3f %s (%s) %s:%d\n",
				h.Similarity, h.Symbol.Name, h.Symbol.Kind, h.Symbol.FilePath, h.Symbol.StartLine)
		}
		return toolText(b.String()), map[string]any{"hits": hits, "threshold": threshold}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cimcp.getModuleSummary",
		Description: "Summarize the exported surface of every file under a path prefix.",
		InputSchema: mustSchema(ModuleSummaryArgs{}),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ModuleSummaryArgs) (*mcp.CallToolResult, any, error) {
		files, err := a.Retriever.GetModuleSummary(args.Path, args.Limit)
		if err != nil {
			return toolError(err), nil, nil
		}
		var b strings.Builder
		for _, f := range files {
			fmt.Fprintf(&b, "%s\n", f.FilePath)
			for _, sig := range f.Signatures {
				fmt.Fprintf(&b, "  %s\n", sig)
			}
		}
		return toolText(b.String()), map[string]any{"files": files}, nil
	})
}

// graphTool adapts the shared traversal signature into a tool handler.
func graphTool(a *app.App, fn func(*store.Store, string, graph.Direction, int, int) (*graph.Result, error)) func(context.Context, *mcp.CallToolRequest, HierarchyArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args HierarchyArgs) (*mcp.CallToolResult, any, error) {
		dir, err := graph.ParseDirection(args.Direction)
		if err != nil {
			return toolError(err), nil, nil
		}
		res, err := fn(a.Store, args.Name, dir, args.Depth, args.Limit)
		return graphResult(res, err)
	}
}

func graphResult(res *graph.Result, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return toolError(err), nil, nil
	}
	if res == nil {
		return toolText(retrieval.StatusSymbolNotFound), map[string]any{"error": retrieval.StatusSymbolNotFound}, nil
	}
	var b strings.Builder
	for _, n := range res.Nodes {
		fmt.Fprintf(&b, "[%d] %s (%s) %s:%d\n", n.Depth, n.Name, n.Kind, n.FilePath, n.StartLine)
	}
	for _, e := range res.Edges {
		fmt.Fprintf(&b, "%s -%s-> %s\n", e.From, e.Type, e.To)
		for _, ev := range e.Evidence {
			fmt.Fprintf(&b, "  %s\n", ev)
		}
	}
	return toolText(b.String()), res, nil
}

// --- formatting helpers ---

func formatHits(resp *retrieval.SearchResponse) string {
	var b strings.Builder
	if resp.Intent != "" {
		fmt.Fprintf(&b, "intent: %s\n", resp.Intent)
	}
	for i, h := range resp.Hits {
		marker := ""
		if h.Expanded {
			marker = " (related)"
		}
		fmt.Fprintf(&b, "%d. %s (%s) %s:%d score=%.3f%s\n",
			i+1, h.Name, h.Kind, h.FilePath, h.StartLine, h.Score, marker)
	}
	if resp.Context != "" {
		b.WriteString("\n")
		b.WriteString(resp.Context)
	}
	return b.String()
}

func formatBreakdown(resp *retrieval.SearchResponse, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query: %s\nintent: %s\n", resp.Query, resp.Intent)
	for i, h := range resp.Hits {
		fmt.Fprintf(&b, "%d. %s (%s) %s score=%.3f\n", i+1, h.Name, h.Kind, h.FilePath, h.Score)
		sig := resp.Signals[h.ID]
		if sig == nil {
			continue
		}
		if verbose {
			fmt.Fprintf(&b, "   kw=%.3f vec=%.3f base=%.3f struct=%+.3f intent=x%.2f def=%+.1f doc=%+.2f pop=%+.3f learn=%+.3f aff=%+.3f pkg=%+.3f\n",
				sig.KeywordScore, sig.VectorScore, sig.BaseScore, sig.StructuralAdjust,
				sig.IntentMult, sig.DefinitionBias, sig.DocstringBoost, sig.PopularityBoost,
				sig.LearningBoost, sig.AffinityBoost, sig.PackageBoost)
		} else {
			fmt.Fprintf(&b, "   base=%.3f intent=x%.2f def=%+.1f\n", sig.BaseScore, sig.IntentMult, sig.DefinitionBias)
		}
	}
	return b.String()
}

func toolText(text string) *mcp.CallToolResult {
	if text == "" {
		text = "(no results)"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}

// mustSchema builds a JSON Schema for a tool argument struct from its
// json, desc, and required tags.
func mustSchema(v any) json.RawMessage {
	t := reflect.TypeOf(v)
	props := map[string]any{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		prop := map[string]any{"type": schemaType(f.Type)}
		if item := schemaItemType(f.Type); item != "" {
			prop["items"] = map[string]any{"type": item}
		}
		if desc := f.Tag.Get("desc"); desc != "" {
			prop["description"] = desc
		}
		props[name] = prop
		if f.Tag.Get("required") == "true" {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, _ := json.Marshal(schema)
	return data
}

func schemaType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice:
		return "array"
	default:
		return "string"
	}
}

func schemaItemType(t reflect.Type) string {
	if t.Kind() != reflect.Slice {
		return ""
	}
	return schemaType(t.Elem())
}
