// Package symbols defines the symbol and edge model shared by the stores,
// the indexing pipeline, and retrieval.
package symbols

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Kind classifies a symbol definition.
type Kind string

const (
	KindFile      Kind = "file"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindImpl      Kind = "impl"
	KindTypeAlias Kind = "type_alias"
	KindConst     Kind = "const"
	KindModule    Kind = "module"
)

// FileRootName is the synthetic name under which a whole file is indexed.
const FileRootName = "FILE_ROOT"

// Symbol is a uniquely identified definition located in a file.
type Symbol struct {
	ID        string
	FilePath  string // repository-relative, forward slashes
	Language  string
	Kind      Kind
	Name      string
	Exported  bool
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
	Text      string
	Docstring string
}

// StableID derives the id for a symbol. Exported symbols hash with
// startByte=0 so moving an exported declaration inside its file does not
// invalidate existing edges.
func StableID(filePath, name string, startByte int, exported bool) string {
	if exported {
		startByte = 0
	}
	h := xxhash.New()
	_, _ = h.WriteString(filePath)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(startByte))
	return fmt.Sprintf("%016x", h.Sum64())
}

// FileRootID is the id of the synthetic file-root symbol for a path.
func FileRootID(filePath string) string {
	return StableID(filePath, FileRootName, 0, true)
}

// EdgeType classifies a directed relation between two symbols.
type EdgeType string

const (
	EdgeCall       EdgeType = "call"
	EdgeReference  EdgeType = "reference"
	EdgeImport     EdgeType = "import"
	EdgeExtends    EdgeType = "extends"
	EdgeImplements EdgeType = "implements"
	EdgeAlias      EdgeType = "alias"
	EdgeTypeRel    EdgeType = "type"
	EdgeReads      EdgeType = "reads"
	EdgeWrites     EdgeType = "writes"
	EdgeContains   EdgeType = "contains"
)

// Confidence returns the fixed extraction confidence for an edge type.
func (t EdgeType) Confidence() float64 {
	switch t {
	case EdgeCall:
		return 1.0
	case EdgeTypeRel:
		return 0.9
	case EdgeExtends, EdgeImplements, EdgeAlias:
		return 0.95
	case EdgeReference:
		return 0.8
	case EdgeReads, EdgeWrites:
		return 0.7
	default:
		return 1.0
	}
}

// Resolution annotates how an edge target was resolved relative to its source.
type Resolution string

const (
	ResolutionLocal              Resolution = "local"
	ResolutionPackage            Resolution = "package"
	ResolutionCrossPackage       Resolution = "cross-package"
	ResolutionImport             Resolution = "import"
	ResolutionPackageImport      Resolution = "package-import"
	ResolutionCrossPackageImport Resolution = "cross-package-import"
	ResolutionUnknown            Resolution = "unknown"
)

// Edge is a directed relation (from, to, type). Reinserting an existing edge
// merges by max(confidence) and max(evidence_count).
type Edge struct {
	FromID        string
	ToID          string
	Type          EdgeType
	AtFile        string
	AtLine        int
	Confidence    float64
	EvidenceCount int
	Resolution    Resolution
}

// Evidence is one observed site backing an edge.
type Evidence struct {
	FromID string
	ToID   string
	Type   EdgeType
	AtFile string
	AtLine int
	Count  int
}

// ExampleType classifies a usage example snippet.
type ExampleType string

const (
	ExampleCall      ExampleType = "call"
	ExampleReference ExampleType = "reference"
	ExampleImport    ExampleType = "import"
)

// UsageExample is a renderable snippet attached to a target symbol.
type UsageExample struct {
	ToID     string
	FromID   string
	Type     ExampleType
	FilePath string
	Line     int
	Snippet  string
}

// Import records one imported name in a file.
type Import struct {
	Name   string
	Source string
	Alias  string
}

// RawEdge is a parser-supplied relation by name, resolved later by the
// extractor against the file's symbols.
type RawEdge struct {
	FromName string
	ToName   string
	Type     EdgeType
	Line     int
}

// Todo is a TODO/FIXME marker found during parsing.
type Todo struct {
	FilePath string
	Line     int
	Marker   string
	Text     string
}

// FileResult is the parser output for one file.
type FileResult struct {
	Symbols       []Symbol
	Imports       []Import
	TypeEdges     []RawEdge
	DataflowEdges []RawEdge
	Todos         []Todo
}

// IsDefinitionKind reports whether the kind counts as a definition for
// ranking purposes.
func IsDefinitionKind(k Kind) bool {
	switch k {
	case KindFunction, KindMethod, KindClass, KindInterface, KindStruct,
		KindEnum, KindTrait, KindTypeAlias, KindConst, KindModule:
		return true
	}
	return false
}

// IsTypeKind reports whether the kind is type-like for graph expansion.
func IsTypeKind(k Kind) bool {
	switch k {
	case KindStruct, KindEnum, KindClass, KindInterface, KindTrait:
		return true
	}
	return false
}

// IsFunctionKind reports whether the kind is callable for graph expansion.
func IsFunctionKind(k Kind) bool {
	return k == KindFunction || k == KindMethod
}
