// Package parser extracts symbols, imports, and TODO markers from source
// files. The extractors are regex-based; the indexing pipeline treats this
// package as an opaque capability and tolerates its misses.
package parser

import (
	"path/filepath"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// Lang represents a supported programming language.
type Lang string

const (
	LangGo         Lang = "go"
	LangRust       Lang = "rust"
	LangPython     Lang = "python"
	LangTypeScript Lang = "typescript"
	LangJavaScript Lang = "javascript"
	LangUnknown    Lang = ""
)

// extMap maps file extensions to languages.
var extMap = map[string]Lang{
	".go":  LangGo,
	".rs":  LangRust,
	".py":  LangPython,
	".pyi": LangPython,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
}

// DetectLang returns the language for a given file path based on extension.
func DetectLang(path string) Lang {
	ext := strings.ToLower(filepath.Ext(path))
	if l, ok := extMap[ext]; ok {
		return l
	}
	return LangUnknown
}

// Parser extracts symbols and imports from source code. filePath is the
// repository-relative forward-slash path recorded on every symbol.
type Parser interface {
	Parse(filePath string, src []byte) (*symbols.FileResult, error)
}

var parserRegistry = map[Lang]Parser{}

func init() {
	parserRegistry[LangGo] = &GoParser{}
	parserRegistry[LangRust] = &RustParser{}
	parserRegistry[LangPython] = &PythonParser{}
	parserRegistry[LangTypeScript] = &TypeScriptParser{}
	parserRegistry[LangJavaScript] = &TypeScriptParser{} // JS shares the TS patterns
}

// Get returns the parser for the given language, or nil if unsupported.
func Get(lang Lang) Parser {
	return parserRegistry[lang]
}
