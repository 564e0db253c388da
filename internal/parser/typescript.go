package parser

import (
	"regexp"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// TypeScriptParser extracts symbols from TypeScript and JavaScript source
// files using regex patterns.
type TypeScriptParser struct{}

var (
	tsClassRe     = regexp.MustCompile(`(?m)^\s*(export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)`)
	tsInterfaceRe = regexp.MustCompile(`(?m)^\s*(export\s+)?interface\s+(\w+)`)
	tsTypeRe      = regexp.MustCompile(`(?m)^\s*(export\s+)?type\s+(\w+)\s*=`)
	tsEnumRe      = regexp.MustCompile(`(?m)^\s*(export\s+)?(?:const\s+)?enum\s+(\w+)`)
	tsFuncRe      = regexp.MustCompile(`(?m)^\s*(export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*[\(<]`)
	tsArrowRe     = regexp.MustCompile(`(?m)^\s*(export\s+)?(?:const|let|var)\s+(\w+)\s*(?::\s*[^=]+?)?\s*=\s*(?:async\s+)?\([^)]*\)[^=\n]*=>`)
	tsConstRe     = regexp.MustCompile(`(?m)^\s*(export\s+)?const\s+(\w+)\s*(?::\s*[\w\[\]<>,. |&]+)?\s*=`)
	tsModuleRe    = regexp.MustCompile(`(?m)^\s*(export\s+)?(?:declare\s+)?(?:namespace|module)\s+(\w+)`)

	tsImportNamedRe   = regexp.MustCompile(`(?m)^\s*import\s+(?:type\s+)?\{([^}]*)\}\s*from\s*['"]([^'"]+)['"]`)
	tsImportDefaultRe = regexp.MustCompile(`(?m)^\s*import\s+(\w+)\s*(?:,\s*\{[^}]*\})?\s*from\s*['"]([^'"]+)['"]`)
	tsImportStarRe    = regexp.MustCompile(`(?m)^\s*import\s+\*\s+as\s+(\w+)\s+from\s*['"]([^'"]+)['"]`)
)

func (p *TypeScriptParser) Parse(filePath string, src []byte) (*symbols.FileResult, error) {
	content := string(src)
	lines := strings.Split(content, "\n")
	result := &symbols.FileResult{Todos: scanTodos(filePath, lines)}
	lang := LangTypeScript
	if DetectLang(filePath) == LangJavaScript {
		lang = LangJavaScript
	}

	seen := map[string]bool{}
	add := func(kind symbols.Kind, name string, exported bool, start, end int) {
		if seen[name] {
			return
		}
		seen[name] = true
		doc := docstringAbove(lines, lineAt(content, start), "//", "/*", "*", "*/")
		result.Symbols = append(result.Symbols, newSymbol(filePath, lang, kind, name, exported, start, end, content, doc))
	}

	collect := func(re *regexp.Regexp, kind symbols.Kind, brace bool) {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			exported := m[2] >= 0
			name := content[m[4]:m[5]]
			start := matchStart(content, m[0])
			end := lineEndOffset(content, start)
			if brace {
				end = braceBlockEnd(content, start)
			}
			add(kind, name, exported, start, end)
		}
	}

	collect(tsClassRe, symbols.KindClass, true)
	collect(tsInterfaceRe, symbols.KindInterface, true)
	collect(tsEnumRe, symbols.KindEnum, true)
	collect(tsModuleRe, symbols.KindModule, true)
	collect(tsFuncRe, symbols.KindFunction, true)
	collect(tsTypeRe, symbols.KindTypeAlias, false)
	collect(tsArrowRe, symbols.KindFunction, true)
	collect(tsConstRe, symbols.KindConst, false)

	// Imports
	for _, m := range tsImportNamedRe.FindAllStringSubmatch(content, -1) {
		source := m[2]
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, alias := part, ""
			if fields := strings.Split(part, " as "); len(fields) == 2 {
				name = strings.TrimSpace(fields[0])
				alias = strings.TrimSpace(fields[1])
			}
			result.Imports = append(result.Imports, symbols.Import{Name: name, Source: source, Alias: alias})
		}
	}
	for _, m := range tsImportDefaultRe.FindAllStringSubmatch(content, -1) {
		result.Imports = append(result.Imports, symbols.Import{Name: m[1], Source: m[2]})
	}
	for _, m := range tsImportStarRe.FindAllStringSubmatch(content, -1) {
		result.Imports = append(result.Imports, symbols.Import{Name: m[1], Source: m[2], Alias: m[1]})
	}

	return result, nil
}

// matchStart skips the leading whitespace a multiline ^\s* pattern may have
// swallowed, so byte spans start at the declaration itself.
func matchStart(content string, offset int) int {
	for offset < len(content) {
		switch content[offset] {
		case ' ', '\t', '\n', '\r':
			offset++
		default:
			return offset
		}
	}
	return offset
}
