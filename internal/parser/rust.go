package parser

import (
	"regexp"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// RustParser extracts symbols from Rust source files using regex patterns.
type RustParser struct{}

var (
	rsFnRe     = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+(\w+)`)
	rsStructRe = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?struct\s+(\w+)`)
	rsEnumRe   = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?enum\s+(\w+)`)
	rsTraitRe  = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?trait\s+(\w+)`)
	rsImplRe   = regexp.MustCompile(`(?m)^\s*impl(?:<[^>]*>)?\s+(\w+)`)
	rsTypeRe   = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?type\s+(\w+)\s*=`)
	rsConstRe  = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?(?:const|static)\s+(\w+)\s*:`)
	rsModRe    = regexp.MustCompile(`(?m)^\s*(pub(?:\([^)]*\))?\s+)?mod\s+(\w+)`)

	rsUseGroupRe  = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+([\w:]+)::\{([^}]*)\}`)
	rsUseSingleRe = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+([\w:]+)::(\w+)(?:\s+as\s+(\w+))?\s*;`)
)

func (p *RustParser) Parse(filePath string, src []byte) (*symbols.FileResult, error) {
	content := string(src)
	lines := strings.Split(content, "\n")
	result := &symbols.FileResult{Todos: scanTodos(filePath, lines)}

	seen := map[string]bool{}
	add := func(kind symbols.Kind, name string, exported bool, start, end int) {
		key := name + "\x00" + string(kind)
		if seen[key] {
			return
		}
		seen[key] = true
		doc := docstringAbove(lines, lineAt(content, start), "///", "//!", "//")
		result.Symbols = append(result.Symbols, newSymbol(filePath, LangRust, kind, name, exported, start, end, content, doc))
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

	collect(rsFnRe, symbols.KindFunction, true)
	collect(rsStructRe, symbols.KindStruct, true)
	collect(rsEnumRe, symbols.KindEnum, true)
	collect(rsTraitRe, symbols.KindTrait, true)
	collect(rsTypeRe, symbols.KindTypeAlias, false)
	collect(rsConstRe, symbols.KindConst, false)
	collect(rsModRe, symbols.KindModule, true)

	// impl blocks have no visibility of their own.
	for _, m := range rsImplRe.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		start := matchStart(content, m[0])
		add(symbols.KindImpl, name, false, start, braceBlockEnd(content, start))
	}

	for _, m := range rsUseGroupRe.FindAllStringSubmatch(content, -1) {
		source := strings.ReplaceAll(m[1], "::", "/")
		for _, part := range strings.Split(m[2], ",") {
			part = strings.TrimSpace(part)
			if part == "" || part == "self" {
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
	for _, m := range rsUseSingleRe.FindAllStringSubmatch(content, -1) {
		result.Imports = append(result.Imports, symbols.Import{
			Name:   m[2],
			Source: strings.ReplaceAll(m[1], "::", "/"),
			Alias:  m[3],
		})
	}

	return result, nil
}
