package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/cimcp/cimcp/internal/symbols"
)

// GoParser extracts symbols from Go source files using regex patterns.
type GoParser struct{}

var (
	goFuncRe      = regexp.MustCompile(`(?m)^func\s+(\w+)\s*[\(\[]`)
	goMethodRe    = regexp.MustCompile(`(?m)^func\s+\([^)]+\)\s+(\w+)\s*[\(\[]`)
	goStructRe    = regexp.MustCompile(`(?m)^type\s+(\w+)\s+struct\b`)
	goInterfaceRe = regexp.MustCompile(`(?m)^type\s+(\w+)\s+interface\b`)
	goTypeAliasRe = regexp.MustCompile(`(?m)^type\s+(\w+)\s*=?\s+[^\s{]+\s*$`)
	goConstRe     = regexp.MustCompile(`(?m)^const\s+(\w+)\b`)
	goVarRe       = regexp.MustCompile(`(?m)^var\s+(\w+)\b`)

	goImportBlockRe  = regexp.MustCompile(`(?ms)^import\s*\((.*?)\)`)
	goImportSingleRe = regexp.MustCompile(`(?m)^import\s+(?:(\w+)\s+)?"([^"]+)"`)
	goImportLineRe   = regexp.MustCompile(`^\s*(?:(\w+)\s+)?"([^"]+)"`)
)

func (p *GoParser) Parse(filePath string, src []byte) (*symbols.FileResult, error) {
	content := string(src)
	lines := strings.Split(content, "\n")
	result := &symbols.FileResult{Todos: scanTodos(filePath, lines)}

	seen := map[string]bool{}
	add := func(kind symbols.Kind, name string, start, end int) {
		if seen[name] {
			return
		}
		seen[name] = true
		exported := len(name) > 0 && unicode.IsUpper(rune(name[0]))
		doc := docstringAbove(lines, lineAt(content, start), "//")
		result.Symbols = append(result.Symbols, newSymbol(filePath, LangGo, kind, name, exported, start, end, content, doc))
	}

	for _, m := range goMethodRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindMethod, content[m[2]:m[3]], m[0], braceBlockEnd(content, m[0]))
	}
	for _, m := range goFuncRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindFunction, content[m[2]:m[3]], m[0], braceBlockEnd(content, m[0]))
	}
	for _, m := range goStructRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindStruct, content[m[2]:m[3]], m[0], braceBlockEnd(content, m[0]))
	}
	for _, m := range goInterfaceRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindInterface, content[m[2]:m[3]], m[0], braceBlockEnd(content, m[0]))
	}
	for _, m := range goTypeAliasRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindTypeAlias, content[m[2]:m[3]], m[0], lineEndOffset(content, m[0]))
	}
	for _, m := range goConstRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindConst, content[m[2]:m[3]], m[0], lineEndOffset(content, m[0]))
	}
	for _, m := range goVarRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindConst, content[m[2]:m[3]], m[0], lineEndOffset(content, m[0]))
	}

	// Imports: grouped blocks first, then single-line forms.
	for _, m := range goImportBlockRe.FindAllStringSubmatch(content, -1) {
		for _, line := range strings.Split(m[1], "\n") {
			im := goImportLineRe.FindStringSubmatch(line)
			if im == nil {
				continue
			}
			result.Imports = append(result.Imports, goImport(im[1], im[2]))
		}
	}
	for _, m := range goImportSingleRe.FindAllStringSubmatch(content, -1) {
		result.Imports = append(result.Imports, goImport(m[1], m[2]))
	}

	return result, nil
}

func goImport(alias, source string) symbols.Import {
	name := source
	if i := strings.LastIndex(source, "/"); i >= 0 {
		name = source[i+1:]
	}
	return symbols.Import{Name: name, Source: source, Alias: alias}
}
