package parser

import (
	"regexp"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// PythonParser extracts symbols from Python source files using regex
// patterns. Indentation decides where a block ends.
type PythonParser struct{}

var (
	pyClassRe      = regexp.MustCompile(`(?m)^class\s+(\w+)`)
	pyFuncRe       = regexp.MustCompile(`(?m)^([ \t]*)(?:async\s+)?def\s+(\w+)\s*\(`)
	pyConstRe      = regexp.MustCompile(`(?m)^([A-Z][A-Z0-9_]+)\s*(?::[^=]+)?=`)
	pyImportFromRe = regexp.MustCompile(`(?m)^from\s+([\w.]+)\s+import\s+(.+)$`)
	pyImportRe     = regexp.MustCompile(`(?m)^import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
)

func (p *PythonParser) Parse(filePath string, src []byte) (*symbols.FileResult, error) {
	content := string(src)
	lines := strings.Split(content, "\n")
	result := &symbols.FileResult{Todos: scanTodos(filePath, lines)}

	seen := map[string]bool{}
	add := func(kind symbols.Kind, name string, start, end int) {
		if seen[name] {
			return
		}
		seen[name] = true
		exported := !strings.HasPrefix(name, "_")
		doc := docstringAbove(lines, lineAt(content, start), "#")
		result.Symbols = append(result.Symbols, newSymbol(filePath, LangPython, kind, name, exported, start, end, content, doc))
	}

	for _, m := range pyClassRe.FindAllStringSubmatchIndex(content, -1) {
		name := content[m[2]:m[3]]
		add(symbols.KindClass, name, m[0], indentBlockEnd(content, lines, lineAt(content, m[0]), 0))
	}
	for _, m := range pyFuncRe.FindAllStringSubmatchIndex(content, -1) {
		indent := 0
		if m[2] >= 0 {
			indent = m[3] - m[2]
		}
		name := content[m[4]:m[5]]
		kind := symbols.KindFunction
		if indent > 0 {
			kind = symbols.KindMethod
		}
		start := m[0] + indent
		add(kind, name, start, indentBlockEnd(content, lines, lineAt(content, start), indent))
	}
	for _, m := range pyConstRe.FindAllStringSubmatchIndex(content, -1) {
		add(symbols.KindConst, content[m[2]:m[3]], m[0], lineEndOffset(content, m[0]))
	}

	for _, m := range pyImportFromRe.FindAllStringSubmatch(content, -1) {
		source := strings.ReplaceAll(m[1], ".", "/")
		for _, part := range strings.Split(m[2], ",") {
			part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "\\"))
			if part == "" || part == "(" || part == ")" {
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
	for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		result.Imports = append(result.Imports, symbols.Import{
			Name:   name,
			Source: strings.ReplaceAll(m[1], ".", "/"),
			Alias:  m[2],
		})
	}

	return result, nil
}

// indentBlockEnd returns the byte offset where an indentation block that
// starts on startLine (1-based) at the given indent ends.
func indentBlockEnd(content string, lines []string, startLine, indent int) int {
	end := len(lines)
	for i := startLine; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lineIndent := len(line) - len(strings.TrimLeft(line, " \t"))
		if lineIndent <= indent {
			end = i
			break
		}
	}
	// Convert the end line back to a byte offset.
	offset := 0
	for i := 0; i < end && i < len(lines); i++ {
		offset += len(lines[i]) + 1
	}
	if offset > len(content) {
		offset = len(content)
	}
	return offset
}
