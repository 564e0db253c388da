package parser

import (
	"regexp"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// lineAt returns the 1-based line number for a byte offset in content.
func lineAt(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}

// braceBlockEnd returns the byte offset one past the brace block that opens
// at or after start. When there is no opening brace, or the first one lies
// past the end of the declaration's line with non-whitespace text before it,
// the declaration is treated as ending at the end of its line.
func braceBlockEnd(content string, start int) int {
	open := strings.IndexByte(content[start:], '{')
	lineEnd := strings.IndexByte(content[start:], '\n')
	if open < 0 || (lineEnd >= 0 && lineEnd < open && !onlyWhitespaceBetween(content, start+lineEnd, start+open)) {
		if lineEnd < 0 {
			return len(content)
		}
		return start + lineEnd
	}
	depth := 0
	for i := start + open; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(content)
}

func onlyWhitespaceBetween(content string, from, to int) bool {
	for i := from; i < to && i < len(content); i++ {
		switch content[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

// lineEndOffset returns the byte offset of the end of the line containing
// offset (exclusive of the newline).
func lineEndOffset(content string, offset int) int {
	if i := strings.IndexByte(content[offset:], '\n'); i >= 0 {
		return offset + i
	}
	return len(content)
}

// docstringAbove collects the contiguous comment block immediately above
// startLine (1-based). commentPrefixes are tried per trimmed line.
func docstringAbove(lines []string, startLine int, commentPrefixes ...string) string {
	var doc []string
	for i := startLine - 2; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		matched := false
		for _, p := range commentPrefixes {
			if strings.HasPrefix(trimmed, p) {
				doc = append([]string{trimmed}, doc...)
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	return strings.Join(doc, "\n")
}

var todoRe = regexp.MustCompile(`\b(TODO|FIXME|HACK|XXX)\b[:\s]*(.*)`)

// scanTodos collects TODO-style markers from every line of a file.
func scanTodos(filePath string, lines []string) []symbols.Todo {
	var todos []symbols.Todo
	for i, line := range lines {
		m := todoRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[2])
		if len(text) > 200 {
			text = text[:200]
		}
		todos = append(todos, symbols.Todo{
			FilePath: filePath,
			Line:     i + 1,
			Marker:   m[1],
			Text:     text,
		})
	}
	return todos
}

// newSymbol fills the shared fields of a parsed symbol, including its
// stable id.
func newSymbol(filePath string, lang Lang, kind symbols.Kind, name string, exported bool, startByte, endByte int, content string, doc string) symbols.Symbol {
	if endByte > len(content) {
		endByte = len(content)
	}
	if endByte <= startByte {
		endByte = lineEndOffset(content, startByte)
	}
	endLine := lineAt(content, startByte)
	if endByte > startByte {
		endLine = lineAt(content, endByte-1)
	}
	return symbols.Symbol{
		ID:        symbols.StableID(filePath, name, startByte, exported),
		FilePath:  filePath,
		Language:  string(lang),
		Kind:      kind,
		Name:      name,
		Exported:  exported,
		StartByte: startByte,
		EndByte:   endByte,
		StartLine: lineAt(content, startByte),
		EndLine:   endLine,
		Text:      content[startByte:endByte],
		Docstring: doc,
	}
}
