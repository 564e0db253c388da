// Package extract derives edges, edge evidence, usage examples, and test
// links from parsed symbols. The scan is lexical, not semantic: identifiers
// are matched by shape and resolved against the current file's symbols and
// its imports.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cimcp/cimcp/internal/symbols"
)

// maxReferencesPerSymbol caps reference edges derived from one symbol.
const maxReferencesPerSymbol = 20

// maxSnippetLen trims usage example snippets.
const maxSnippetLen = 200

var identRe = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

// calleeStopwords excludes keywords that look like calls.
var calleeStopwords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"function": true, "return": true, "new": true, "await": true, "match": true,
}

// Input is everything the extractor needs for one file.
type Input struct {
	FilePath string
	// Symbols are the file's freshly extracted symbols, including the
	// synthetic file root.
	Symbols       []symbols.Symbol
	Imports       []symbols.Import
	TypeEdges     []symbols.RawEdge
	DataflowEdges []symbols.RawEdge
	// PackageForFile returns the package id for a path, or "".
	PackageForFile func(path string) string
}

// Result is the full extraction for one file.
type Result struct {
	Edges     []symbols.Edge
	Evidence  []symbols.Evidence
	Examples  []symbols.UsageExample
	TestLinks [][2]string
}

// Extract runs the lexical scan over every non-file symbol.
func Extract(in Input) Result {
	res := Result{}

	localByName := map[string]string{}
	for _, s := range in.Symbols {
		if s.Kind == symbols.KindFile {
			continue
		}
		if _, ok := localByName[s.Name]; !ok {
			localByName[s.Name] = s.ID
		}
	}

	importByName := map[string]symbols.Import{}
	for _, im := range in.Imports {
		importByName[im.Name] = im
		if im.Alias != "" {
			importByName[im.Alias] = im
		}
	}

	r := &resolver{
		filePath:       in.FilePath,
		localByName:    localByName,
		importByName:   importByName,
		packageForFile: in.PackageForFile,
	}

	edgeSeen := map[string]bool{}
	exampleSeen := map[string]bool{}
	isTest := isTestPath(in.FilePath)

	addEdge := func(from symbols.Symbol, target resolved, et symbols.EdgeType, line int, snippet string) {
		if target.id == from.ID {
			return
		}
		key := from.ID + "\x00" + target.id + "\x00" + string(et)
		if !edgeSeen[key] {
			edgeSeen[key] = true
			res.Edges = append(res.Edges, symbols.Edge{
				FromID:        from.ID,
				ToID:          target.id,
				Type:          et,
				AtFile:        in.FilePath,
				AtLine:        line,
				Confidence:    et.Confidence(),
				EvidenceCount: 1,
				Resolution:    target.resolution,
			})
			if isTest && (et == symbols.EdgeCall || et == symbols.EdgeReference) {
				res.TestLinks = append(res.TestLinks, [2]string{from.ID, target.id})
			}
		}
		if snippet != "" {
			res.Evidence = append(res.Evidence, symbols.Evidence{
				FromID: from.ID,
				ToID:   target.id,
				Type:   et,
				AtFile: in.FilePath,
				AtLine: line,
				Count:  1,
			})
		}
	}

	addExample := func(target resolved, from string, et symbols.ExampleType, line int, snippet string) {
		snippet = trimSnippet(snippet)
		key := target.id + "\x00" + string(et) + "\x00" + in.FilePath + "\x00" + strconv.Itoa(line) + "\x00" + snippet
		if exampleSeen[key] {
			return
		}
		exampleSeen[key] = true
		res.Examples = append(res.Examples, symbols.UsageExample{
			ToID:     target.id,
			FromID:   from,
			Type:     et,
			FilePath: in.FilePath,
			Line:     line,
			Snippet:  snippet,
		})
	}

	for _, sym := range in.Symbols {
		if sym.Kind == symbols.KindFile {
			continue
		}
		extractFromSymbol(sym, r, addEdge, addExample)
	}

	// Parser-supplied relations are copied verbatim, resolved by name.
	copyRawEdges(in.TypeEdges, symbols.EdgeTypeRel, in, r, addEdge)
	copyDataflowEdges(in.DataflowEdges, in, r, addEdge)

	// Import examples come from the file itself, one per imported name per
	// import line.
	extractImportExamples(in, r, addExample)

	return res
}

func extractFromSymbol(
	sym symbols.Symbol,
	r *resolver,
	addEdge func(symbols.Symbol, resolved, symbols.EdgeType, int, string),
	addExample func(resolved, string, symbols.ExampleType, int, string),
) {
	lines := strings.Split(sym.Text, "\n")

	// Callees: identifiers immediately followed by "(", ignoring whitespace.
	calleeSeen := map[string]bool{}
	for _, m := range identRe.FindAllStringIndex(sym.Text, -1) {
		ident := sym.Text[m[0]:m[1]]
		if calleeStopwords[ident] || calleeSeen[ident] || ident == sym.Name {
			continue
		}
		if !followedByParen(sym.Text, m[1]) {
			continue
		}
		calleeSeen[ident] = true
		target, ok := r.resolve(ident)
		if !ok {
			continue
		}
		lineIdx, lineText := firstLineContaining(lines, ident)
		atLine := sym.StartLine + lineIdx
		addEdge(sym, target, symbols.EdgeCall, atLine, lineText)
		addExample(target, sym.ID, symbols.ExampleCall, atLine, lineText)
	}

	// References: all non-stopword identifiers, capped.
	refSeen := map[string]bool{}
	refs := 0
	for _, m := range identRe.FindAllStringIndex(sym.Text, -1) {
		if refs >= maxReferencesPerSymbol {
			break
		}
		ident := sym.Text[m[0]:m[1]]
		if calleeStopwords[ident] || refSeen[ident] || calleeSeen[ident] || ident == sym.Name {
			continue
		}
		refSeen[ident] = true
		target, ok := r.resolve(ident)
		if !ok {
			continue
		}
		refs++
		lineIdx, lineText := firstLineContaining(lines, ident)
		atLine := sym.StartLine + lineIdx
		addEdge(sym, target, symbols.EdgeReference, atLine, lineText)
		addExample(target, sym.ID, symbols.ExampleReference, atLine, lineText)
	}

	// Type relations only apply to type-shaped kinds.
	switch sym.Kind {
	case symbols.KindClass, symbols.KindInterface:
		for _, rel := range typeRelations(sym.Text) {
			target, ok := r.resolve(rel.ident)
			if !ok {
				continue
			}
			lineIdx, lineText := firstLineContaining(lines, rel.ident)
			addEdge(sym, target, rel.edgeType, sym.StartLine+lineIdx, lineText)
		}
	case symbols.KindTypeAlias:
		if ident, ok := aliasTarget(sym.Text); ok {
			if target, ok := r.resolve(ident); ok {
				lineIdx, lineText := firstLineContaining(lines, ident)
				addEdge(sym, target, symbols.EdgeAlias, sym.StartLine+lineIdx, lineText)
			}
		}
	}
}

type typeRelation struct {
	ident    string
	edgeType symbols.EdgeType
}

var (
	extendsRe    = regexp.MustCompile(`\bextends\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	implementsRe = regexp.MustCompile(`\bimplements\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
)

func typeRelations(text string) []typeRelation {
	var out []typeRelation
	for _, m := range extendsRe.FindAllStringSubmatch(text, -1) {
		out = append(out, typeRelation{ident: m[1], edgeType: symbols.EdgeExtends})
	}
	for _, m := range implementsRe.FindAllStringSubmatch(text, -1) {
		out = append(out, typeRelation{ident: m[1], edgeType: symbols.EdgeImplements})
	}
	return out
}

// aliasTarget returns the first identifier after the first "=".
func aliasTarget(text string) (string, bool) {
	eq := strings.IndexByte(text, '=')
	if eq < 0 {
		return "", false
	}
	m := identRe.FindString(text[eq+1:])
	if m == "" {
		return "", false
	}
	return m, true
}

func copyRawEdges(
	raw []symbols.RawEdge,
	et symbols.EdgeType,
	in Input,
	r *resolver,
	addEdge func(symbols.Symbol, resolved, symbols.EdgeType, int, string),
) {
	for _, re := range raw {
		from := findSymbol(in.Symbols, re.FromName)
		if from == nil {
			continue
		}
		target, ok := r.resolve(re.ToName)
		if !ok {
			continue
		}
		addEdge(*from, target, et, re.Line, "")
	}
}

func copyDataflowEdges(
	raw []symbols.RawEdge,
	in Input,
	r *resolver,
	addEdge func(symbols.Symbol, resolved, symbols.EdgeType, int, string),
) {
	for _, re := range raw {
		et := re.Type
		if et != symbols.EdgeReads && et != symbols.EdgeWrites {
			et = symbols.EdgeReads
		}
		from := findSymbol(in.Symbols, re.FromName)
		if from == nil {
			continue
		}
		target, ok := r.resolve(re.ToName)
		if !ok {
			continue
		}
		addEdge(*from, target, et, re.Line, "")
	}
}

func extractImportExamples(
	in Input,
	r *resolver,
	addExample func(resolved, string, symbols.ExampleType, int, string),
) {
	var fileRoot *symbols.Symbol
	for i := range in.Symbols {
		if in.Symbols[i].Kind == symbols.KindFile {
			fileRoot = &in.Symbols[i]
			break
		}
	}
	if fileRoot == nil {
		return
	}
	fromID := fileRoot.ID
	for i, line := range strings.Split(fileRoot.Text, "\n") {
		if !strings.Contains(line, "import") {
			continue
		}
		for _, im := range in.Imports {
			if !containsWord(line, im.Name) && (im.Alias == "" || !containsWord(line, im.Alias)) {
				continue
			}
			target, ok := r.resolveImport(im)
			if !ok {
				continue
			}
			addExample(target, fromID, symbols.ExampleImport, i+1, line)
		}
	}
}

func findSymbol(syms []symbols.Symbol, name string) *symbols.Symbol {
	for i := range syms {
		if syms[i].Name == name && syms[i].Kind != symbols.KindFile {
			return &syms[i]
		}
	}
	return nil
}

// followedByParen reports whether the next non-whitespace byte after
// offset is "(".
func followedByParen(text string, offset int) bool {
	for i := offset; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
		case '(':
			return true
		default:
			return false
		}
	}
	return false
}

// firstLineContaining returns the 0-based index and trimmed text of the
// first line containing ident.
func firstLineContaining(lines []string, ident string) (int, string) {
	for i, line := range lines {
		if strings.Contains(line, ident) {
			return i, strings.TrimSpace(line)
		}
	}
	return 0, ""
}

func containsWord(line, word string) bool {
	idx := 0
	for {
		i := strings.Index(line[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isIdentByte(line[start-1])
		afterOK := end >= len(line) || !isIdentByte(line[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func trimSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxSnippetLen {
		s = s[:maxSnippetLen]
	}
	return s
}

var testPathMarkers = []string{".test.", ".spec.", "/__tests__/", "/tests/", "_test."}

func isTestPath(path string) bool {
	for _, m := range testPathMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}
