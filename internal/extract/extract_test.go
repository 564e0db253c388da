package extract

import (
	"fmt"
	"testing"

	"github.com/cimcp/cimcp/internal/symbols"
)

func sym(filePath, name string, kind symbols.Kind, text string, startLine int) symbols.Symbol {
	return symbols.Symbol{
		ID:        symbols.StableID(filePath, name, 0, true),
		FilePath:  filePath,
		Kind:      kind,
		Name:      name,
		Exported:  true,
		StartLine: startLine,
		Text:      text,
	}
}

func fileRoot(filePath, text string) symbols.Symbol {
	return symbols.Symbol{
		ID:       symbols.FileRootID(filePath),
		FilePath: filePath,
		Kind:     symbols.KindFile,
		Name:     filePath,
		Exported: true,
		Text:     text,
	}
}

func findEdge(edges []symbols.Edge, from, to string, et symbols.EdgeType) *symbols.Edge {
	for i := range edges {
		if edges[i].FromID == from && edges[i].ToID == to && edges[i].Type == et {
			return &edges[i]
		}
	}
	return nil
}

func TestCalleeDetectionLocal(t *testing.T) {
	alpha := sym("src/a.ts", "alpha", symbols.KindFunction, "export function alpha(){ return 1 }", 1)
	beta := sym("src/a.ts", "beta", symbols.KindFunction, "export function beta(){ return alpha() }", 2)

	res := Extract(Input{
		FilePath: "src/a.ts",
		Symbols:  []symbols.Symbol{alpha, beta},
	})

	e := findEdge(res.Edges, beta.ID, alpha.ID, symbols.EdgeCall)
	if e == nil {
		t.Fatal("call edge beta -> alpha not found")
	}
	if e.Resolution != symbols.ResolutionLocal {
		t.Errorf("resolution = %s, want local", e.Resolution)
	}
	if e.Confidence != 1.0 {
		t.Errorf("call confidence = %v", e.Confidence)
	}

	foundExample := false
	for _, ex := range res.Examples {
		if ex.ToID == alpha.ID && ex.Type == symbols.ExampleCall {
			foundExample = true
			if ex.Snippet == "" {
				t.Error("empty call example snippet")
			}
		}
	}
	if !foundExample {
		t.Error("no call usage example for alpha")
	}
}

func TestCalleeStopwordsExcluded(t *testing.T) {
	ifSym := sym("src/a.ts", "if", symbols.KindFunction, "x", 1)
	f := sym("src/a.ts", "f", symbols.KindFunction, "function f(){ if (x) { return match (y) } }", 2)

	res := Extract(Input{FilePath: "src/a.ts", Symbols: []symbols.Symbol{ifSym, f}})
	if e := findEdge(res.Edges, f.ID, ifSym.ID, symbols.EdgeCall); e != nil {
		t.Error("stopword 'if' produced a call edge")
	}
}

func TestImportResolutionSynthesizesTarget(t *testing.T) {
	f := sym("src/sub/b.ts", "useHelper", symbols.KindFunction,
		"export function useHelper(){ return helper() }", 1)

	res := Extract(Input{
		FilePath: "src/sub/b.ts",
		Symbols:  []symbols.Symbol{f},
		Imports:  []symbols.Import{{Name: "helper", Source: "../util"}},
	})

	wantTarget := symbols.StableID("src/util.ts", "helper", 0, true)
	e := findEdge(res.Edges, f.ID, wantTarget, symbols.EdgeCall)
	if e == nil {
		t.Fatalf("import-resolved call edge not found; edges: %+v", res.Edges)
	}
	if e.Resolution != symbols.ResolutionImport {
		t.Errorf("resolution = %s, want import", e.Resolution)
	}
}

func TestResolvePath(t *testing.T) {
	cases := []struct {
		current, source, want string
	}{
		{"src/a.ts", "./util", "src/util.ts"},
		{"src/sub/b.ts", "../util", "src/util.ts"},
		{"src/a.ts", "./styles.css", "src/styles.css"},
		{"a.ts", "./deep/mod", "deep/mod.ts"},
	}
	for _, c := range cases {
		if got := ResolvePath(c.current, c.source); got != c.want {
			t.Errorf("ResolvePath(%s, %s) = %s, want %s", c.current, c.source, got, c.want)
		}
	}
}

func TestReferenceCap(t *testing.T) {
	var locals []symbols.Symbol
	text := "function big(){\n"
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("ref%02d", i)
		locals = append(locals, sym("src/a.ts", name, symbols.KindConst, "const "+name+" = 1", i+10))
		text += "  const x" + name + " = " + name + ";\n"
	}
	text += "}"
	big := sym("src/a.ts", "big", symbols.KindFunction, text, 1)

	res := Extract(Input{FilePath: "src/a.ts", Symbols: append(locals, big)})

	refs := 0
	for _, e := range res.Edges {
		if e.FromID == big.ID && e.Type == symbols.EdgeReference {
			refs++
		}
	}
	if refs > 20 {
		t.Errorf("reference edges = %d, want <= 20", refs)
	}
}

func TestTypeRelations(t *testing.T) {
	base := sym("src/a.ts", "Base", symbols.KindClass, "class Base {}", 1)
	greeter := sym("src/a.ts", "Greeter", symbols.KindInterface, "interface Greeter {}", 2)
	person := sym("src/a.ts", "Person", symbols.KindClass,
		"class Person extends Base implements Greeter {}", 3)
	alias := sym("src/a.ts", "P", symbols.KindTypeAlias, "type P = Person", 4)

	res := Extract(Input{FilePath: "src/a.ts", Symbols: []symbols.Symbol{base, greeter, person, alias}})

	if findEdge(res.Edges, person.ID, base.ID, symbols.EdgeExtends) == nil {
		t.Error("extends edge not found")
	}
	if findEdge(res.Edges, person.ID, greeter.ID, symbols.EdgeImplements) == nil {
		t.Error("implements edge not found")
	}
	if findEdge(res.Edges, alias.ID, person.ID, symbols.EdgeAlias) == nil {
		t.Error("alias edge not found")
	}
}

func TestImportExamplesFromFileRoot(t *testing.T) {
	content := "import { helper } from './util'\nexport function f(){}\n"
	root := fileRoot("src/a.ts", content)
	f := sym("src/a.ts", "f", symbols.KindFunction, "export function f(){}", 2)

	res := Extract(Input{
		FilePath: "src/a.ts",
		Symbols:  []symbols.Symbol{root, f},
		Imports:  []symbols.Import{{Name: "helper", Source: "./util"}},
	})

	found := false
	for _, ex := range res.Examples {
		if ex.Type == symbols.ExampleImport && ex.Line == 1 {
			found = true
		}
	}
	if !found {
		t.Error("import example not extracted from file root")
	}
}

func TestExampleDedupOmitsCaller(t *testing.T) {
	// Two callers sharing the same snippet line coalesce because the
	// dedup tuple omits the caller id.
	alpha := sym("src/a.ts", "alpha", symbols.KindFunction, "export function alpha(){}", 1)
	b1 := sym("src/a.ts", "b1", symbols.KindFunction, "alpha()", 5)
	b2 := sym("src/a.ts", "b2", symbols.KindFunction, "alpha()", 5)

	res := Extract(Input{FilePath: "src/a.ts", Symbols: []symbols.Symbol{alpha, b1, b2}})

	count := 0
	for _, ex := range res.Examples {
		if ex.ToID == alpha.ID && ex.Type == symbols.ExampleCall {
			count++
		}
	}
	if count != 1 {
		t.Errorf("coalesced examples = %d, want 1", count)
	}
}

func TestTestLinksFromTestFiles(t *testing.T) {
	target := sym("src/__tests__/a.test.ts", "alpha", symbols.KindFunction, "function alpha(){}", 1)
	test := sym("src/__tests__/a.test.ts", "testAlpha", symbols.KindFunction,
		"function testAlpha(){ alpha() }", 3)

	res := Extract(Input{FilePath: "src/__tests__/a.test.ts", Symbols: []symbols.Symbol{target, test}})

	found := false
	for _, tl := range res.TestLinks {
		if tl[0] == test.ID && tl[1] == target.ID {
			found = true
		}
	}
	if !found {
		t.Error("test link not recorded")
	}
}
