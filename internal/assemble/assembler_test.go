package assemble

import (
	"strings"
	"testing"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/symbols"
)

// testAssembler uses a bogus encoding so the byte heuristic counts tokens;
// budgets stay enforced by the same counter either way.
func testAssembler(t *testing.T, maxTokens int) *Assembler {
	t.Helper()
	cfg := &config.Config{
		BaseDir:          t.TempDir(),
		MaxContextTokens: maxTokens,
		TokenEncoding:    "bogus-encoding",
	}
	return New(cfg)
}

func rootInput(name, text string) Input {
	return Input{
		Symbol: symbols.Symbol{
			ID:       symbols.StableID("src/"+name+".ts", name, 0, true),
			FilePath: "src/" + name + ".ts",
			Kind:     symbols.KindFunction,
			Name:     name,
			Exported: true,
			Text:     text,
		},
		Role: RoleRoot,
	}
}

func TestAssembleRespectsGlobalBudget(t *testing.T) {
	a := testAssembler(t, 100)
	big := strings.Repeat("word word word word\n", 200)

	out, items := a.Assemble([]Input{rootInput("alpha", big), rootInput("beta", big)}, "", ModeDefault)

	total := 0
	for _, it := range items {
		total += it.Tokens
	}
	if total > 100 {
		t.Errorf("assembled tokens = %d, over budget", total)
	}
	// The full returned string, headers included, stays within the budget
	// as measured by the same counter.
	if got := a.Counter().Count(out); got > 100 {
		t.Errorf("output counts %d tokens, over budget", got)
	}
}

func TestAssembleBudgetTruncationScenario(t *testing.T) {
	// Budget sized so only one root fits in the 70% cap: the first root
	// lands whole, the second is absent or a single truncated item.
	a := testAssembler(t, 60)
	body := strings.Repeat("alpha line\n", 12)

	_, items := a.Assemble([]Input{rootInput("first", body), rootInput("second", body)}, "", ModeDefault)

	if len(items) == 0 {
		t.Fatal("nothing assembled")
	}
	if items[0].Name != "first" || items[0].Truncated {
		t.Errorf("first root should be complete: %+v", items[0])
	}
	if len(items) > 1 {
		if items[1].Name != "second" || !items[1].Truncated {
			t.Errorf("second item should be the truncated tail: %+v", items[1])
		}
		for _, r := range items[1].Reasons {
			if r == "truncated" {
				return
			}
		}
		t.Error("truncated item missing the truncated reason")
	}
}

func TestAssembleDedupesById(t *testing.T) {
	a := testAssembler(t, 1000)
	in := rootInput("alpha", "function alpha() {}")
	_, items := a.Assemble([]Input{in, in}, "", ModeDefault)
	if len(items) != 1 {
		t.Errorf("duplicate id assembled %d times", len(items))
	}
}

func TestClusterDedupByFingerprint(t *testing.T) {
	a := testAssembler(t, 10000)
	// Same body, different ids, no cluster keys: the fingerprint cap
	// (2 roots per cluster) admits two and drops the third.
	body := "function shared() { return 1 }"
	in1 := rootInput("a1", body)
	in2 := rootInput("a2", body)
	in3 := rootInput("a3", body)

	_, items := a.Assemble([]Input{in1, in2, in3}, "", ModeDefault)
	if len(items) != 2 {
		t.Errorf("fingerprint dedup admitted %d, want 2", len(items))
	}
}

func TestSimplifyHeadGapTail(t *testing.T) {
	a := testAssembler(t, 100000)
	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, "line body content")
	}
	long := strings.Join(lines, "\n")

	out, _ := a.Assemble([]Input{{
		Symbol: symbols.Symbol{
			ID:       "nonroot-1",
			FilePath: "src/x.ts",
			Kind:     symbols.KindFunction,
			Name:     "big",
			Text:     long,
		},
		Role: RoleExpanded,
	}}, "", ModeDefault)

	if !strings.Contains(out, "lines omitted") {
		t.Error("long non-root body not simplified")
	}
}

func TestFullModeSkipsSimplification(t *testing.T) {
	a := testAssembler(t, 1000000)
	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, "line body content")
	}
	long := strings.Join(lines, "\n")

	out, _ := a.Assemble([]Input{{
		Symbol: symbols.Symbol{ID: "x", FilePath: "src/x.ts", Kind: symbols.KindFunction, Name: "big", Text: long},
		Role:   RoleExpanded,
	}}, "", ModeFull)

	if strings.Contains(out, "lines omitted") {
		t.Error("full mode should not simplify")
	}
}

func TestQueryAwareTruncationKeepsMatchingLines(t *testing.T) {
	a := testAssembler(t, 100000)
	var lines []string
	for i := 0; i < 250; i++ {
		if i == 200 {
			lines = append(lines, "const magicNeedle = findTreasure()")
		} else {
			lines = append(lines, "filler line")
		}
	}
	long := strings.Join(lines, "\n")
	input := Input{
		Symbol: symbols.Symbol{ID: "q", FilePath: "src/q.ts", Kind: symbols.KindFunction, Name: "q", Text: long},
		Role:   RoleExpanded,
	}

	with, _ := a.Assemble([]Input{input}, "magicneedle treasure", ModeDefault)
	if !strings.Contains(with, "magicNeedle") {
		t.Error("query-aware truncation dropped the matching line")
	}

	without, _ := a.Assemble([]Input{input}, "", ModeDefault)
	if strings.Contains(without, "magicNeedle") {
		t.Error("line at position 200 should be omitted without a query")
	}
}

func TestDocstringPrependedForRoots(t *testing.T) {
	a := testAssembler(t, 10000)
	in := rootInput("alpha", "function alpha() {}")
	in.Symbol.Docstring = "// alpha greets the caller"
	out, _ := a.Assemble([]Input{in}, "", ModeDefault)
	if !strings.Contains(out, "alpha greets the caller") {
		t.Error("root docstring not prepended")
	}
}

func TestRoleSections(t *testing.T) {
	a := testAssembler(t, 100000)
	root := rootInput("rootfn", "function rootfn() {}")
	extra := Input{
		Symbol: symbols.Symbol{ID: "e", FilePath: "src/e.ts", Kind: symbols.KindFunction, Name: "extrafn", Text: "function extrafn() {}"},
		Role:   RoleExtra,
	}
	exp := Input{
		Symbol: symbols.Symbol{ID: "x", FilePath: "src/x.ts", Kind: symbols.KindFunction, Name: "expfn", Text: "function expfn() {}"},
		Role:   RoleExpanded,
	}

	out, items := a.Assemble([]Input{root, extra, exp}, "", ModeDefault)
	for _, section := range []string{"## Definitions", "## Examples", "## Related"} {
		if !strings.Contains(out, section) {
			t.Errorf("missing section %s", section)
		}
	}
	roles := map[Role]bool{}
	for _, it := range items {
		roles[it.Role] = true
	}
	if !roles[RoleRoot] || !roles[RoleExtra] || !roles[RoleExpanded] {
		t.Errorf("roles missing from items: %+v", roles)
	}
}

func TestTruncateToFitRuneBoundary(t *testing.T) {
	c := NewCounter("bogus")
	s := strings.Repeat("héllo wörld ", 100)
	cut, truncated := c.TruncateToFit(s, 10)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if c.Count(cut) > 10 {
		t.Errorf("cut counts %d tokens", c.Count(cut))
	}
	// The cut must be valid UTF-8 on its boundary.
	for _, r := range cut {
		if r == 0xFFFD {
			t.Fatal("invalid rune after truncation")
		}
	}
}
