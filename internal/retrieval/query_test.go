package retrieval

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeExpandsAcronymsAndSplitsCamelCase(t *testing.T) {
	out := Normalize("DBConnection auth")
	for _, want := range []string{"db", "connection", "database", "auth", "authentication"} {
		if !strings.Contains(" "+out+" ", " "+want+" ") {
			t.Errorf("normalized %q missing token %q", out, want)
		}
	}
}

func TestNormalizeSplitsDigitBoundaries(t *testing.T) {
	out := Normalize("HTTP2Server_v1")
	for _, want := range []string{"http", "2", "server", "v", "1"} {
		if !strings.Contains(" "+out+" ", " "+want+" ") {
			t.Errorf("normalized %q missing token %q", out, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, q := range []string{
		"DBConnection auth",
		"database migration handling",
		"who calls parseQuery",
		"implementing authentication services",
	} {
		once := Normalize(q)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("normalize not idempotent for %q:\n once: %q\ntwice: %q", q, once, twice)
		}
	}
}

func TestNormalizeKeepsExpansionStopwords(t *testing.T) {
	out := Normalize("auth and nav")
	if !strings.Contains(" "+out+" ", " and ") {
		t.Errorf("stopword 'and' dropped from %q", out)
	}
}

func TestParseControls(t *testing.T) {
	rest, controls := ParseControls(`alpha file:src/a.ts lang:ts kind:function`)
	if rest != "alpha" {
		t.Errorf("rest = %q", rest)
	}
	if controls.File != "src/a.ts" {
		t.Errorf("file = %q", controls.File)
	}
	if controls.Lang != "typescript" {
		t.Errorf("lang = %q, want typescript", controls.Lang)
	}
	if controls.Kind != "function" {
		t.Errorf("kind = %q", controls.Kind)
	}
}

func TestParseControlsLangAliases(t *testing.T) {
	for _, alias := range []string{"ts", "tsx", "typescript"} {
		_, c := ParseControls("x lang:" + alias)
		if c.Lang != "typescript" {
			t.Errorf("lang:%s -> %q", alias, c.Lang)
		}
	}
	_, c := ParseControls("x lang:jsx")
	if c.Lang != "javascript" {
		t.Errorf("lang:jsx -> %q", c.Lang)
	}
}

func TestDecompose(t *testing.T) {
	cases := map[string][]string{
		"auth and db":    {"auth", "db"},
		"auth & db":      {"auth", "db"},
		"plain query":    {"plain query"},
		"a and b and c":  {"a", "b", "c"},
		"alpha AND beta": {"alpha", "beta"},
	}
	for in, want := range cases {
		if got := Decompose(in, decomposeMaxDepth); !reflect.DeepEqual(got, want) {
			t.Errorf("Decompose(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDecomposeDepthLimit(t *testing.T) {
	got := Decompose("a and b and c and d and e", 1)
	// One level of splitting only; the parts come back unsplit.
	if len(got) < 2 {
		t.Errorf("depth-1 decompose = %v", got)
	}
}

func TestContainsCodeSnippet(t *testing.T) {
	code := []string{
		"fn main() {}",
		"const x = 1;",
		"foo()",
		"a->b",
		"Vec::new",
		"parseQuery",
		"snake_case_name",
	}
	for _, q := range code {
		if !ContainsCodeSnippet(q) {
			t.Errorf("%q should detect as code", q)
		}
	}
	natural := []string{
		"find the authentication handler",
		"how does indexing work",
		"database",
	}
	for _, q := range natural {
		if ContainsCodeSnippet(q) {
			t.Errorf("%q should not detect as code", q)
		}
	}
}

func TestDetectIntentOrdering(t *testing.T) {
	// Migration must win over Schema.
	if got := DetectIntent("database migration"); got.Kind != IntentMigration {
		t.Errorf("database migration -> %s, want migration", got.Kind)
	}
	if got := DetectIntent("user schema"); got.Kind != IntentSchema {
		t.Errorf("user schema -> %s", got.Kind)
	}
	// Test wins over everything.
	if got := DetectIntent("test the schema"); got.Kind != IntentTest {
		t.Errorf("test the schema -> %s", got.Kind)
	}
}

func TestDetectIntentCallers(t *testing.T) {
	cases := map[string]string{
		"who calls alpha":       "alpha",
		"callers of beta":       "beta",
		"references to gamma":   "gamma",
		"usages of delta":       "delta",
		"where is epsilon used": "epsilon",
	}
	for q, target := range cases {
		got := DetectIntent(q)
		if got.Kind != IntentCallers || got.Target != target {
			t.Errorf("%q -> %s/%q, want callers/%q", q, got.Kind, got.Target, target)
		}
	}
}

func TestDetectIntentVariants(t *testing.T) {
	cases := map[string]IntentKind{
		"verify the parser":        IntentTest,
		"error handling in worker": IntentError,
		"api endpoint for users":   IntentAPI,
		"useEffect cleanup":        IntentHook,
		"request middleware":       IntentMiddleware,
		"struct definition":        IntentDefinition,
		"how is ranking done":      IntentImplementation,
		"environment settings":     IntentConfig,
		"random words":             IntentNone,
	}
	for q, want := range cases {
		if got := DetectIntent(q); got.Kind != want {
			t.Errorf("%q -> %s, want %s", q, got.Kind, want)
		}
	}
}
