// Package retrieval answers semantic queries: normalization and intent
// detection, the hybrid ranker, reciprocal-rank fusion, graph expansion of
// top hits, and the learning boost.
package retrieval

import (
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// maxQueryLen bounds raw queries before any processing.
const maxQueryLen = 512

// decomposeMaxDepth bounds recursive compound-query splitting.
const decomposeMaxDepth = 3

// acronymExpansions are appended after the token they expand.
var acronymExpansions = map[string]string{
	"db":     "database",
	"auth":   "authentication",
	"nav":    "navigation",
	"config": "configuration",
}

// expansionStopwords are kept verbatim and never expanded or stemmed.
var expansionStopwords = map[string]bool{"and": true, "or": true, "not": true}

// Normalize lowercases the query, splits identifier-style tokens on
// camel-case and digit boundaries, appends acronym expansions, and appends
// stems for alphabetic tokens of five or more characters. Normalization is
// idempotent: normalizing an already-normalized query changes nothing
// beyond duplicate tokens, which join identically.
func Normalize(query string) string {
	query = TrimQuery(query, maxQueryLen)
	var parts []string
	seen := map[string]bool{}
	add := func(tok string) {
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		parts = append(parts, tok)
	}

	for _, raw := range strings.Fields(query) {
		for _, tok := range splitIdentifier(raw) {
			lower := strings.ToLower(tok)
			add(lower)
			if expansionStopwords[lower] {
				continue
			}
			if exp, ok := acronymExpansions[lower]; ok {
				add(exp)
				// Expansions take the same stemming path as ordinary
				// tokens; otherwise renormalizing would add the stem on
				// the second pass and break idempotence.
				if len(exp) >= 5 && isAlphabetic(exp) {
					if stem := fixedPointStem(exp); stem != exp {
						add(stem)
					}
				}
			}
			if len(lower) >= 5 && isAlphabetic(lower) {
				if stem := fixedPointStem(lower); stem != lower {
					add(stem)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// splitIdentifier splits a token on camel-case, digit, and punctuation
// boundaries: "DBConnection" -> [DB, Connection], "HTTP2Server_v1" ->
// [HTTP, 2, Server, v, 1].
func splitIdentifier(s string) []string {
	var tokens []string
	var cur []rune
	var curClass int // 0 none, 1 lower, 2 upper, 3 digit

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			if curClass == 3 {
				flush()
			}
			if curClass == 2 && len(cur) > 1 {
				last := cur[len(cur)-1]
				cur = cur[:len(cur)-1]
				flush()
				cur = append(cur, last)
			}
			cur = append(cur, r)
			curClass = 1
		case unicode.IsUpper(r):
			if curClass != 2 {
				flush()
			}
			cur = append(cur, r)
			curClass = 2
		case unicode.IsDigit(r):
			if curClass != 3 {
				flush()
			}
			cur = append(cur, r)
			curClass = 3
		default:
			flush()
			curClass = 0
		}
	}
	flush()
	return tokens
}

// fixedPointStem stems until the output stops changing, which keeps
// Normalize idempotent: a stem added once never produces a further token
// on renormalization.
func fixedPointStem(s string) string {
	for i := 0; i < 4; i++ {
		next := porter2.Stem(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return len(s) > 0
}

// TrimQuery trims whitespace and caps the query length on a byte boundary.
func TrimQuery(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// Controls are the scoped key:value filters stripped from a query before
// search.
type Controls struct {
	ID   string
	File string
	Path string
	Lang string
	Kind string
}

// ParseControls strips id:, file:, path:, lang:, and kind: tokens from the
// query, returning the remaining text and the parsed filters.
func ParseControls(query string) (string, Controls) {
	var controls Controls
	var kept []string
	for _, token := range strings.Fields(query) {
		k, v, found := strings.Cut(token, ":")
		if !found {
			kept = append(kept, token)
			continue
		}
		value := strings.Trim(strings.TrimSpace(v), `"'`)
		if value == "" {
			kept = append(kept, token)
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "id":
			controls.ID = value
		case "file":
			controls.File = value
		case "path":
			controls.Path = value
		case "lang", "language":
			controls.Lang = normalizeLang(value)
		case "kind":
			controls.Kind = value
		default:
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " "), controls
}

func normalizeLang(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ts", "tsx", "typescript":
		return "typescript"
	case "js", "jsx", "javascript":
		return "javascript"
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}

// Decompose splits compound queries on " and " or " & " recursively, depth
// limited. A query with no separators comes back unchanged.
func Decompose(query string, maxDepth int) []string {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	if maxDepth <= 0 {
		return []string{q}
	}

	parts := splitOn(q, " and ")
	if len(parts) <= 1 {
		parts = splitOn(q, " & ")
	}
	if len(parts) <= 1 {
		return []string{q}
	}

	var out []string
	for _, p := range parts {
		out = append(out, Decompose(p, maxDepth-1)...)
	}
	return out
}

func splitOn(q, sep string) []string {
	lower := strings.ToLower(q)
	var parts []string
	last := 0
	for {
		idx := strings.Index(lower[last:], sep)
		if idx < 0 {
			break
		}
		abs := last + idx
		if part := strings.TrimSpace(q[last:abs]); part != "" {
			parts = append(parts, part)
		}
		last = abs + len(sep)
	}
	if last < len(q) {
		if part := strings.TrimSpace(q[last:]); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

var strongCodeIndicators = []string{
	"()", "{}", "[]", "=>", "->", "::",
	"fn ", "let ", "const ", "import ", "export ", "async ", "await ",
	"pub ", "struct ", "impl ", "class ", "def ", "func ",
}

var weakCodeIndicators = []string{".", ";", "=", "<", ">", "(", ")", "{", "}"}

// ContainsCodeSnippet reports whether the raw query looks like code rather
// than natural language; callers use it to pick an embedding prompt.
func ContainsCodeSnippet(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	for _, ind := range strongCodeIndicators {
		if strings.Contains(q, ind) {
			return true
		}
	}
	weak := 0
	for _, ind := range weakCodeIndicators {
		if strings.Contains(q, ind) {
			weak++
		}
	}
	if weak >= 3 {
		return true
	}
	if !strings.ContainsAny(q, " \t\n") {
		if strings.Contains(q, "_") {
			return true
		}
		hasLower := strings.IndexFunc(q, unicode.IsLower) >= 0
		hasUpper := strings.IndexFunc(q, unicode.IsUpper) >= 0
		if hasLower && hasUpper {
			return true
		}
	}
	return false
}
