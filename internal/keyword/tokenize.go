package keyword

import (
	"strings"
	"unicode"
)

// Tokenize splits an identifier or free-text string into lowercase tokens
// on camel-case, digit, and non-alphanumeric boundaries.
// "DBConnection" -> [db, connection]; "HTTP2Server_v1" -> [http, 2, server, v, 1].
func Tokenize(s string) []string {
	var tokens []string
	var cur []rune
	var curClass int // 0 none, 1 lower, 2 upper, 3 digit

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsLower(r):
			if curClass == 3 {
				flush()
			}
			// Upper run followed by lower starts a new word at the last upper:
			// "HTTPServer" -> HTTP + Server.
			if curClass == 2 && len(cur) > 1 {
				last := cur[len(cur)-1]
				cur = cur[:len(cur)-1]
				flush()
				cur = append(cur, last)
			}
			cur = append(cur, r)
			curClass = 1
		case unicode.IsUpper(r):
			if curClass == 1 || curClass == 3 {
				flush()
			}
			cur = append(cur, r)
			curClass = 2
		case unicode.IsDigit(r):
			if curClass == 1 || curClass == 2 {
				flush()
			}
			cur = append(cur, r)
			curClass = 3
		default:
			flush()
			curClass = 0
		}
		_ = i
	}
	flush()
	return tokens
}

// TokenizeJoined returns the tokens joined by single spaces, the form the
// index stores in its token fields.
func TokenizeJoined(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// NGrams emits character n-grams of length 3 to 5 over each token of s,
// the fallback field for short partial queries.
func NGrams(s string) string {
	var grams []string
	seen := map[string]bool{}
	for _, tok := range Tokenize(s) {
		runes := []rune(tok)
		for n := 3; n <= 5; n++ {
			if len(runes) < n {
				continue
			}
			for i := 0; i+n <= len(runes); i++ {
				g := string(runes[i : i+n])
				if !seen[g] {
					seen[g] = true
					grams = append(grams, g)
				}
			}
		}
	}
	return strings.Join(grams, " ")
}
