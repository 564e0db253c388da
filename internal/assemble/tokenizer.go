// Package assemble builds the token-budgeted context package from ranked
// symbols and their graph neighborhood.
package assemble

import (
	"log"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens with the configured encoding. When the encoding
// cannot be loaded (offline, unknown name) a bytes/4 heuristic keeps the
// budget enforcement working; both paths measure assembled output with the
// same counter they budgeted with.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter loads the named tiktoken encoding, falling back to the
// heuristic on failure.
func NewCounter(encoding string) *Counter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Printf("warning: token encoding %q unavailable, using heuristic: %v", encoding, err)
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the token count of s.
func (c *Counter) Count(s string) int {
	if c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	// Rough average of four bytes per token for code.
	return (len(s) + 3) / 4
}

// TruncateToFit cuts s on a UTF-8 boundary so it counts at most budget
// tokens. Returns the cut string and whether anything was removed.
func (c *Counter) TruncateToFit(s string, budget int) (string, bool) {
	if budget <= 0 {
		return "", s != ""
	}
	if c.Count(s) <= budget {
		return s, false
	}

	// Binary search the largest prefix within budget, then snap to a rune
	// boundary.
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.Count(s[:mid]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return s[:snapToRuneBoundary(s, lo)], true
}

func snapToRuneBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
