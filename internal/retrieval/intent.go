package retrieval

import "strings"

// IntentKind is the coarse query classification used to adjust scoring.
type IntentKind string

const (
	IntentNone           IntentKind = ""
	IntentTest           IntentKind = "test"
	IntentMigration      IntentKind = "migration"
	IntentSchema         IntentKind = "schema"
	IntentImplementation IntentKind = "implementation"
	IntentConfig         IntentKind = "config"
	IntentError          IntentKind = "error"
	IntentAPI            IntentKind = "api"
	IntentHook           IntentKind = "hook"
	IntentMiddleware     IntentKind = "middleware"
	IntentDefinition     IntentKind = "definition"
	IntentCallers        IntentKind = "callers"
)

// Intent is a detected classification; Target is only set for Callers.
type Intent struct {
	Kind   IntentKind
	Target string
}

// navigation reports whether the intent gets the stronger same-package boost.
func (i Intent) navigation() bool {
	switch i.Kind {
	case IntentDefinition, IntentImplementation, IntentCallers:
		return true
	}
	return false
}

var callersPrefixes = []string{"who calls ", "callers of ", "references to ", "usages of "}

// DetectIntent classifies a raw query. Checks are ordered; the first match
// wins. Migration intentionally precedes Schema so "database migration"
// classifies as Migration.
func DetectIntent(query string) Intent {
	q := strings.ToLower(strings.TrimSpace(query))

	hasWord := func(w string) bool {
		for _, f := range strings.Fields(q) {
			if f == w {
				return true
			}
		}
		return false
	}

	switch {
	case strings.Contains(q, "test") || strings.Contains(q, "spec") || strings.Contains(q, "verify"):
		return Intent{Kind: IntentTest}
	case strings.Contains(q, "migration") || strings.Contains(q, "migrate") || strings.Contains(q, "schema change"):
		return Intent{Kind: IntentMigration}
	case strings.Contains(q, "schema") || strings.Contains(q, "model") ||
		strings.Contains(q, "db table") || strings.Contains(q, "database") ||
		strings.Contains(q, "entity") || hasWord("db"):
		return Intent{Kind: IntentSchema}
	case strings.Contains(q, "implementation") || strings.Contains(q, "how is") ||
		strings.Contains(q, "how does") || strings.HasPrefix(q, "implement"):
		return Intent{Kind: IntentImplementation}
	case strings.Contains(q, "configuration") || strings.Contains(q, "settings") ||
		strings.Contains(q, "environment") || hasWord("config") || hasWord("env"):
		return Intent{Kind: IntentConfig}
	case strings.Contains(q, "error handling") || strings.Contains(q, "exception") ||
		strings.Contains(q, "error") || strings.Contains(q, "catch") || strings.Contains(q, "throw"):
		return Intent{Kind: IntentError}
	case strings.Contains(q, "endpoint") || strings.Contains(q, "route") ||
		strings.Contains(q, "handler") || hasWord("api"):
		return Intent{Kind: IntentAPI}
	case strings.Contains(q, "useeffect") || strings.Contains(q, "usestate") ||
		strings.Contains(q, "usememo") || strings.Contains(q, "hook") || strings.Contains(q, "lifecycle"):
		return Intent{Kind: IntentHook}
	case strings.Contains(q, "middleware") || strings.Contains(q, "interceptor"):
		return Intent{Kind: IntentMiddleware}
	case strings.Contains(q, "class") || strings.Contains(q, "interface") ||
		strings.Contains(q, "struct") || strings.Contains(q, "type") || strings.Contains(q, "def"):
		return Intent{Kind: IntentDefinition}
	}

	for _, prefix := range callersPrefixes {
		if rest, ok := strings.CutPrefix(q, prefix); ok {
			return Intent{Kind: IntentCallers, Target: strings.TrimSpace(rest)}
		}
	}
	if rest, ok := strings.CutPrefix(q, "where is "); ok {
		if target, ok := strings.CutSuffix(rest, " used"); ok {
			return Intent{Kind: IntentCallers, Target: strings.TrimSpace(target)}
		}
	}

	return Intent{Kind: IntentNone}
}
