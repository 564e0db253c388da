package assemble

import (
	"fmt"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cimcp/cimcp/internal/config"
	"github.com/cimcp/cimcp/internal/symbols"
)

// Role decides which section a symbol lands in and which budget cap
// applies.
type Role string

const (
	RoleRoot     Role = "root"
	RoleExtra    Role = "extra"
	RoleExpanded Role = "expanded"
)

// Mode selects between simplified and full bodies.
type Mode string

const (
	ModeDefault Mode = "default"
	ModeFull    Mode = "full"
)

// Budget shares per role.
const (
	rootShare  = 0.70
	extraShare = 0.20
)

// Simplification thresholds (lines).
const (
	fileRootSimplifyAt = 1000
	rootSimplifyAt     = 500
	nonRootSimplifyAt  = 100

	fileHeadLines = 50
	headLines     = 15
	tailLines     = 5
)

// Cluster caps per role class.
const (
	rootsPerCluster    = 2
	nonRootsPerCluster = 1
)

// ContextItem describes one assembled section.
type ContextItem struct {
	ID        string   `json:"id"`
	FilePath  string   `json:"filePath"`
	StartLine int      `json:"startLine"`
	EndLine   int      `json:"endLine"`
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Role      Role     `json:"role"`
	Reasons   []string `json:"reasons,omitempty"`
	Truncated bool     `json:"truncated"`
	Tokens    int      `json:"tokens"`
}

// Input is one symbol routed to a role, with optional display reasons.
type Input struct {
	Symbol     symbols.Symbol
	Role       Role
	ClusterKey string
	Reasons    []string
}

// Assembler renders token-budgeted context strings.
type Assembler struct {
	cfg     *config.Config
	counter *Counter
}

// New creates an Assembler with the configured tokenizer.
func New(cfg *config.Config) *Assembler {
	return &Assembler{cfg: cfg, counter: NewCounter(cfg.TokenEncoding)}
}

// Counter exposes the tokenizer for tests and telemetry.
func (a *Assembler) Counter() *Counter { return a.counter }

// sectionTitles maps each role to its output section header.
var sectionTitles = map[Role]string{
	RoleRoot:     "## Definitions\n\n",
	RoleExtra:    "## Examples\n\n",
	RoleExpanded: "## Related\n\n",
}

// Assemble renders the inputs into the Definitions / Examples / Related
// sections under the global and per-role token budgets. The inputs must
// already be ordered roots, extras, expanded.
func (a *Assembler) Assemble(inputs []Input, query string, mode Mode) (string, []ContextItem) {
	maxTokens := a.cfg.MaxContextTokens
	rootCap := int(rootShare * float64(maxTokens))
	extraCap := int(extraShare * float64(maxTokens))
	expandedCap := maxTokens - rootCap - extraCap

	// The section headers land in the returned string, so their cost is
	// charged up front; the item loop spends what remains.
	headerReserve := a.counter.Count(
		sectionTitles[RoleRoot] + sectionTitles[RoleExtra] + sectionTitles[RoleExpanded])
	budget := maxTokens - headerReserve
	if budget < 0 {
		budget = 0
	}

	capFor := map[Role]int{
		RoleRoot:     rootCap,
		RoleExtra:    extraCap,
		RoleExpanded: expandedCap,
	}
	usedFor := map[Role]int{}
	acceptedFor := map[Role]int{}
	clusterCount := map[string]int{}
	seen := map[string]bool{}
	queryTokens := truncationTokens(query)

	sections := map[Role]*strings.Builder{
		RoleRoot:     {},
		RoleExtra:    {},
		RoleExpanded: {},
	}
	var items []ContextItem
	usedTotal := 0

	for _, in := range inputs {
		sym := in.Symbol
		if seen[sym.ID] {
			continue
		}
		seen[sym.ID] = true

		body := a.readBody(sym)
		body = a.simplify(body, sym, in.Role, mode, queryTokens)

		if in.Role == RoleRoot && sym.Docstring != "" {
			body = formatDocstring(sym.Docstring) + body
		}

		// Cluster deduplication. Symbols without a key fingerprint on the
		// simplified body, with the same caps.
		clusterKey := in.ClusterKey
		if clusterKey == "" {
			clusterKey = bodyFingerprint(body)
		}
		clusterCap := nonRootsPerCluster
		if in.Role == RoleRoot {
			clusterCap = rootsPerCluster
		}
		if clusterCount[clusterKey] >= clusterCap {
			continue
		}

		section := fmt.Sprintf("=== %s:%d-%d (%s %s) id=%s ===\n%s\n\n",
			sym.FilePath, sym.StartLine, sym.EndLine, sym.Kind, sym.Name, sym.ID, body)
		tokens := a.counter.Count(section)

		// Role cap: a role that already holds an item skips anything that
		// would overflow its share.
		roleCap := capFor[in.Role]
		if acceptedFor[in.Role] >= 1 && usedFor[in.Role]+tokens > roleCap {
			continue
		}

		truncated := false
		if usedTotal+tokens > budget {
			remaining := budget - usedTotal
			cut, didCut := a.counter.TruncateToFit(section, remaining)
			if cut == "" {
				break
			}
			section = cut
			tokens = a.counter.Count(section)
			truncated = didCut
		}

		sections[in.Role].WriteString(section)
		usedTotal += tokens
		usedFor[in.Role] += tokens
		acceptedFor[in.Role]++
		clusterCount[clusterKey]++

		reasons := in.Reasons
		if truncated {
			reasons = append(append([]string{}, reasons...), "truncated")
		}
		items = append(items, ContextItem{
			ID:        sym.ID,
			FilePath:  sym.FilePath,
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
			Kind:      string(sym.Kind),
			Name:      sym.Name,
			Role:      in.Role,
			Reasons:   reasons,
			Truncated: truncated,
			Tokens:    tokens,
		})
		if truncated {
			break
		}
	}

	var out strings.Builder
	writeSection := func(role Role) {
		content := sections[role].String()
		if content == "" {
			return
		}
		out.WriteString(sectionTitles[role])
		out.WriteString(content)
	}
	writeSection(RoleRoot)
	writeSection(RoleExtra)
	writeSection(RoleExpanded)

	return out.String(), items
}

// readBody reads the byte span from disk under base_dir, falling back to
// the stored text when the file changed or vanished.
func (a *Assembler) readBody(sym symbols.Symbol) string {
	path := a.cfg.JoinBase(sym.FilePath)
	data, err := os.ReadFile(path)
	if err == nil && sym.StartByte >= 0 && sym.EndByte <= len(data) && sym.StartByte < sym.EndByte {
		return string(data[sym.StartByte:sym.EndByte])
	}
	return sym.Text
}

// simplify produces the head / gap / tail view for oversized bodies in
// default mode. A supplied query extends the kept head with matching
// lines.
func (a *Assembler) simplify(body string, sym symbols.Symbol, role Role, mode Mode, queryTokens []string) string {
	if mode == ModeFull {
		return body
	}
	lines := strings.Split(body, "\n")

	threshold := nonRootSimplifyAt
	head := headLines
	if role == RoleRoot {
		threshold = rootSimplifyAt
		if sym.Kind == symbols.KindFile {
			threshold = fileRootSimplifyAt
			head = fileHeadLines
		}
	}
	if len(lines) <= threshold {
		return body
	}

	kept := append([]string{}, lines[:head]...)

	// Query-aware truncation: pull in lines mentioning a query token that
	// the head missed.
	if len(queryTokens) > 0 {
		budget := head / 3
		for _, line := range lines[head : len(lines)-tailLines] {
			if budget == 0 {
				break
			}
			lower := strings.ToLower(line)
			for _, tok := range queryTokens {
				if strings.Contains(lower, tok) {
					kept = append(kept, line)
					budget--
					break
				}
			}
		}
	}

	omitted := len(lines) - len(kept) - tailLines
	kept = append(kept, fmt.Sprintf("... (%d lines omitted) ...", omitted))
	kept = append(kept, lines[len(lines)-tailLines:]...)
	return strings.Join(kept, "\n")
}

func formatDocstring(doc string) string {
	return strings.TrimSpace(doc) + "\n"
}

// bodyFingerprint hashes the lowercased body for cluster dedup of
// keyless symbols.
func bodyFingerprint(body string) string {
	return fmt.Sprintf("body-%016x", xxhash.Sum64String(strings.ToLower(body)))
}

// truncationStopwords never count as query-aware keep signals.
var truncationStopwords = map[string]bool{
	"and": true, "or": true, "not": true, "the": true, "a": true, "an": true,
	"of": true, "in": true, "to": true, "for": true, "is": true, "how": true,
}

func truncationTokens(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if len(tok) < 3 || truncationStopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
