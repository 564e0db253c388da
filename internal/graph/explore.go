package graph

import (
	"fmt"
	"sort"

	"github.com/cimcp/cimcp/internal/store"
	"github.com/cimcp/cimcp/internal/symbols"
)

// Direction selects which way a traversal walks the edge table.
type Direction string

const (
	DirectionUpstream      Direction = "upstream"   // who depends on the symbol
	DirectionDownstream    Direction = "downstream" // what the symbol depends on
	DirectionBidirectional Direction = "bidirectional"
)

// ParseDirection validates a caller-supplied direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUpstream, DirectionDownstream, DirectionBidirectional:
		return Direction(s), nil
	case "":
		return DirectionBidirectional, nil
	}
	return "", fmt.Errorf("invalid direction %q (want upstream, downstream, or bidirectional)", s)
}

// Node is one symbol in a traversal result.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine"`
	Depth     int    `json:"depth"`
}

// Edge is one relation in a traversal result, with rendered evidence
// sites.
type Edge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Type     string   `json:"type"`
	Evidence []string `json:"evidence,omitempty"`
}

// Result is the nodes+edges payload shared by the traversal operations.
type Result struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// traversal parameterizes the BFS: which edge types to follow and in
// which direction.
type traversal struct {
	st           *store.Store
	types        []symbols.EdgeType
	direction    Direction
	withEvidence bool
}

// walk runs a breadth-first traversal from the root ids.
func (t *traversal) walk(rootIDs []string, depth, limit int) (*Result, error) {
	if depth <= 0 {
		depth = 1
	}
	if limit <= 0 {
		limit = 50
	}

	res := &Result{}
	visited := map[string]int{}
	frontier := rootIDs
	for _, id := range rootIDs {
		visited[id] = 0
	}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			if len(res.Edges) >= limit {
				break
			}
			var edges []symbols.Edge
			if t.direction == DirectionDownstream || t.direction == DirectionBidirectional {
				out, err := t.st.OutgoingEdges(id, t.types, limit)
				if err != nil {
					return nil, err
				}
				edges = append(edges, out...)
			}
			if t.direction == DirectionUpstream || t.direction == DirectionBidirectional {
				in, err := t.st.IncomingEdges(id, t.types, limit)
				if err != nil {
					return nil, err
				}
				edges = append(edges, in...)
			}
			for _, e := range edges {
				if len(res.Edges) >= limit {
					break
				}
				res.Edges = append(res.Edges, t.renderEdge(e))
				for _, endpoint := range []string{e.FromID, e.ToID} {
					if _, ok := visited[endpoint]; !ok {
						visited[endpoint] = d + 1
						next = append(next, endpoint)
					}
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	syms, err := t.st.SymbolsByIDs(ids)
	if err != nil {
		return nil, err
	}
	for _, s := range syms {
		res.Nodes = append(res.Nodes, Node{
			ID:        s.ID,
			Name:      s.Name,
			Kind:      string(s.Kind),
			FilePath:  s.FilePath,
			StartLine: s.StartLine,
			Depth:     visited[s.ID],
		})
	}
	dedupeEdges(res)
	return res, nil
}

func (t *traversal) renderEdge(e symbols.Edge) Edge {
	edge := Edge{From: e.FromID, To: e.ToID, Type: string(e.Type)}
	if t.withEvidence {
		evs, err := t.st.EvidenceFor(e.FromID, e.ToID, e.Type)
		if err == nil {
			for _, ev := range evs {
				edge.Evidence = append(edge.Evidence, fmt.Sprintf("evidence: %s:%d (x%d)", ev.AtFile, ev.AtLine, ev.Count))
			}
		}
	}
	return edge
}

func dedupeEdges(res *Result) {
	seen := map[string]bool{}
	var out []Edge
	for _, e := range res.Edges {
		key := e.From + "\x00" + e.To + "\x00" + e.Type
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	res.Edges = out
}

// rootIDsByName resolves a symbol name to ids for traversal roots.
func rootIDsByName(st *store.Store, name string) ([]string, error) {
	syms, err := st.SymbolsByName(name, "")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(syms))
	for _, s := range syms {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// CallHierarchy walks call edges from a named symbol. direction
// "upstream" lists callers, "downstream" callees.
func CallHierarchy(st *store.Store, name string, direction Direction, depth, limit int) (*Result, error) {
	roots, err := rootIDsByName(st, name)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	t := &traversal{st: st, types: []symbols.EdgeType{symbols.EdgeCall}, direction: direction}
	return t.walk(roots, depth, limit)
}

// TypeGraph walks type relations (extends, implements, alias, type) in
// both directions.
func TypeGraph(st *store.Store, name string, depth, limit int) (*Result, error) {
	roots, err := rootIDsByName(st, name)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	t := &traversal{
		st: st,
		types: []symbols.EdgeType{
			symbols.EdgeExtends, symbols.EdgeImplements, symbols.EdgeAlias, symbols.EdgeTypeRel,
		},
		direction: DirectionBidirectional,
	}
	return t.walk(roots, depth, limit)
}

// Explore walks all edge types from a named symbol, rendering evidence
// sites on every edge.
func Explore(st *store.Store, name string, direction Direction, depth, limit int) (*Result, error) {
	roots, err := rootIDsByName(st, name)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	t := &traversal{st: st, direction: direction, withEvidence: true}
	return t.walk(roots, depth, limit)
}

// TraceDataFlow walks dataflow edges: reads and writes, with call and
// reference edges treated as reads.
func TraceDataFlow(st *store.Store, name string, direction Direction, depth, limit int) (*Result, error) {
	roots, err := rootIDsByName(st, name)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	t := &traversal{
		st: st,
		types: []symbols.EdgeType{
			symbols.EdgeReads, symbols.EdgeWrites, symbols.EdgeCall, symbols.EdgeReference,
		},
		direction: direction,
	}
	return t.walk(roots, depth, limit)
}
