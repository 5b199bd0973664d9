// Package graph implements the block graph (C4): a validated, immutable DAG
// of block definitions (nodes) and allowed transitions (edges), loaded from
// a declarative YAML document.
package graph

import (
	"sort"

	"patterngraph/internal/expr"
)

// EdgeType enumerates the three transition kinds from spec section 3.
type EdgeType string

const (
	Sequential  EdgeType = "sequential"
	Conditional EdgeType = "conditional"
	Optional    EdgeType = "optional"
)

// Node is a validated block definition: parsed entry/exit conditions and
// optional parameters, highlight condition, and spot definition.
type Node struct {
	ID                   string
	BlockType            int
	Name                 string
	EntryConditions      []ParsedCondition
	ExitConditions       []ParsedCondition
	Parameters           map[string]interface{}
	HighlightCondition   *HighlightCondition
	SpotEntryConditions  []ParsedCondition
	ForwardSpotCondition expr.Node // nil if not a highlight-capable node
}

// ParsedCondition pairs a parsed expression tree with its declared name
// (for the exit_reason's "exit:{condition_name_or_index}" format) and
// source text (for diagnostics).
type ParsedCondition struct {
	Name       string
	Source     string
	Expression expr.Node
}

// HighlightCondition mirrors the YAML shape once validated.
type HighlightCondition struct {
	Type             string
	Enabled          bool
	Priority         int
	RequiredSpotCount int
	Consecutive      bool
	DayOffsets       []int
}

// Edge is a validated transition between two nodes.
type Edge struct {
	From, To string
	Type     EdgeType
	Guard    expr.Node // nil unless Type == Conditional
	Priority int
}

// Graph is the immutable, validated block DAG. Construct it only via Load.
type Graph struct {
	rootID string
	nodes  map[string]*Node
	// topoOrder is the node order returned by dfs.TopologicalSort at load
	// time, used wherever spec section 4.5 requires "topological index"
	// tie-breaking; Load rejects any document that isn't a DAG, so the sort
	// always succeeds for a constructed Graph.
	topoOrder []string
	topoIndex map[string]int

	// outEdges[nodeID] holds that node's outgoing edges sorted by priority
	// ascending (lower first), per spec section 3's "priorities
	// disambiguate deterministically".
	outEdges map[string][]Edge
}

// RootID returns the graph's designated root node id.
func (g *Graph) RootID() string { return g.rootID }

// Node looks up a validated node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// OutgoingEdges returns id's outgoing edges sorted by ascending priority.
func (g *Graph) OutgoingEdges(id string) []Edge {
	return g.outEdges[id]
}

// TopoOrder returns all node ids in the topological order computed by Load
// (the dfs.TopologicalSort result, not the YAML declaration order).
func (g *Graph) TopoOrder() []string {
	out := make([]string, len(g.topoOrder))
	copy(out, g.topoOrder)
	return out
}

// TopoIndex returns id's position in TopoOrder; the orchestrator uses it to
// order candidate transitions by (target's topological index, edge priority).
func (g *Graph) TopoIndex(id string) int {
	return g.topoIndex[id]
}

// Reachable returns the set of node ids reachable from the root, inclusive
// of the root itself.
func (g *Graph) Reachable() map[string]bool {
	seen := map[string]bool{g.rootID: true}
	queue := []string{g.rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.outEdges[id] {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// sortEdgesByPriority sorts in place by ascending priority, then by To id
// for full determinism when priorities tie.
func sortEdgesByPriority(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Priority != edges[j].Priority {
			return edges[i].Priority < edges[j].Priority
		}
		return edges[i].To < edges[j].To
	})
}
