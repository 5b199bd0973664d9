package graph

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/dfs"
	"gopkg.in/yaml.v3"

	"patterngraph/internal/expr"
	"patterngraph/internal/funcs"
)

// Load parses, validates, and compiles a declarative block-graph document
// into an immutable Graph. registry is sealed once Load returns, whether it
// succeeds or fails — consumer function registrations (funcs.Registry.
// Register) must happen before calling Load.
//
// Every defect described in spec section 4.3 ("Validation performed at
// load") is checked here: unique ids, root existence, edge endpoint
// existence, expression parseability, reachability from root, acyclicity,
// and per-source edge priority ordering. Any failure returns a
// *GraphInvalid and no Graph.
func Load(data []byte, registry *funcs.Registry) (*Graph, error) {
	defer registry.Seal()

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalid("malformed YAML document: %v", err)
	}
	body := doc.BlockGraph
	if body.RootNode == "" {
		return nil, invalid("block_graph.root_node is required")
	}
	if len(body.Nodes) == 0 {
		return nil, invalid("block_graph.nodes must be non-empty")
	}
	if _, ok := body.Nodes[body.RootNode]; !ok {
		return nil, invalid("root_node %q does not name a declared node", body.RootNode)
	}

	nodes := make(map[string]*Node, len(body.Nodes))
	nodeOrder := make([]string, 0, len(body.Nodes))
	for id, raw := range body.Nodes {
		if raw.BlockID != "" && raw.BlockID != id {
			return nil, invalid("node %q: block_id %q must equal its map key", id, raw.BlockID)
		}
		if raw.BlockType < 1 {
			return nil, invalid("node %q: block_type must be >= 1", id)
		}
		entry, err := parseConditions(id, "entry_conditions", raw.EntryConditions)
		if err != nil {
			return nil, err
		}
		exit, err := parseConditions(id, "exit_conditions", raw.ExitConditions)
		if err != nil {
			return nil, err
		}
		spot, err := parseConditions(id, "spot_entry_conditions", raw.SpotEntryConditions)
		if err != nil {
			return nil, err
		}
		var forwardSpot expr.Node
		if raw.ForwardSpotCondition != "" {
			forwardSpot, err = expr.Parse(raw.ForwardSpotCondition)
			if err != nil {
				return nil, invalid("node %q: forward_spot_condition: %v", id, err)
			}
		}
		hc, err := parseHighlight(id, raw.HighlightCondition)
		if err != nil {
			return nil, err
		}
		nodes[id] = &Node{
			ID:                    id,
			BlockType:             raw.BlockType,
			Name:                  raw.Name,
			EntryConditions:       entry,
			ExitConditions:        exit,
			Parameters:            raw.Parameters,
			HighlightCondition:    hc,
			SpotEntryConditions:   spot,
			ForwardSpotCondition:  forwardSpot,
		}
		nodeOrder = append(nodeOrder, id)
	}

	cg := core.NewGraph(core.WithDirected(true))
	for id := range nodes {
		if err := cg.AddVertex(id); err != nil {
			return nil, invalid("node %q: %v", id, err)
		}
	}

	outEdges := make(map[string][]Edge, len(nodes))
	seenEdge := make(map[[2]string]bool)
	for i, re := range body.Edges {
		if _, ok := nodes[re.From]; !ok {
			return nil, invalid("edge[%d]: unknown from_block %q", i, re.From)
		}
		if _, ok := nodes[re.To]; !ok {
			return nil, invalid("edge[%d]: unknown to_block %q", i, re.To)
		}
		key := [2]string{re.From, re.To}
		if seenEdge[key] {
			return nil, invalid("edge[%d]: duplicate edge %s -> %s", i, re.From, re.To)
		}
		seenEdge[key] = true

		etype := EdgeType(re.EdgeType)
		if etype == "" {
			etype = Sequential
		}
		switch etype {
		case Sequential, Conditional, Optional:
		default:
			return nil, invalid("edge[%d]: unknown edge_type %q", i, re.EdgeType)
		}
		var guard expr.Node
		if etype == Conditional {
			if re.Condition == "" {
				return nil, invalid("edge[%d]: conditional edge %s -> %s requires a condition", i, re.From, re.To)
			}
			g, err := expr.Parse(re.Condition)
			if err != nil {
				return nil, invalid("edge[%d]: condition: %v", i, err)
			}
			guard = g
		} else if re.Condition != "" {
			g, err := expr.Parse(re.Condition)
			if err != nil {
				return nil, invalid("edge[%d]: condition: %v", i, err)
			}
			guard = g
		}

		if _, err := cg.AddEdge(re.From, re.To, 0); err != nil {
			return nil, invalid("edge[%d] %s -> %s: %v", i, re.From, re.To, err)
		}
		outEdges[re.From] = append(outEdges[re.From], Edge{
			From: re.From, To: re.To, Type: etype, Guard: guard, Priority: re.Priority,
		})
	}
	for id := range outEdges {
		sortEdgesByPriority(outEdges[id])
	}

	order, err := dfs.TopologicalSort(cg)
	if err != nil {
		if errors.Is(err, dfs.ErrCycleDetected) {
			return nil, invalid("block graph contains a cycle")
		}
		return nil, invalid("topological sort failed: %v", err)
	}
	topoIndex := make(map[string]int, len(order))
	for i, id := range order {
		topoIndex[id] = i
	}

	g := &Graph{
		rootID:    body.RootNode,
		nodes:     nodes,
		topoOrder: order,
		topoIndex: topoIndex,
		outEdges:  outEdges,
	}

	reachable := g.Reachable()
	if len(reachable) != len(nodes) {
		for id := range nodes {
			if !reachable[id] {
				return nil, invalid("node %q is unreachable from root %q", id, body.RootNode)
			}
		}
	}

	// Registered functions referenced by name inside expressions are
	// resolved lazily at evaluation time via the registry, so Load does not
	// need to cross-check call names here — an unknown name simply
	// evaluates to Undefined per the expression engine's total-evaluation
	// contract. registry is accepted as a parameter purely to pin down
	// Seal() ordering relative to consumer Register calls.
	_ = nodeOrder

	return g, nil
}

func parseConditions(nodeID, field string, entries []ConditionEntry) ([]ParsedCondition, error) {
	out := make([]ParsedCondition, 0, len(entries))
	for i, e := range entries {
		n, err := expr.Parse(e.Expression)
		if err != nil {
			return nil, invalid("node %q: %s[%d]: %v", nodeID, field, i, err)
		}
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		out = append(out, ParsedCondition{Name: name, Source: e.Expression, Expression: n})
	}
	return out, nil
}

func parseHighlight(nodeID string, raw *rawHighlightCondition) (*HighlightCondition, error) {
	if raw == nil {
		return nil, nil
	}
	hc := &HighlightCondition{
		Type:              raw.Type,
		Enabled:           raw.Enabled,
		Priority:          raw.Priority,
		RequiredSpotCount: 1,
	}
	if n, ok := paramInt(raw.Parameters, "required_spot_count"); ok {
		if n < 1 {
			return nil, invalid("node %q: highlight_condition.parameters.required_spot_count must be >= 1", nodeID)
		}
		hc.RequiredSpotCount = n
	}
	if b, ok := raw.Parameters["consecutive"].(bool); ok {
		hc.Consecutive = b
	}
	if raw, ok := raw.Parameters["day_offsets"].([]interface{}); ok {
		offsets := make([]int, 0, len(raw))
		for _, v := range raw {
			switch n := v.(type) {
			case int:
				offsets = append(offsets, n)
			case float64:
				offsets = append(offsets, int(n))
			default:
				return nil, invalid("node %q: highlight_condition.parameters.day_offsets must be a list of integers", nodeID)
			}
		}
		hc.DayOffsets = offsets
	}
	return hc, nil
}

// paramInt coerces a YAML-decoded numeric parameter, which may surface as
// either int or float64 depending on how the document wrote the literal.
func paramInt(params map[string]interface{}, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
