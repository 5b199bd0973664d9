package graph

import (
	"strings"
	"testing"

	"patterngraph/internal/funcs"
)

func TestLoad_ValidDocument(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: Root
      entry_conditions:
        - "current.close >= 100"
      exit_conditions:
        - name: breakdown
          expression: "current.close < 50"
    block2:
      block_type: 2
      name: Continuation
      entry_conditions:
        - "current.close >= block1.peak_price * 1.05"
      exit_conditions: []
  edges:
    - from_block: block1
      to_block: block2
      edge_type: sequential
      priority: 1
`
	g, err := Load([]byte(doc), funcs.NewRegistry())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.RootID() != "block1" {
		t.Errorf("RootID() = %q, want block1", g.RootID())
	}
	edges := g.OutgoingEdges("block1")
	if len(edges) != 1 || edges[0].To != "block2" {
		t.Fatalf("OutgoingEdges(block1) = %v", edges)
	}
	node2, ok := g.Node("block2")
	if !ok {
		t.Fatal("missing block2")
	}
	if len(node2.EntryConditions) != 1 {
		t.Fatalf("block2 entry conditions = %d, want 1", len(node2.EntryConditions))
	}
	node1, _ := g.Node("block1")
	if node1.ExitConditions[0].Name != "breakdown" {
		t.Errorf("exit condition name = %q, want breakdown", node1.ExitConditions[0].Name)
	}
}

func TestLoad_RejectsCycle(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions: ["true"]
    block2:
      block_type: 2
      name: B
      entry_conditions: ["true"]
  edges:
    - from_block: block1
      to_block: block2
    - from_block: block2
      to_block: block1
`
	_, err := Load([]byte(doc), funcs.NewRegistry())
	if err == nil {
		t.Fatal("expected a cycle to be rejected")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want mention of cycle", err)
	}
}

func TestLoad_RejectsUnknownEdgeEndpoint(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions: ["true"]
  edges:
    - from_block: block1
      to_block: ghost
`
	_, err := Load([]byte(doc), funcs.NewRegistry())
	if err == nil {
		t.Fatal("expected an unknown edge endpoint to be rejected")
	}
}

func TestLoad_RejectsUnreachableNode(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions: ["true"]
    block2:
      block_type: 2
      name: Orphan
      entry_conditions: ["true"]
  edges: []
`
	_, err := Load([]byte(doc), funcs.NewRegistry())
	if err == nil {
		t.Fatal("expected an unreachable node to be rejected")
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("error = %v, want mention of unreachable", err)
	}
}

func TestLoad_RejectsUnparseableExpression(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions:
        - "current.close >="
`
	_, err := Load([]byte(doc), funcs.NewRegistry())
	if err == nil {
		t.Fatal("expected an unparseable expression to be rejected")
	}
}

func TestLoad_ConditionalEdgeRequiresCondition(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions: ["true"]
    block2:
      block_type: 2
      name: B
      entry_conditions: ["true"]
  edges:
    - from_block: block1
      to_block: block2
      edge_type: conditional
`
	_, err := Load([]byte(doc), funcs.NewRegistry())
	if err == nil {
		t.Fatal("expected a conditional edge without a condition to be rejected")
	}
}

func TestLoad_SealsRegistry(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions: ["true"]
`
	reg := funcs.NewRegistry()
	if _, err := Load([]byte(doc), reg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected Register after Load to panic on a sealed registry")
		}
	}()
	reg.Register("extra", funcs.Function{Arity: 0, Eval: nil})
}

func TestLoad_HighlightConditionParameters(t *testing.T) {
	doc := `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: A
      entry_conditions: ["true"]
      highlight_condition:
        type: forward_spot
        enabled: true
        priority: 1
        parameters:
          required_spot_count: 2
          consecutive: true
          day_offsets: [1, 2]
`
	g, err := Load([]byte(doc), funcs.NewRegistry())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, _ := g.Node("block1")
	if n.HighlightCondition == nil {
		t.Fatal("expected a parsed HighlightCondition")
	}
	if n.HighlightCondition.RequiredSpotCount != 2 || !n.HighlightCondition.Consecutive {
		t.Errorf("highlight condition = %+v", n.HighlightCondition)
	}
	if len(n.HighlightCondition.DayOffsets) != 2 || n.HighlightCondition.DayOffsets[1] != 2 {
		t.Errorf("day_offsets = %v", n.HighlightCondition.DayOffsets)
	}
}
