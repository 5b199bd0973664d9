package pattern

import (
	"testing"
	"time"

	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/model"
)

const testDoc = `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: Root
      entry_conditions:
        - "current.close >= 100"
      exit_conditions:
        - "current.close < 50"
    block2:
      block_type: 2
      name: Next
      entry_conditions:
        - "current.close >= block1.peak_price * 1.1"
      exit_conditions: []
  edges:
    - from_block: block1
      to_block: block2
      edge_type: sequential
`

func loadTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Load([]byte(testDoc), funcs.NewRegistry())
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	return g
}

func TestContext_BlocksSnapshot_IsACopy(t *testing.T) {
	g := loadTestGraph(t)
	root := model.Block{BlockID: "block1", Status: model.BlockActive, PeakPrice: 100, StartedAt: time.Now()}
	p := model.NewPattern("SEED_T_20240101_001", "T", "block1", root, time.Now())
	c := New(g, p)

	snap := c.BlocksSnapshot()
	b := snap["block1"]
	b.PeakPrice = 9999 // mutate the copy

	live, _ := p.Block("block1")
	if live.PeakPrice == 9999 {
		t.Fatal("mutating a BlocksSnapshot entry must not affect the pattern's live block")
	}
}

func TestContext_HasBlock(t *testing.T) {
	g := loadTestGraph(t)
	root := model.Block{BlockID: "block1", Status: model.BlockActive, StartedAt: time.Now()}
	p := model.NewPattern("SEED_T_20240101_001", "T", "block1", root, time.Now())
	c := New(g, p)

	if !c.HasBlock("block1") {
		t.Error("HasBlock(block1) = false, want true")
	}
	if c.HasBlock("block2") {
		t.Error("HasBlock(block2) = true, want false")
	}
}

func TestContext_NextTargetNodes_ExcludesAlreadyInstantiated(t *testing.T) {
	g := loadTestGraph(t)
	root := model.Block{BlockID: "block1", Status: model.BlockActive, StartedAt: time.Now()}
	p := model.NewPattern("SEED_T_20240101_001", "T", "block1", root, time.Now())
	c := New(g, p)

	targets := c.NextTargetNodes("block1")
	if len(targets) != 1 || targets[0].To != "block2" {
		t.Fatalf("expected [block2], got %v", targets)
	}

	p.Add(model.Block{BlockID: "block2", Status: model.BlockActive, StartedAt: time.Now()})
	targets = c.NextTargetNodes("block1")
	if len(targets) != 0 {
		t.Fatalf("expected no further targets once block2 exists, got %v", targets)
	}
}

func TestContext_IsCompleted(t *testing.T) {
	g := loadTestGraph(t)
	root := model.Block{BlockID: "block1", Status: model.BlockActive, StartedAt: time.Now()}
	p := model.NewPattern("SEED_T_20240101_001", "T", "block1", root, time.Now())
	c := New(g, p)

	if c.IsCompleted() {
		t.Fatal("freshly created ACTIVE pattern reports completed")
	}
	p.Complete(time.Now())
	if !c.IsCompleted() {
		t.Fatal("COMPLETED pattern reports not completed")
	}
}
