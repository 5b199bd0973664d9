// Package pattern implements the pattern context (C5): the per-instance
// binding between one in-flight Pattern and the block graph it was spawned
// from. It is deliberately thin — each PatternContext owns exactly one
// Pattern's block map, so the orchestrators (C6, C8) never share mutable
// state keyed by block_id across concurrently active patterns. That
// isolation is what "unbounded parallel patterns" in spec section 4.4
// means: the only shared object across patterns is the read-only Graph.
package pattern

import (
	"patterngraph/internal/expr"
	"patterngraph/internal/graph"
	"patterngraph/internal/model"
)

// Context binds a single in-flight Pattern to the Graph it was spawned
// from. It is created once, when a pattern's root block is spawned, and
// lives until the pattern reaches a terminal state.
type Context struct {
	Graph   *graph.Graph
	Pattern *model.Pattern
}

// New wraps an already-constructed Pattern with its owning Graph.
func New(g *graph.Graph, p *model.Pattern) *Context {
	return &Context{Graph: g, Pattern: p}
}

// BlocksSnapshot copies every block instance currently in the pattern into
// a map keyed by block_id, suitable for expr.Context.Blocks. It is a
// snapshot, not a live view: expressions evaluated against it see the
// state as of the moment the snapshot was taken, never a half-updated
// block from later in the same candle's evolve pass.
func (c *Context) BlocksSnapshot() map[string]model.Block {
	ids := c.Pattern.BlockIDs()
	out := make(map[string]model.Block, len(ids))
	for _, id := range ids {
		if b, ok := c.Pattern.Block(id); ok {
			out[id] = b.Clone()
		}
	}
	return out
}

// ExprContext builds the expr.Context for evaluating one condition against
// this pattern at the given candle. The caller supplies everything that
// varies per candle (current/prev, the history view, the function
// registry); this method supplies everything that is fixed per pattern
// (pattern_id, the blockN bindings).
func (c *Context) ExprContext(current, prev model.Candle, hasPrev bool, allStocks expr.AllStocks, funcs expr.FuncResolver) *expr.Context {
	return &expr.Context{
		Current:   current,
		Prev:      prev,
		HasPrev:   hasPrev,
		AllStocks: allStocks,
		PatternID: c.Pattern.PatternID,
		Blocks:    c.BlocksSnapshot(),
		Funcs:     funcs,
	}
}

// ActiveBlockIDs returns the ids of blocks still ACTIVE in this pattern, in
// insertion order. The orchestrator evolves exactly these each candle.
func (c *Context) ActiveBlockIDs() []string {
	return c.Pattern.ActiveBlockIDs()
}

// HasBlock reports whether block_id already has an instance in this
// pattern — used to enforce "at most one instance per block_id" before a
// spawn is attempted.
func (c *Context) HasBlock(blockID string) bool {
	_, ok := c.Pattern.Block(blockID)
	return ok
}

// IsCompleted reports whether the pattern has left ACTIVE, i.e. every
// reachable block has either completed into a dead end or failed with no
// live successor — the orchestrator sets this via Pattern.Complete, this
// method only observes it.
func (c *Context) IsCompleted() bool {
	return c.Pattern.Status != model.PatternActive
}

// NextTargetNodes returns the outgoing edges of fromBlockID (the
// orchestrator calls it for each still-ACTIVE block), in the graph's
// per-source edge-priority order, excluding any edge whose target already
// has an instance in this pattern. Edge-type semantics (sequential always
// eligible, conditional gated by its guard) are evaluated by the
// orchestrator; this method only applies the graph-structural +
// at-most-once filter.
func (c *Context) NextTargetNodes(fromBlockID string) []graph.Edge {
	edges := c.Graph.OutgoingEdges(fromBlockID)
	out := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		if c.HasBlock(e.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}
