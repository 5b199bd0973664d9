// Package highlight implements the highlight detector & S/R analyzer (C7)
// and the highlight-centric orchestrator (C8): a post-filter over a prior
// sequential scan's blocks, followed by backward root relocation and
// extended forward tracking.
package highlight

import (
	"context"
	"sort"
	"time"

	"patterngraph/internal/detect"
	"patterngraph/internal/expr"
	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/model"
	"patterngraph/internal/pattern"
)

// HighlightResult pairs a qualifying block with the pattern it belongs to
// and the set of forward-spot day offsets that held for it.
type HighlightResult struct {
	Pattern *pattern.Context
	Block   model.Block
	Hits    []int
}

// Detector evaluates forward-spot criteria and the highlight_condition
// gate over the output of a sequential scan. It is stateless — every
// method is a pure function of its arguments.
type Detector struct {
	Graph *graph.Graph
	Funcs expr.FuncResolver
}

// NewDetector binds a Detector to a validated graph and function resolver.
func NewDetector(g *graph.Graph, fr expr.FuncResolver) *Detector {
	return &Detector{Graph: g, Funcs: fr}
}

// ForwardSpots evaluates block's owning node's forward_spot_condition at
// each of dayOffsets (trading days after block.StartedAt, located within
// series) and returns the subset of offsets where the condition held. A
// node with no ForwardSpotCondition never produces a spot.
func (d *Detector) ForwardSpots(series model.Series, pc *pattern.Context, block model.Block, dayOffsets []int) []int {
	node, ok := d.Graph.Node(block.BlockID)
	if !ok || node.ForwardSpotCondition == nil {
		return nil
	}
	baseIdx := indexOfDate(series, block.StartedAt)
	if baseIdx < 0 {
		return nil
	}
	var hits []int
	for _, k := range dayOffsets {
		idx := baseIdx + k
		if idx < 0 || idx >= len(series) {
			continue
		}
		current := series[idx]
		var prev model.Candle
		hasPrev := false
		if j, ok := series.PreviousTradingDay(idx); ok {
			prev = series[j]
			hasPrev = true
		}
		view := series.ViewUpTo(idx)
		ectx := pc.ExprContext(current, prev, hasPrev, view, d.Funcs)
		if expr.EvalBool(node.ForwardSpotCondition, ectx) {
			hits = append(hits, k)
		}
	}
	return hits
}

// IsHighlight reports whether hits satisfies node's highlight_condition:
// enough spots, and — when Consecutive is set — a run of at least
// RequiredSpotCount consecutive day_offsets among the hits.
func (d *Detector) IsHighlight(node *graph.Node, hits []int) bool {
	hc := node.HighlightCondition
	if hc == nil || !hc.Enabled {
		return false
	}
	if len(hits) < hc.RequiredSpotCount {
		return false
	}
	if !hc.Consecutive {
		return true
	}
	return hasConsecutiveRun(hc.DayOffsets, hits, hc.RequiredSpotCount)
}

// ScanHighlights runs a fresh sequential orchestrator over series and
// returns every block, across every pattern produced, that qualifies as a
// highlight, in chronological order by block.StartedAt — the "walks the
// output of a prior sequential scan" step from spec section 4.6.
func (d *Detector) ScanHighlights(ctx context.Context, reg *funcs.Registry, ticker string, series model.Series) ([]HighlightResult, error) {
	o := detect.New(d.Graph, reg, ticker, nil)
	if err := o.Run(ctx, series); err != nil {
		return nil, err
	}

	var results []HighlightResult
	for _, pc := range o.Active() {
		for _, id := range pc.Pattern.BlockIDs() {
			b, ok := pc.Pattern.Block(id)
			if !ok {
				continue
			}
			node, ok := d.Graph.Node(id)
			if !ok || node.HighlightCondition == nil || !node.HighlightCondition.Enabled {
				continue
			}
			hits := d.ForwardSpots(series, pc, *b, node.HighlightCondition.DayOffsets)
			if d.IsHighlight(node, hits) {
				results = append(results, HighlightResult{Pattern: pc, Block: b.Clone(), Hits: hits})
			}
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Block.StartedAt.Before(results[j].Block.StartedAt)
	})
	return results, nil
}

func hasConsecutiveRun(offsets, hits []int, required int) bool {
	hitSet := make(map[int]bool, len(hits))
	for _, h := range hits {
		hitSet[h] = true
	}
	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)
	run := 0
	for i, o := range sorted {
		if !hitSet[o] {
			run = 0
			continue
		}
		if i > 0 && sorted[i-1] == o-1 {
			run++
		} else {
			run = 1
		}
		if run >= required {
			return true
		}
	}
	return false
}

// indexOfDate locates d within a date-sorted series, returning -1 if
// absent.
func indexOfDate(series model.Series, d time.Time) int {
	i := sort.Search(len(series), func(i int) bool { return !series[i].Date.Before(d) })
	if i < len(series) && series[i].Date.Equal(d) {
		return i
	}
	return -1
}
