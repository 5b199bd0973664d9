// Package detect implements the sequential orchestrator (C6): a strictly
// sequential, single-ticker traversal of daily candles that spawns,
// evolves, and completes an unbounded number of independent pattern
// instances according to the block graph's entry/exit/transition rules.
package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"patterngraph/internal/expr"
	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/metrics"
	"patterngraph/internal/model"
	"patterngraph/internal/pattern"
)

// Orchestrator evolves one ticker's candle history day by day. It owns the
// mutable state of the scan — the active pattern list — and nothing else;
// the graph and function registry it is bound to are read-only and may be
// shared with other Orchestrators running concurrently on other tickers.
type Orchestrator struct {
	graph  *graph.Graph
	funcs  expr.FuncResolver
	ticker string
	m      *metrics.Metrics // nil-safe: every use is guarded

	active   []*pattern.Context
	sequence map[string]int // spawn sequence counter keyed by "YYYYMMDD"
}

// New binds an Orchestrator to a validated graph and a sealed function
// registry for one ticker. m may be nil.
func New(g *graph.Graph, reg *funcs.Registry, ticker string, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		graph:    g,
		funcs:    reg,
		ticker:   ticker,
		m:        m,
		sequence: make(map[string]int),
	}
}

// Seed appends already-active pattern contexts to the orchestrator's
// pattern list; a later Run evolves them together with any pattern it
// spawns. Run keeps no record of candles already processed: it evaluates
// root entry on every candle it is given, so a series that repeats
// candles from an earlier run spawns those roots again and re-applies
// those candles to the seeded patterns. Seed followed by Run is therefore
// not equivalent to a single Run over the combined candles.
func (o *Orchestrator) Seed(contexts []*pattern.Context) {
	o.active = append(o.active, contexts...)
}

// Active returns a snapshot of every pattern context the orchestrator
// currently holds, ACTIVE and COMPLETED alike — the "output phase" view
// from spec section 4.5 step 3. Use Drain instead to additionally remove
// COMPLETED patterns from the orchestrator's internal list.
func (o *Orchestrator) Active() []*pattern.Context {
	out := make([]*pattern.Context, len(o.active))
	copy(out, o.active)
	return out
}

// Drain removes and returns every COMPLETED pattern context, archiving
// each one, leaving only ACTIVE contexts behind. Callers persist the
// drained patterns through the repository port; the orchestrator never
// does I/O itself.
func (o *Orchestrator) Drain() []*pattern.Context {
	var drained []*pattern.Context
	remaining := o.active[:0]
	for _, pc := range o.active {
		if pc.Pattern.Status == model.PatternCompleted {
			pc.Pattern.Archive()
			drained = append(drained, pc)
		} else {
			remaining = append(remaining, pc)
		}
	}
	o.active = remaining
	if o.m != nil && len(drained) > 0 {
		o.m.PatternsCompleted.Add(float64(len(drained)))
	}
	return drained
}

// Run evolves the orchestrator across series, candle by candle, checking
// ctx for cancellation between candles. On cancellation it returns
// ctx.Err() immediately, leaving in-flight ACTIVE patterns exactly as they
// were after the last fully processed candle (spec section 5's
// cancellation contract: callers get the already-COMPLETED patterns via
// Drain/Active, ACTIVE ones are simply dropped by the caller).
//
// Run refuses to evolve a single candle of a series that violates the
// data contract (out-of-order dates, duplicate dates, negative volume,
// inverted high/low) — it validates series up front and returns the
// *model.DataInvariantViolation untouched, before any pattern is spawned.
func (o *Orchestrator) Run(ctx context.Context, series model.Series) error {
	if err := model.ValidateSeries(series); err != nil {
		return err
	}
	for i := range series {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		start := time.Now()
		o.evolveCandle(series, i)
		if o.m != nil {
			o.m.CandleEvolveDur.Observe(time.Since(start).Seconds())
			o.m.ActivePatterns.WithLabelValues(o.ticker).Set(float64(o.countActive()))
		}
	}
	return nil
}

func (o *Orchestrator) countActive() int {
	n := 0
	for _, pc := range o.active {
		if pc.Pattern.Status == model.PatternActive {
			n++
		}
	}
	return n
}

// evolveCandle runs one full pass of spec section 4.5's per-candle
// algorithm: spawn phase, then per-pattern evolution (peak update,
// transition check, exit check, completion check) in pattern creation
// order.
func (o *Orchestrator) evolveCandle(series model.Series, i int) {
	current := series[i]
	var prev model.Candle
	hasPrev := false
	if j, ok := series.PreviousTradingDay(i); ok {
		prev = series[j]
		hasPrev = true
	}
	view := series.ViewUpTo(i)

	o.spawnPhase(current, prev, hasPrev, view)

	for _, pc := range o.active {
		if pc.Pattern.Status != model.PatternActive {
			continue
		}
		o.peakUpdate(pc, current)
		o.transitionCheck(pc, current, prev, hasPrev, view)
		o.exitCheck(pc, current, prev, hasPrev, view)
		o.completionCheck(pc, current)
	}
}

// spawnPhase evaluates the root node's entry conditions against a
// no-pattern context (no blockN bindings). At most one new pattern is
// spawned per candle, per spec.md's recorded Open Question resolution.
func (o *Orchestrator) spawnPhase(current, prev model.Candle, hasPrev bool, view model.SeriesView) {
	root, ok := o.graph.Node(o.graph.RootID())
	if !ok {
		return
	}
	ectx := &expr.Context{
		Current:   current,
		Prev:      prev,
		HasPrev:   hasPrev,
		AllStocks: view,
		PatternID: "",
		Blocks:    nil,
		Funcs:     o.funcs,
	}
	if !allHold(root.EntryConditions, ectx) {
		return
	}

	dateKey := current.Date.Format("20060102")
	o.sequence[dateKey]++
	seq := o.sequence[dateKey]
	id := model.PatternID(model.ModeSequential, o.ticker, current.Date, seq)

	rootBlock := model.Block{
		BlockID:   root.ID,
		BlockType: root.BlockType,
		Ticker:    o.ticker,
		StartedAt: current.Date,
		Status:    model.BlockActive,
		PeakPrice: current.High,
		PeakDate:  current.Date,
	}
	if current.Volume > rootBlock.PeakVolume {
		rootBlock.PeakVolume = current.Volume
	}
	p := model.NewPattern(id, o.ticker, root.ID, rootBlock, current.Date)
	o.active = append(o.active, pattern.New(o.graph, p))

	if o.m != nil {
		o.m.PatternsSpawned.Inc()
	}
}

func (o *Orchestrator) peakUpdate(pc *pattern.Context, current model.Candle) {
	for _, id := range pc.ActiveBlockIDs() {
		if b, ok := pc.Pattern.Block(id); ok {
			b.UpdatePeak(current)
		}
	}
}

// transitionCheck gathers every outgoing edge from this pattern's ACTIVE
// blocks whose target does not already have an instance, orders them
// deterministically by (target topological index, edge priority), and
// takes the first one whose guard (if any) and target entry conditions
// hold. At most one transition fires per pattern per candle; OPTIONAL
// edges from a source that just completed via a sibling transition are
// never reconsidered, because that source is no longer ACTIVE and so
// never contributes candidates again.
func (o *Orchestrator) transitionCheck(pc *pattern.Context, current, prev model.Candle, hasPrev bool, view model.SeriesView) {
	var candidates []graph.Edge
	for _, srcID := range pc.ActiveBlockIDs() {
		candidates = append(candidates, pc.NextTargetNodes(srcID)...)
	}
	if len(candidates) == 0 {
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := o.graph.TopoIndex(candidates[i].To), o.graph.TopoIndex(candidates[j].To)
		if ti != tj {
			return ti < tj
		}
		return candidates[i].Priority < candidates[j].Priority
	})

	for _, e := range candidates {
		target, ok := o.graph.Node(e.To)
		if !ok {
			continue
		}
		ectx := pc.ExprContext(current, prev, hasPrev, view, o.funcs)
		if e.Type == graph.Conditional {
			if e.Guard == nil || !expr.EvalBool(e.Guard, ectx) {
				continue
			}
		}
		if !allHold(target.EntryConditions, ectx) {
			continue
		}

		newBlock := model.Block{
			BlockID:        e.To,
			BlockType:      target.BlockType,
			Ticker:         pc.Pattern.Ticker,
			StartedAt:      current.Date,
			Status:         model.BlockActive,
			PeakPrice:      current.High,
			PeakVolume:     current.Volume,
			PeakDate:       current.Date,
			ParentBlockIDs: []string{e.From},
		}
		pc.Pattern.Add(newBlock)

		if src, ok := pc.Pattern.Block(e.From); ok {
			endedAt := current.Date
			if hasPrev {
				endedAt = prev.Date
			}
			src.Complete(endedAt, fmt.Sprintf("transition:%s", e.To))
		}

		if o.m != nil {
			o.m.TransitionsTaken.Inc()
		}
		return // only one transition per pattern per candle
	}
}

// exitCheck evaluates every remaining ACTIVE block's exit conditions in
// their declared order (OR semantics: the first one that holds wins).
func (o *Orchestrator) exitCheck(pc *pattern.Context, current, prev model.Candle, hasPrev bool, view model.SeriesView) {
	for _, id := range pc.ActiveBlockIDs() {
		node, ok := o.graph.Node(id)
		if !ok {
			continue
		}
		b, ok := pc.Pattern.Block(id)
		if !ok {
			continue
		}
		ectx := pc.ExprContext(current, prev, hasPrev, view, o.funcs)
		for _, c := range node.ExitConditions {
			if expr.EvalBool(c.Expression, ectx) {
				b.Complete(current.Date, fmt.Sprintf("exit:%s", c.Name))
				if o.m != nil {
					o.m.BlocksExited.Inc()
				}
				break
			}
		}
	}
}

// completionCheck transitions the pattern to COMPLETED once it has no
// ACTIVE block left. With no ACTIVE source, no further transition can ever
// fire again for this pattern, which is exactly spec.md 4.5.2.e's "all
// blocks are non-ACTIVE and no node remains reachable" condition.
func (o *Orchestrator) completionCheck(pc *pattern.Context, current model.Candle) {
	if pc.IsCompleted() {
		return
	}
	if len(pc.ActiveBlockIDs()) == 0 {
		pc.Pattern.Complete(current.Date)
	}
}

func allHold(conds []graph.ParsedCondition, ctx *expr.Context) bool {
	for _, c := range conds {
		if !expr.EvalBool(c.Expression, ctx) {
			return false
		}
	}
	return true
}
