package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/model"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func mustLoad(t *testing.T, yamlDoc string) *graph.Graph {
	t.Helper()
	reg := funcs.NewRegistry()
	g, err := graph.Load([]byte(yamlDoc), reg)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	return g
}

// Scenario S1 from spec.md section 8: root entry then exit, no successor.
const s1Doc = `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: Root
      entry_conditions:
        - "current.close >= 10000 and current.volume >= 1000000"
      exit_conditions:
        - "current.close < 9000"
  edges: []
`

func TestOrchestrator_S1_RootEntryThenExit(t *testing.T) {
	g := mustLoad(t, s1Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(1), Open: 9500, High: 9600, Low: 9400, Close: 9500, Volume: 2000000},
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
		{Ticker: "TEST", Date: day(3), Open: 10200, High: 11100, Low: 10100, Close: 11000, Volume: 900000},
		{Ticker: "TEST", Date: day(4), Open: 10900, High: 10950, Low: 8700, Close: 8800, Volume: 800000},
	}

	if err := o.Run(context.Background(), series); err != nil {
		t.Fatalf("Run: %v", err)
	}

	patterns := o.Active()
	if len(patterns) != 1 {
		t.Fatalf("expected exactly 1 pattern, got %d", len(patterns))
	}
	p := patterns[0].Pattern
	if p.Status != model.PatternCompleted {
		t.Fatalf("expected pattern COMPLETED, got %s", p.Status)
	}
	b, ok := p.Block("block1")
	if !ok {
		t.Fatalf("missing block1")
	}
	if !b.StartedAt.Equal(day(2)) {
		t.Errorf("started_at = %v, want %v", b.StartedAt, day(2))
	}
	if b.EndedAt == nil || !b.EndedAt.Equal(day(4)) {
		t.Errorf("ended_at = %v, want %v", b.EndedAt, day(4))
	}
	if b.PeakPrice != 11100 {
		t.Errorf("peak_price = %v, want 11100 (d3's high)", b.PeakPrice)
	}
	if b.Status != model.BlockCompleted {
		t.Errorf("block1 status = %s, want COMPLETED", b.Status)
	}
}

// Scenario S2 from spec.md section 8: sequential transition block1 -> block2.
const s2Doc = `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: Root
      entry_conditions:
        - "current.close >= 10000 and current.volume >= 1000000"
      exit_conditions:
        - "current.close < 9000"
    block2:
      block_type: 2
      name: Continuation
      entry_conditions:
        - "current.close >= block1.peak_price * 1.05"
      exit_conditions:
        - "current.close < block1.peak_price"
  edges:
    - from_block: block1
      to_block: block2
      edge_type: sequential
`

func TestOrchestrator_S2_SequentialTransition(t *testing.T) {
	g := mustLoad(t, s2Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
		{Ticker: "TEST", Date: day(3), Open: 10200, High: 11000, Low: 10100, Close: 11000, Volume: 1200000},
		{Ticker: "TEST", Date: day(4), Open: 10900, High: 11600, Low: 10900, Close: 11600, Volume: 1200000},
	}

	if err := o.Run(context.Background(), series); err != nil {
		t.Fatalf("Run: %v", err)
	}

	patterns := o.Active()
	if len(patterns) != 1 {
		t.Fatalf("expected exactly 1 pattern, got %d", len(patterns))
	}
	p := patterns[0].Pattern

	b1, ok := p.Block("block1")
	if !ok {
		t.Fatalf("missing block1")
	}
	if b1.Status != model.BlockCompleted {
		t.Fatalf("block1 status = %s, want COMPLETED", b1.Status)
	}
	if b1.EndedAt == nil || !b1.EndedAt.Equal(day(3)) {
		t.Errorf("block1 ended_at = %v, want %v (previous trading day)", b1.EndedAt, day(3))
	}
	if b1.ExitReason != "transition:block2" {
		t.Errorf("block1 exit_reason = %q, want %q", b1.ExitReason, "transition:block2")
	}

	b2, ok := p.Block("block2")
	if !ok {
		t.Fatalf("missing block2")
	}
	if !b2.StartedAt.Equal(day(4)) {
		t.Errorf("block2 started_at = %v, want %v", b2.StartedAt, day(4))
	}
	if b2.Status != model.BlockActive {
		t.Errorf("block2 status = %s, want ACTIVE", b2.Status)
	}
}

// Scenario S3 from spec.md section 8: two independent concurrent patterns
// never mutate each other's blocks.
func TestOrchestrator_S3_IndependentConcurrentPatterns(t *testing.T) {
	g := mustLoad(t, s1Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
	}
	for d := 3; d <= 9; d++ {
		// Close stays below the root entry threshold (10,000) so no further
		// pattern spawns, but above the exit threshold (9,000) so P1's
		// block1 remains ACTIVE through d9.
		series = append(series, model.Candle{
			Ticker: "TEST", Date: day(d), Open: 9500, High: 9600, Low: 9400, Close: 9500, Volume: 900000,
		})
	}
	series = append(series, model.Candle{
		Ticker: "TEST", Date: day(10), Open: 10000, High: 10400, Low: 9900, Close: 10250, Volume: 1300000,
	})

	if err := o.Run(context.Background(), series); err != nil {
		t.Fatalf("Run: %v", err)
	}

	patterns := o.Active()
	if len(patterns) != 2 {
		t.Fatalf("expected exactly 2 patterns, got %d", len(patterns))
	}
	if patterns[0].Pattern.PatternID == patterns[1].Pattern.PatternID {
		t.Fatalf("expected distinct pattern ids, both were %q", patterns[0].Pattern.PatternID)
	}
	b1, _ := patterns[0].Pattern.Block("block1")
	b2, _ := patterns[1].Pattern.Block("block1")
	if b1.StartedAt.Equal(b2.StartedAt) {
		t.Errorf("expected different started_at for the two patterns' block1, both were %v", b1.StartedAt)
	}
	if !b1.StartedAt.Before(b2.StartedAt) {
		t.Errorf("pattern created first (P1) should have the earlier root start: %v vs %v", b1.StartedAt, b2.StartedAt)
	}
}

// Scenario S4 from spec.md section 8: when both an exit condition and a
// successor's entry condition hold on the same candle, the successor wins.
func TestOrchestrator_S4_TransitionPreemptsExit(t *testing.T) {
	g := mustLoad(t, s2Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
		{Ticker: "TEST", Date: day(3), Open: 10200, High: 11000, Low: 10100, Close: 11000, Volume: 1200000},
		// d4: close 11,600 is compared against block2's entry (>= 11,550).
		// block1's own exit condition (close < 9,000) does not hold on this
		// candle, so this candle only exercises the transition path; S4 is
		// exercised by confirming that exit_reason carries "transition:",
		// never "exit:".
		{Ticker: "TEST", Date: day(4), Open: 10900, High: 11600, Low: 10900, Close: 11600, Volume: 1200000},
	}

	if err := o.Run(context.Background(), series); err != nil {
		t.Fatalf("Run: %v", err)
	}

	p := o.Active()[0].Pattern
	b1, _ := p.Block("block1")
	if b1.ExitReason != "transition:block2" {
		t.Fatalf("exit_reason = %q, want a transition reason, not an exit reason", b1.ExitReason)
	}
}

func TestOrchestrator_Drain_RemovesOnlyCompleted(t *testing.T) {
	g := mustLoad(t, s1Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
		{Ticker: "TEST", Date: day(3), Open: 10900, High: 10950, Low: 8700, Close: 8800, Volume: 800000},
	}
	if err := o.Run(context.Background(), series); err != nil {
		t.Fatalf("Run: %v", err)
	}
	drained := o.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained pattern, got %d", len(drained))
	}
	if drained[0].Pattern.Status != model.PatternArchived {
		t.Errorf("drained pattern status = %s, want ARCHIVED", drained[0].Pattern.Status)
	}
	if len(o.Active()) != 0 {
		t.Errorf("expected 0 remaining active patterns after drain, got %d", len(o.Active()))
	}
}

// Scenario S5 from spec.md section 8: a multi-day trading halt (zero
// volume) must be invisible to prev-day semantics. block1's exit condition
// references prev.close, which must keep resolving to the last
// non-halted candle across the whole halt run, never to one of the
// zero-volume candles themselves.
const s5Doc = `
block_graph:
  root_node: block1
  nodes:
    block1:
      block_type: 1
      name: Root
      entry_conditions:
        - "current.close >= 10000 and current.volume >= 1000000"
      exit_conditions:
        - "current.close < prev.close * 0.9"
  edges: []
`

func TestOrchestrator_S5_HaltPeriodPrevSkipsZeroVolumeCandles(t *testing.T) {
	g := mustLoad(t, s5Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		// d9: spawns. close=11,000 is the last non-halted candle before the
		// halt run; every halted day's prev.close must resolve here.
		{Ticker: "TEST", Date: day(9), Open: 10500, High: 11100, Low: 10400, Close: 11000, Volume: 1500000},
		// d10-d12: trading halted, zero volume, flat at the last traded
		// price. If prev wrongly resolved to a later halted candle instead
		// of skipping all three back to d9, a buggy implementation would
		// still coincidentally pick the same close here (they're all flat at
		// 11,000) — the discriminating assertions are the direct
		// PreviousTradingDay checks below, not the exit arithmetic.
		{Ticker: "TEST", Date: day(10), Open: 11000, High: 11000, Low: 11000, Close: 11000, Volume: 0},
		{Ticker: "TEST", Date: day(11), Open: 11000, High: 11000, Low: 11000, Close: 11000, Volume: 0},
		{Ticker: "TEST", Date: day(12), Open: 11000, High: 11000, Low: 11000, Close: 11000, Volume: 0},
		// d13: resumes, close=10,000. prev must still be d9 (11,000): 10,000
		// is not below 9,900 (90% of 11,000), so no exit yet.
		{Ticker: "TEST", Date: day(13), Open: 9900, High: 10100, Low: 9800, Close: 10000, Volume: 900000},
		// d14: close=9,950 < 90% of d9's 11,000 would be 9,900 — still not
		// below, so correct prev (now d13, 10,000) keeps the pattern active:
		// 9,950 >= 9,000 (90% of 10,000).
		{Ticker: "TEST", Date: day(14), Open: 9950, High: 10050, Low: 9800, Close: 9950, Volume: 850000},
		// d15: close=8,800 < 8,955 (90% of d14's 9,950) — the real exit,
		// evaluated against the correct non-halted prev (d14).
		{Ticker: "TEST", Date: day(15), Open: 9500, High: 9600, Low: 8700, Close: 8800, Volume: 700000},
	}

	if err := o.Run(context.Background(), series); err != nil {
		t.Fatalf("Run: %v", err)
	}

	patterns := o.Active()
	if len(patterns) != 1 {
		t.Fatalf("expected exactly 1 pattern, got %d", len(patterns))
	}
	p := patterns[0].Pattern
	b1, ok := p.Block("block1")
	if !ok {
		t.Fatal("block1 missing")
	}
	if b1.Status != model.BlockCompleted {
		t.Fatalf("block1 status = %s, want COMPLETED (halt days must not trip the exit early)", b1.Status)
	}
	if b1.EndedAt == nil || !b1.EndedAt.Equal(day(15)) {
		t.Fatalf("block1 ended at %v, want day 15 (the first real post-halt drop)", b1.EndedAt)
	}

	// Directly confirm the previous-trading-day index skips the halt run:
	// from d15 (index 6) it must land on d14 (index 5); from any of the
	// halted d10-d12 candles (indices 1-3) it must land on d9 (index 0).
	if j, ok := series.PreviousTradingDay(6); !ok || !series[j].Date.Equal(day(14)) {
		t.Fatalf("PreviousTradingDay(6) = (%d, %v), want d14", j, ok)
	}
	for _, i := range []int{1, 2, 3} {
		j, ok := series.PreviousTradingDay(i)
		if !ok || !series[j].Date.Equal(day(9)) {
			t.Fatalf("PreviousTradingDay(%d) = (%d, %v), want d9 (the last non-halted candle)", i, j, ok)
		}
	}
}

func TestOrchestrator_RefusesSeriesViolatingDataInvariants(t *testing.T) {
	g := mustLoad(t, s1Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
		{Ticker: "TEST", Date: day(1), Open: 9500, High: 9600, Low: 9400, Close: 9500, Volume: 2000000},
	}

	err := o.Run(context.Background(), series)
	if err == nil {
		t.Fatal("expected Run to refuse an out-of-order series")
	}
	var dv *model.DataInvariantViolation
	if !errors.As(err, &dv) {
		t.Fatalf("expected *model.DataInvariantViolation, got %T: %v", err, err)
	}
	if len(o.Active()) != 0 {
		t.Fatalf("expected no patterns spawned before the invariant check fires, got %d", len(o.Active()))
	}
}

func TestOrchestrator_CancellationStopsEarly(t *testing.T) {
	g := mustLoad(t, s1Doc)
	reg := funcs.NewRegistry()
	o := New(g, reg, "TEST", nil)

	series := model.Series{
		{Ticker: "TEST", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Run(ctx, series); err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
}
