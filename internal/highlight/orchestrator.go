package highlight

import (
	"context"
	"sort"
	"time"

	"patterngraph/internal/detect"
	"patterngraph/internal/funcs"
	"patterngraph/internal/graph"
	"patterngraph/internal/metrics"
	"patterngraph/internal/model"
)

// Config parameterizes the highlight-centric orchestrator's backward and
// forward scan windows and the S/R analyzer's retest tolerance.
type Config struct {
	BackwardWindow int     // trading days scanned before a highlight for root relocation, default 30
	ForwardWindow  int     // trading days tracked forward of the relocated root, default 1125
	SRTolerancePct float64 // retest tolerance for the S/R analyzer, default 2
}

// DefaultConfig returns the spec-recorded defaults (L=30, F=1125, 2%
// tolerance).
func DefaultConfig() Config {
	return Config{BackwardWindow: 30, ForwardWindow: 1125, SRTolerancePct: 2}
}

func (c Config) withDefaults() Config {
	if c.BackwardWindow <= 0 {
		c.BackwardWindow = 30
	}
	if c.ForwardWindow <= 0 {
		c.ForwardWindow = 1125
	}
	if c.SRTolerancePct <= 0 {
		c.SRTolerancePct = 2
	}
	return c
}

// BackwardScanResult records whether backward relocation moved the
// pattern's root away from the highlight block, and by how much.
type BackwardScanResult struct {
	Relocated bool
	Ratio     float64 // strongest.peak_price / highlight.peak_price, 1 when not relocated
}

// CentricPattern is the assembled output of the highlight-centric
// workflow: a highlight block paired with its (possibly relocated) root,
// the forward blocks tracked from that root, and the S/R read on it.
type CentricPattern struct {
	PatternID     string
	Ticker        string
	Highlight     model.Block
	Root          model.Block
	Backward      BackwardScanResult
	ForwardBlocks []model.Block
	SRAnalysis    SRAnalysis
	Status        model.PatternStatus
}

// Orchestrator implements the five-step highlight-centric workflow: scan
// for highlights, relocate each to its strongest backward root, track the
// root forward, run the S/R analyzer, and assemble the result.
type Orchestrator struct {
	graph    *graph.Graph
	funcs    *funcs.Registry
	config   Config
	detector *Detector
	analyzer *SRAnalyzer
	m        *metrics.Metrics // nil-safe

	sequence map[string]int
}

// New binds an Orchestrator to a validated graph and sealed registry. m
// may be nil.
func New(g *graph.Graph, reg *funcs.Registry, cfg Config, m *metrics.Metrics) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		graph:    g,
		funcs:    reg,
		config:   cfg,
		detector: NewDetector(g, reg),
		analyzer: NewSRAnalyzer(cfg.SRTolerancePct),
		m:        m,
		sequence: make(map[string]int),
	}
}

// Run scans series restricted to [from, to] for highlights and, for each,
// assembles a CentricPattern via backward relocation, forward tracking,
// and S/R analysis. series must hold the full available history for
// ticker so that backward/forward windows outside [from, to] are
// available.
func (o *Orchestrator) Run(ctx context.Context, ticker string, series model.Series, from, to time.Time) ([]CentricPattern, error) {
	window := sliceByDateRange(series, from, to)
	highlights, err := o.detector.ScanHighlights(ctx, o.funcs, ticker, window)
	if err != nil {
		return nil, err
	}

	results := make([]CentricPattern, 0, len(highlights))
	for _, h := range highlights {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		cp, err := o.buildCentricPattern(ctx, ticker, series, h)
		if err != nil {
			return results, err
		}
		if o.m != nil {
			o.m.HighlightsFound.Inc()
			if cp.Backward.Relocated {
				o.m.BackwardRelocations.Inc()
			}
		}
		results = append(results, cp)
	}
	return results, nil
}

// buildCentricPattern runs steps 2-5 of the workflow for a single
// highlight result.
func (o *Orchestrator) buildCentricPattern(ctx context.Context, ticker string, series model.Series, h HighlightResult) (CentricPattern, error) {
	root, back, err := o.relocateRoot(ctx, ticker, series, h.Block)
	if err != nil {
		return CentricPattern{}, err
	}

	forwardBlocks, forwardWindow, err := o.trackForward(ctx, ticker, series, root)
	if err != nil {
		return CentricPattern{}, err
	}

	sr := o.analyzer.Analyze(root, forwardWindow)

	dateKey := h.Block.StartedAt.Format("20060102")
	o.sequence[dateKey]++
	id := model.PatternID(model.ModeHighlightCentric, ticker, h.Block.StartedAt, o.sequence[dateKey])

	return CentricPattern{
		PatternID:     id,
		Ticker:        ticker,
		Highlight:     h.Block,
		Root:          root,
		Backward:      back,
		ForwardBlocks: forwardBlocks,
		SRAnalysis:    sr,
		Status:        model.PatternCompleted,
	}, nil
}

// relocateRoot runs a fresh sequential scan over [highlight.started_at -
// BackwardWindow, highlight.started_at - 1] and, among root-type blocks
// (block_type 1) with a stronger peak than highlight, picks the
// strongest as the new root. With no stronger candidate, highlight is its
// own root.
func (o *Orchestrator) relocateRoot(ctx context.Context, ticker string, series model.Series, highlight model.Block) (model.Block, BackwardScanResult, error) {
	hIdx := indexOfDate(series, highlight.StartedAt)
	if hIdx < 0 {
		return highlight, BackwardScanResult{Ratio: 1}, nil
	}
	lo := hIdx - o.config.BackwardWindow
	if lo < 0 {
		lo = 0
	}
	hi := hIdx - 1
	if hi < lo {
		return highlight, BackwardScanResult{Ratio: 1}, nil
	}

	scan := detect.New(o.graph, o.funcs, ticker, nil)
	if err := scan.Run(ctx, series[lo:hi+1]); err != nil {
		return model.Block{}, BackwardScanResult{}, err
	}

	var strongest *model.Block
	for _, pc := range scan.Active() {
		for _, id := range pc.Pattern.BlockIDs() {
			b, ok := pc.Pattern.Block(id)
			if !ok {
				continue
			}
			node, ok := o.graph.Node(id)
			if !ok || node.BlockType != 1 {
				continue
			}
			if b.PeakPrice <= highlight.PeakPrice {
				continue
			}
			if strongest == nil || b.PeakPrice > strongest.PeakPrice {
				cloned := b.Clone()
				strongest = &cloned
			}
		}
	}

	if strongest == nil {
		return highlight, BackwardScanResult{Ratio: 1}, nil
	}
	return *strongest, BackwardScanResult{Relocated: true, Ratio: strongest.PeakPrice / highlight.PeakPrice}, nil
}

// trackForward runs a fresh sequential scan over [root.started_at + 1,
// root.started_at + ForwardWindow] and returns every block produced,
// along with the candle window the scan covered (for S/R analysis).
func (o *Orchestrator) trackForward(ctx context.Context, ticker string, series model.Series, root model.Block) ([]model.Block, model.Series, error) {
	rootIdx := indexOfDate(series, root.StartedAt)
	if rootIdx < 0 {
		return nil, nil, nil
	}
	lo := rootIdx + 1
	hi := rootIdx + o.config.ForwardWindow
	if hi >= len(series) {
		hi = len(series) - 1
	}
	if hi < lo {
		return nil, nil, nil
	}

	forwardWindow := series[lo : hi+1]
	scan := detect.New(o.graph, o.funcs, ticker, nil)
	if err := scan.Run(ctx, forwardWindow); err != nil {
		return nil, nil, err
	}

	var blocks []model.Block
	for _, pc := range scan.Active() {
		blocks = append(blocks, pc.Pattern.Blocks()...)
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].StartedAt.Before(blocks[j].StartedAt) })
	return blocks, forwardWindow, nil
}

// sliceByDateRange returns the contiguous sub-slice of series within
// [from, to] inclusive. series must be date-sorted ascending.
func sliceByDateRange(series model.Series, from, to time.Time) model.Series {
	lo := sort.Search(len(series), func(i int) bool { return !series[i].Date.Before(from) })
	hi := sort.Search(len(series), func(i int) bool { return series[i].Date.After(to) })
	if lo >= hi {
		return nil
	}
	return series[lo:hi]
}
