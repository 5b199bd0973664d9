package highlight

import (
	"time"

	"patterngraph/internal/model"
)

// SRAnalysis is the support/resistance read on a reference block over a
// forward window: how often the window held the reference's peak as
// support, how often price retested the reference's high, the worst
// drawdown seen, and whether a major breakout (2x peak) ever printed.
type SRAnalysis struct {
	SupportStrength float64    // fraction of window days with close >= reference.peak_price
	RetestCount     int        // days with high within tolerance of reference.peak_price
	MaxDrawdownPct  float64    // largest (peak - low) / peak seen in the window, as a percentage
	BreakoutDate    *time.Time // first day close >= 2x reference.peak_price, nil if none
}

// SRAnalyzer computes SRAnalysis against a configurable retest tolerance.
type SRAnalyzer struct {
	TolerancePct float64
}

// NewSRAnalyzer builds an analyzer; tolerancePct <= 0 falls back to the 2%
// default.
func NewSRAnalyzer(tolerancePct float64) *SRAnalyzer {
	if tolerancePct <= 0 {
		tolerancePct = 2
	}
	return &SRAnalyzer{TolerancePct: tolerancePct}
}

// Analyze reads window (chronological, forward of reference) against
// reference.PeakPrice.
func (a *SRAnalyzer) Analyze(reference model.Block, window model.Series) SRAnalysis {
	if len(window) == 0 || reference.PeakPrice == 0 {
		return SRAnalysis{}
	}
	tol := a.TolerancePct / 100
	lo := reference.PeakPrice * (1 - tol)
	hi := reference.PeakPrice * (1 + tol)

	supportDays := 0
	retests := 0
	maxDrawdown := 0.0
	var breakout *time.Time
	for _, c := range window {
		if c.Close >= reference.PeakPrice {
			supportDays++
		}
		if c.High >= lo && c.High <= hi {
			retests++
		}
		if dd := (reference.PeakPrice - c.Low) / reference.PeakPrice; dd > maxDrawdown {
			maxDrawdown = dd
		}
		if breakout == nil && c.Close >= 2*reference.PeakPrice {
			d := c.Date
			breakout = &d
		}
	}

	return SRAnalysis{
		SupportStrength: float64(supportDays) / float64(len(window)),
		RetestCount:     retests,
		MaxDrawdownPct:  maxDrawdown * 100,
		BreakoutDate:    breakout,
	}
}
