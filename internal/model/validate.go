package model

import "fmt"

// DataInvariantViolation reports a breach of the per-ticker candle series
// contract documented on Candle: strictly increasing dates, no duplicate
// dates, non-negative volume, and high/low consistent with open/close.
// Orchestration refuses to run against a series carrying one of these.
type DataInvariantViolation struct {
	Ticker string
	Index  int
	Reason string
}

func (e *DataInvariantViolation) Error() string {
	return fmt.Sprintf("model: data invariant violated for %s at index %d: %s", e.Ticker, e.Index, e.Reason)
}

// ValidateSeries checks every invariant in the Candle doc comment in series
// order and returns the first violation found as a *DataInvariantViolation,
// or nil if s is clean. Callers that acquire a Series from an untrusted
// source (internal/store/csv, or any future OHLCVSource implementation)
// must call this before handing the series to an Orchestrator;
// Orchestrator.Run also validates defensively so a caller can never skip
// the check by mistake.
func ValidateSeries(s Series) error {
	for i, c := range s {
		if c.Volume < 0 {
			return &DataInvariantViolation{Ticker: c.Ticker, Index: i, Reason: "negative volume"}
		}
		if hi := max(c.Open, c.Close, c.Low); c.High < hi {
			return &DataInvariantViolation{Ticker: c.Ticker, Index: i, Reason: "high below max(open, close, low)"}
		}
		if lo := min(c.Open, c.Close, c.High); c.Low > lo {
			return &DataInvariantViolation{Ticker: c.Ticker, Index: i, Reason: "low above min(open, close, high)"}
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		switch {
		case c.Date.Equal(prev.Date):
			return &DataInvariantViolation{Ticker: c.Ticker, Index: i, Reason: "duplicate date"}
		case c.Date.Before(prev.Date):
			return &DataInvariantViolation{Ticker: c.Ticker, Index: i, Reason: "candle out of order"}
		}
	}
	return nil
}
