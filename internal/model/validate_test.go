package model

import (
	"errors"
	"testing"
	"time"
)

func d(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func cleanSeries() Series {
	return Series{
		{Ticker: "T", Date: d(1), Open: 100, High: 105, Low: 98, Close: 102, Volume: 1000},
		{Ticker: "T", Date: d(2), Open: 102, High: 108, Low: 101, Close: 106, Volume: 1200},
		{Ticker: "T", Date: d(3), Open: 106, High: 110, Low: 104, Close: 109, Volume: 900},
	}
}

func TestValidateSeries_ValidSeriesPasses(t *testing.T) {
	if err := ValidateSeries(cleanSeries()); err != nil {
		t.Fatalf("expected no violation, got %v", err)
	}
}

func TestValidateSeries_NegativeVolume(t *testing.T) {
	s := cleanSeries()
	s[1].Volume = -5
	assertViolation(t, s, 1, "negative volume")
}

func TestValidateSeries_ZeroVolumeIsNotAViolation(t *testing.T) {
	s := cleanSeries()
	s[1].Volume = 0 // a halt day, not a data defect
	if err := ValidateSeries(s); err != nil {
		t.Fatalf("expected zero volume to be valid (halt day), got %v", err)
	}
}

func TestValidateSeries_HighBelowOthers(t *testing.T) {
	s := cleanSeries()
	s[1].High = 100 // below Close=106
	assertViolation(t, s, 1, "high below max(open, close, low)")
}

func TestValidateSeries_LowAboveOthers(t *testing.T) {
	s := cleanSeries()
	s[1].Low = 107 // above Open=102
	assertViolation(t, s, 1, "low above min(open, close, high)")
}

func TestValidateSeries_DuplicateDate(t *testing.T) {
	s := cleanSeries()
	s[2].Date = s[1].Date
	assertViolation(t, s, 2, "duplicate date")
}

func TestValidateSeries_OutOfOrder(t *testing.T) {
	s := cleanSeries()
	s[1].Date, s[2].Date = s[2].Date, s[1].Date
	assertViolation(t, s, 2, "candle out of order")
}

func assertViolation(t *testing.T, s Series, wantIndex int, wantReason string) {
	t.Helper()
	err := ValidateSeries(s)
	if err == nil {
		t.Fatalf("expected a DataInvariantViolation, got nil")
	}
	var dv *DataInvariantViolation
	if !errors.As(err, &dv) {
		t.Fatalf("expected *DataInvariantViolation, got %T: %v", err, err)
	}
	if dv.Index != wantIndex || dv.Reason != wantReason {
		t.Fatalf("got index=%d reason=%q, want index=%d reason=%q", dv.Index, dv.Reason, wantIndex, wantReason)
	}
}
