// Package model defines the value types shared across the pattern-detection
// core: candles, block instances, and pattern instances. Nothing in this
// package mutates shared state — every value here is owned by exactly one
// caller at a time.
package model

import (
	"encoding/json"
	"time"
)

// Candle represents a single adjusted daily OHLCV bar for one ticker.
//
// Invariants (enforced by the caller before orchestration begins — see
// DataInvariantViolation in the error taxonomy): dates strictly increasing
// per ticker, Volume >= 0, High >= max(Open, Close, Low), Low <= min(Open,
// Close, High). A Volume == 0 candle represents a trading halt.
type Candle struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"` // calendar date, time-of-day ignored
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"` // adjusted close
	Volume int64     `json:"volume"`

	// Indicators is a lazily-populated cache of windowed indicator values
	// keyed by period. It is optional — nil is a valid, empty cache — and
	// exists purely to avoid recomputing moving windows when the same
	// (ticker, index, period) is queried by many concurrently active
	// pattern instances on the same candle.
	Indicators *IndicatorCache `json:"-"`
}

// TradingValue returns close * volume, the `trading_value` attribute exposed
// to expressions.
func (c Candle) TradingValue() float64 {
	return c.Close * float64(c.Volume)
}

// Halted reports whether this candle represents a zero-volume trading halt.
func (c Candle) Halted() bool {
	return c.Volume <= 0
}

// JSON returns the JSON-encoded candle (ignoring errors; used for logging
// and diagnostics only, never for persistence).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// IndicatorCache memoizes per-period computed values for one candle index
// within one ticker's series. Separate maps per statistic keep the cache
// simple and allocation-light for tickers that never query a given function.
type IndicatorCache struct {
	MA       map[int]Window
	VolumeMA map[int]Window
	RSI      map[int]Window
}

// Window is the result of a windowed computation: either a defined float64
// value or the "undefined" sentinel produced when fewer than `period` prior
// candles are available. Undefined values poison any comparison that uses
// them into `false`, per the expression engine's failure policy.
type Window struct {
	Value   float64
	Defined bool
}

// Undefined is the canonical "not enough history" window result.
var Undefined = Window{}

// DefinedWindow wraps a concrete value.
func DefinedWindow(v float64) Window {
	return Window{Value: v, Defined: true}
}
