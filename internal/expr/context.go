package expr

import "patterngraph/internal/model"

// FuncResolver dispatches a named function call to the function registry
// (C2). The expression engine never hard-codes function implementations —
// it only knows how to parse and route a Call node.
type FuncResolver interface {
	Call(name string, args []Value, ctx *Context) (Value, error)
}

// Context is the ordered binding of names to values visible to one
// expression evaluation: current/prev candles, the all_stocks history view,
// the owning pattern's id, and any blockN instances already present in that
// pattern. One Context is built per (pattern, candle) evaluation — it is
// cheap, stack-allocated, and never shared across patterns.
type Context struct {
	Current   model.Candle
	Prev      model.Candle
	HasPrev   bool
	AllStocks AllStocks
	PatternID string
	Blocks    map[string]model.Block
	Funcs     FuncResolver
}

// AllStocks is the read-only, index-addressable view of one ticker's
// history up to and including the current candle, bound to the
// `all_stocks` identifier.
type AllStocks interface {
	Len() int
	At(i int) model.Candle
	// CurrentIndex returns the position of the current candle within this
	// view, i.e. Len()-1 for a view truncated at "current".
	CurrentIndex() int
	// CacheAt returns the lazy indicator cache for candle i, allocating it
	// on first use, or nil if i is out of range.
	CacheAt(i int) *model.IndicatorCache
}
