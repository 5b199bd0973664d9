package funcs

import (
	"fmt"

	"patterngraph/internal/expr"
)

// registerBuiltins installs the required function set from spec section
// 4.1. Every evaluator below is pure: it reads ctx and its arguments and
// never mutates pattern or block state (indicator-cache writes are the one
// exception, and are memoization of a pure result, not state with
// observable behavior).
func registerBuiltins(r *Registry) {
	r.Register("ma", Function{Arity: 1, Eval: fnMA})
	r.Register("volume_ma", Function{Arity: 1, Eval: fnVolumeMA})
	r.Register("candles_between", Function{Arity: 2, Eval: fnCandlesBetween})
	r.Register("days_since", Function{Arity: 1, Eval: fnDaysSince})
	r.Register("within_range", Function{Arity: 3, Eval: fnWithinRange})
	r.Register("is_new_high", Function{Arity: 1, Eval: fnIsNewHigh})
	r.Register("is_volume_high", Function{Arity: 1, Eval: fnIsVolumeHigh})
	r.Register("rsi", Function{Arity: 1, Eval: fnRSI})
	r.Register("bollinger_upper", Function{Arity: 2, Eval: fnBollingerUpper})
	r.Register("bollinger_lower", Function{Arity: 2, Eval: fnBollingerLower})
	r.Register("EXISTS", Function{Arity: 1, Eval: fnExists})
}

func intArg(v expr.Value) (int, bool) {
	if v.Kind != expr.KindNumber {
		return 0, false
	}
	return int(v.Num), true
}

func fnMA(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	period, ok := intArg(args[0])
	if !ok || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: ma: invalid period")
	}
	w := movingAverage(ctx.AllStocks, ctx.AllStocks.CurrentIndex(), period)
	return expr.FromWindow(w.Defined, w.Value), nil
}

func fnVolumeMA(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	period, ok := intArg(args[0])
	if !ok || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: volume_ma: invalid period")
	}
	w := volumeMovingAverage(ctx.AllStocks, ctx.AllStocks.CurrentIndex(), period)
	return expr.FromWindow(w.Defined, w.Value), nil
}

// fnCandlesBetween counts candles with volume > 0 whose date lies strictly
// between the two date arguments (both endpoints excluded).
func fnCandlesBetween(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	if args[0].Kind != expr.KindDate || args[1].Kind != expr.KindDate || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: candles_between: invalid arguments")
	}
	a, b := args[0].Date, args[1].Date
	if b.Before(a) {
		a, b = b, a
	}
	count := 0
	n := ctx.AllStocks.Len()
	for i := 0; i < n; i++ {
		c := ctx.AllStocks.At(i)
		if c.Volume <= 0 {
			continue
		}
		if c.Date.After(a) && c.Date.Before(b) {
			count++
		}
	}
	return expr.Num(float64(count)), nil
}

func fnDaysSince(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	if args[0].Kind != expr.KindDate {
		return expr.Undefined, fmt.Errorf("funcs: days_since: invalid argument")
	}
	days := ctx.Current.Date.Sub(args[0].Date).Hours() / 24
	return expr.Num(days), nil
}

func fnWithinRange(args []expr.Value, _ *expr.Context) (expr.Value, error) {
	if args[0].Kind != expr.KindNumber || args[1].Kind != expr.KindNumber || args[2].Kind != expr.KindNumber {
		return expr.Undefined, fmt.Errorf("funcs: within_range: invalid arguments")
	}
	value, base, tol := args[0].Num, args[1].Num, args[2].Num
	lo := base * (1 - tol/100)
	hi := base * (1 + tol/100)
	return expr.Bool(value >= lo && value <= hi), nil
}

func fnIsNewHigh(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	period, ok := intArg(args[0])
	if !ok || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: is_new_high: invalid period")
	}
	w := isNewHigh(ctx.AllStocks, ctx.AllStocks.CurrentIndex(), period)
	if !w.Defined {
		return expr.Bool(false), nil
	}
	return expr.Bool(w.Value != 0), nil
}

func fnIsVolumeHigh(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	period, ok := intArg(args[0])
	if !ok || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: is_volume_high: invalid period")
	}
	w := isVolumeHigh(ctx.AllStocks, ctx.AllStocks.CurrentIndex(), period)
	if !w.Defined {
		return expr.Bool(false), nil
	}
	return expr.Bool(w.Value != 0), nil
}

func fnRSI(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	period, ok := intArg(args[0])
	if !ok || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: rsi: invalid period")
	}
	w := wilderRSI(ctx.AllStocks, ctx.AllStocks.CurrentIndex(), period)
	return expr.FromWindow(w.Defined, w.Value), nil
}

func fnBollingerUpper(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	return bollinger(args, ctx, true)
}

func fnBollingerLower(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	return bollinger(args, ctx, false)
}

func bollinger(args []expr.Value, ctx *expr.Context, upper bool) (expr.Value, error) {
	period, ok := intArg(args[0])
	if !ok || args[1].Kind != expr.KindNumber || ctx.AllStocks == nil {
		return expr.Undefined, fmt.Errorf("funcs: bollinger: invalid arguments")
	}
	k := args[1].Num
	idx := ctx.AllStocks.CurrentIndex()
	// Bollinger bands reuse the MA cache (stdDevClose computes the mean via
	// computeMA) but are not themselves memoized — k varies per call site
	// and the underlying window sum is already O(period), not worth a
	// second cache dimension.
	mean, sd, ok := stdDevClose(ctx.AllStocks, idx, period)
	if !ok {
		return expr.Undefined, nil
	}
	if upper {
		return expr.Num(mean + k*sd), nil
	}
	return expr.Num(mean - k*sd), nil
}

func fnExists(args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	if args[0].Kind != expr.KindString {
		return expr.Undefined, fmt.Errorf("funcs: EXISTS: invalid argument")
	}
	_, ok := ctx.Blocks[args[0].Str]
	return expr.Bool(ok), nil
}
