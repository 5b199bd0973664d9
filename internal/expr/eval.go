package expr

import "patterngraph/internal/model"

// Eval walks a parsed AST against ctx and returns a Value. Eval never
// returns a Go error: a missing identifier or a divide by zero resolves to
// the Undefined value, which Truthy() reports as false, and a comparison
// with an Undefined operand yields false. This is the
// "ExpressionUndefined is locally absorbed" rule from the error taxonomy —
// it never propagates out of this package.
func Eval(n Node, ctx *Context) Value {
	switch t := n.(type) {
	case Literal:
		return t.Value
	case Ident:
		return evalIdent(t.Name, ctx)
	case Attr:
		return evalAttr(t, ctx)
	case Call:
		return evalCall(t, ctx)
	case Unary:
		return evalUnary(t, ctx)
	case Binary:
		return evalBinary(t, ctx)
	default:
		return Undefined
	}
}

// EvalBool is a convenience for condition evaluation — identical to
// Eval(n, ctx).Truthy() but named for call sites that only ever want a
// boolean (entry/exit/guard conditions).
func EvalBool(n Node, ctx *Context) bool {
	return Eval(n, ctx).Truthy()
}

// evalIdent resolves a bare identifier. "current", "prev", "all_stocks",
// and blockN references carry structured data, not a scalar — they only
// produce a usable Value via attribute access (evalAttr) or as a Call
// argument to EXISTS; as a bare identifier they evaluate to Undefined. Only
// pattern_id is itself a scalar.
func evalIdent(name string, ctx *Context) Value {
	if name == "pattern_id" {
		return Str(ctx.PatternID)
	}
	return Undefined
}

func evalAttr(a Attr, ctx *Context) Value {
	baseIdent, ok := a.Base.(Ident)
	if !ok {
		return Undefined
	}
	switch baseIdent.Name {
	case "current":
		return candleAttr(ctx.Current, a.Name)
	case "prev":
		if !ctx.HasPrev {
			return Undefined
		}
		return candleAttr(ctx.Prev, a.Name)
	default:
		if b, ok := ctx.Blocks[baseIdent.Name]; ok {
			return blockAttr(b, a.Name)
		}
	}
	return Undefined
}

func candleAttr(c model.Candle, name string) Value {
	switch name {
	case "open":
		return Num(c.Open)
	case "high":
		return Num(c.High)
	case "low":
		return Num(c.Low)
	case "close":
		return Num(c.Close)
	case "volume":
		return Num(float64(c.Volume))
	case "date":
		return DateVal(c.Date)
	case "trading_value":
		return Num(c.TradingValue())
	}
	return Undefined
}

func blockAttr(b model.Block, name string) Value {
	switch name {
	case "started_at":
		return DateVal(b.StartedAt)
	case "ended_at":
		if b.EndedAt == nil {
			return Undefined
		}
		return DateVal(*b.EndedAt)
	case "peak_price":
		return Num(b.PeakPrice)
	case "peak_volume":
		return Num(float64(b.PeakVolume))
	case "peak_date":
		return DateVal(b.PeakDate)
	case "status":
		return Str(string(b.Status))
	}
	return Undefined
}

func evalCall(c Call, ctx *Context) Value {
	if ctx.Funcs == nil {
		return Undefined
	}
	// EXISTS(block_id) takes its argument as a bare name, not an evaluated
	// value — block1/block2/... have no scalar representation, so the raw
	// identifier text is what must reach the registry.
	if c.Name == "EXISTS" && len(c.Args) == 1 {
		if id, ok := c.Args[0].(Ident); ok {
			v, err := ctx.Funcs.Call(c.Name, []Value{Str(id.Name)}, ctx)
			if err != nil {
				return Undefined
			}
			return v
		}
	}
	args := make([]Value, len(c.Args))
	for i, a := range c.Args {
		args[i] = Eval(a, ctx)
	}
	v, err := ctx.Funcs.Call(c.Name, args, ctx)
	if err != nil {
		return Undefined
	}
	return v
}

func evalUnary(u Unary, ctx *Context) Value {
	v := Eval(u.Operand, ctx)
	switch u.Op {
	case UnaryNot:
		if v.IsUndefined() {
			return Undefined
		}
		return Bool(!v.Truthy())
	case UnaryNeg:
		if v.Kind != KindNumber {
			return Undefined
		}
		return Num(-v.Num)
	}
	return Undefined
}

func evalBinary(b Binary, ctx *Context) Value {
	switch b.Op {
	case OpAnd:
		left := Eval(b.Left, ctx)
		if !left.Truthy() {
			return Bool(false)
		}
		return Bool(Eval(b.Right, ctx).Truthy())
	case OpOr:
		left := Eval(b.Left, ctx)
		if left.Truthy() {
			return Bool(true)
		}
		return Bool(Eval(b.Right, ctx).Truthy())
	}

	left := Eval(b.Left, ctx)
	right := Eval(b.Right, ctx)

	switch b.Op {
	case OpEq, OpNeq:
		return compareEquality(b.Op, left, right)
	case OpLt, OpLte, OpGt, OpGte:
		return compareOrder(b.Op, left, right)
	default:
		return arithmetic(b.Op, left, right)
	}
}

func arithmetic(op BinaryOp, l, r Value) Value {
	if l.Kind != KindNumber || r.Kind != KindNumber {
		return Undefined
	}
	switch op {
	case OpAdd:
		return Num(l.Num + r.Num)
	case OpSub:
		return Num(l.Num - r.Num)
	case OpMul:
		return Num(l.Num * r.Num)
	case OpDiv:
		if r.Num == 0 {
			return Undefined
		}
		return Num(l.Num / r.Num)
	case OpMod:
		if r.Num == 0 {
			return Undefined
		}
		return Num(float64(int64(l.Num) % int64(r.Num)))
	}
	return Undefined
}

func compareEquality(op BinaryOp, l, r Value) Value {
	if l.IsUndefined() || r.IsUndefined() {
		return Bool(false)
	}
	var eq bool
	switch {
	case l.Kind == KindNumber && r.Kind == KindNumber:
		eq = l.Num == r.Num
	case l.Kind == KindBool && r.Kind == KindBool:
		eq = l.Bool == r.Bool
	case l.Kind == KindString && r.Kind == KindString:
		eq = l.Str == r.Str
	case l.Kind == KindDate && r.Kind == KindDate:
		eq = l.Date.Equal(r.Date)
	default:
		eq = false
	}
	if op == OpNeq {
		return Bool(!eq)
	}
	return Bool(eq)
}

func compareOrder(op BinaryOp, l, r Value) Value {
	if l.IsUndefined() || r.IsUndefined() {
		return Bool(false)
	}
	var cmp int
	switch {
	case l.Kind == KindNumber && r.Kind == KindNumber:
		cmp = cmpFloat(l.Num, r.Num)
	case l.Kind == KindDate && r.Kind == KindDate:
		switch {
		case l.Date.Before(r.Date):
			cmp = -1
		case l.Date.After(r.Date):
			cmp = 1
		default:
			cmp = 0
		}
	case l.Kind == KindString && r.Kind == KindString:
		cmp = cmpString(l.Str, r.Str)
	default:
		return Bool(false)
	}
	switch op {
	case OpLt:
		return Bool(cmp < 0)
	case OpLte:
		return Bool(cmp <= 0)
	case OpGt:
		return Bool(cmp > 0)
	case OpGte:
		return Bool(cmp >= 0)
	}
	return Bool(false)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
