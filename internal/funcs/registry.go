// Package funcs implements the function registry (C2): named pure
// functions callable from condition expressions. Functions receive
// positional argument values plus the evaluation context and return a
// scalar; they never mutate pattern or block state.
package funcs

import (
	"fmt"

	"patterngraph/internal/expr"
)

// Function is one registry entry: a fixed arity (or -1 for variadic,
// unused by the built-in set) and a pure evaluator.
type Function struct {
	Arity int
	Eval  func(args []expr.Value, ctx *expr.Context) (expr.Value, error)
}

// Registry is the append-only function table. It is built once (NewRegistry)
// and optionally extended by a library consumer via Register before the
// first block graph is validated; after Seal (called by graph.Load) any
// further Register call panics, matching the "immutable after load" rule
// shared by the graph and registry.
type Registry struct {
	fns    map[string]Function
	sealed bool
}

// NewRegistry returns a registry preloaded with the required built-in
// function set from spec section 4.1.
func NewRegistry() *Registry {
	r := &Registry{fns: make(map[string]Function, 16)}
	registerBuiltins(r)
	return r
}

// Register adds (or, before sealing, overwrites) a named function. Panics
// if called after Seal — the registry is append-only at load time, not at
// runtime.
func (r *Registry) Register(name string, fn Function) {
	if r.sealed {
		panic(fmt.Sprintf("funcs: Register(%q) called after registry sealed", name))
	}
	r.fns[name] = fn
}

// Seal freezes the registry. Called once by graph.Load after all consumer
// registrations have had a chance to run.
func (r *Registry) Seal() {
	r.sealed = true
}

// Lookup returns the function registered under name, if any.
func (r *Registry) Lookup(name string) (Function, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Call implements expr.FuncResolver: it dispatches a parsed Call node's
// already-evaluated arguments to the named function. An unknown name or an
// arity mismatch yields expr.Undefined via a non-nil error, which Eval
// absorbs into the engine's uniform "condition not met" outcome — never a
// panic, never a propagated exception.
func (r *Registry) Call(name string, args []expr.Value, ctx *expr.Context) (expr.Value, error) {
	fn, ok := r.fns[name]
	if !ok {
		return expr.Undefined, fmt.Errorf("funcs: unknown function %q", name)
	}
	if fn.Arity >= 0 && len(args) != fn.Arity {
		return expr.Undefined, fmt.Errorf("funcs: %q expects %d args, got %d", name, fn.Arity, len(args))
	}
	return fn.Eval(args, ctx)
}
