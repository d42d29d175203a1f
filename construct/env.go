package construct

import (
	"github.com/zclconf/go-cty/cty"
)

// binding is one entry of the construction environment.
type binding struct {
	typ cty.Type
	val cty.Value
	// typed records whether the entry carries an explicit type; only
	// typed entries may become workflow parameters.
	typed bool
	// atBuild marks a construction-time-only value: it is constant
	// folded into the step instead of becoming a graph input.
	atBuild bool
}

// Env is the explicit environment that task capture lists resolve against.
// It replaces any inspection of enclosing scopes: a task declares which
// global names it reads, and construction looks each one up here.
type Env struct {
	bindings map[string]binding
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{bindings: make(map[string]binding)}
}

// Typed declares a module-scope value with an explicit type. The value may
// be cty.NilVal when the parameter has no default.
func (e *Env) Typed(name string, typ cty.Type, val cty.Value) *Env {
	e.bindings[name] = binding{typ: typ, val: val, typed: true}
	return e
}

// Untyped declares a module-scope value without a type annotation. Such a
// value exists but cannot become a parameter; capturing it is a
// construction error that names it.
func (e *Env) Untyped(name string, val cty.Value) *Env {
	e.bindings[name] = binding{val: val}
	return e
}

// AtBuild declares a construction-time-only value. Captures of it are
// constant-folded into the step arguments and never become graph inputs.
func (e *Env) AtBuild(name string, val cty.Value) *Env {
	typ := cty.NilType
	if val != cty.NilVal {
		typ = val.Type()
	}
	e.bindings[name] = binding{typ: typ, val: val, typed: true, atBuild: true}
	return e
}

func (e *Env) lookup(name string) (binding, bool) {
	if e == nil {
		return binding{}, false
	}
	bnd, ok := e.bindings[name]
	return bnd, ok
}
