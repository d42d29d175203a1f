package workflow

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Parameter is a named, typed external value lifted into the graph as an
// input. Its lifetime is that of the owning workflow.
type Parameter struct {
	wf   *Workflow
	name string
	typ  cty.Type
	// def is the default value, cty.NilVal when none was captured.
	def cty.Value
}

// Name returns the parameter's graph-visible name.
func (p *Parameter) Name() string { return p.name }

// Type returns the declared type.
func (p *Parameter) Type() cty.Type { return p.typ }

// Default returns the captured default value, or cty.NilVal.
func (p *Parameter) Default() cty.Value { return p.def }

// Workflow returns the owning workflow.
func (p *Parameter) Workflow() *Workflow { return p.wf }

// AddParameter declares an external input on this workflow. Declaring the
// same name twice is idempotent when the types agree and an error when
// they do not, since one graph input cannot carry two contracts.
func (w *Workflow) AddParameter(name string, typ cty.Type, def cty.Value) (*Parameter, error) {
	if w.frozen {
		return nil, fmt.Errorf("workflow is frozen; cannot add parameter %q", name)
	}
	if typ == cty.NilType {
		return nil, fmt.Errorf("parameter %q must carry an explicit type", name)
	}
	if existing, ok := w.params[name]; ok {
		if !existing.typ.Equals(typ) {
			return nil, fmt.Errorf(
				"parameter %q redeclared as %s, previously %s",
				name, typ.FriendlyName(), existing.typ.FriendlyName(),
			)
		}
		if existing.def == cty.NilVal {
			existing.def = def
		}
		return existing, nil
	}
	p := &Parameter{wf: w, name: name, typ: typ, def: def}
	w.params[name] = p
	return p, nil
}

// Ref returns a reference to this parameter's value.
func (p *Parameter) Ref() *ParameterReference {
	return &ParameterReference{param: p, typ: p.typ}
}
