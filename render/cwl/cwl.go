// Package cwl renders a workflow as CWL-like structured documents: typed
// inputs from parameters, one step entry per graph step with source or
// default bindings, and an outputs section wired to the result.
package cwl

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/render"
	"github.com/vk/workplan/workflow"
)

// Renderer implements render.StructuredRenderer.
type Renderer struct{}

// Name implements render.BaseRenderer.
func (Renderer) Name() string { return "cwl" }

// DefaultConfig implements render.BaseRenderer.
func (Renderer) DefaultConfig() render.Config {
	return render.Config{
		"allow_complex_types": false,
		"cwl_version":         "1.2",
	}
}

// Render implements render.StructuredRenderer. It emits the root document
// under render.RootKey and one document per nested subworkflow, keyed by
// the nested task's name.
func (r Renderer) Render(wf *workflow.Workflow, cfg render.Config) (map[string]any, error) {
	docs := make(map[string]any)
	if err := r.renderInto(docs, render.RootKey, wf, cfg); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r Renderer) renderInto(docs map[string]any, key string, wf *workflow.Workflow, cfg render.Config) error {
	doc, err := r.document(wf, cfg)
	if err != nil {
		return fmt.Errorf("render %s: %w", key, err)
	}
	docs[key] = doc

	for _, step := range wf.OrderedSteps() {
		if step.Kind() != workflow.NestedStep {
			continue
		}
		name := step.Task().Name
		if _, done := docs[name]; done {
			continue
		}
		if err := r.renderInto(docs, name, step.Child(), cfg); err != nil {
			return err
		}
	}
	return nil
}

func (r Renderer) document(wf *workflow.Workflow, cfg render.Config) (map[string]any, error) {
	allowComplex, _ := cfg["allow_complex_types"].(bool)
	version, _ := cfg["cwl_version"].(string)

	inputs := make(map[string]any)
	for _, p := range wf.FindParameters() {
		typ, err := cwlType(p.Type(), allowComplex)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name(), err)
		}
		entry := map[string]any{
			"label": p.Name(),
			"type":  typ,
		}
		if p.Default() != cty.NilVal {
			entry["default"] = goValue(p.Default())
		}
		inputs[p.Name()] = entry
	}

	steps := make(map[string]any)
	for _, step := range wf.OrderedSteps() {
		entry, err := r.stepEntry(step, allowComplex)
		if err != nil {
			return nil, err
		}
		steps[step.Name()] = entry
	}

	outputs, err := r.outputs(wf, allowComplex)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"cwlVersion": version,
		"class":      "Workflow",
		"inputs":     inputs,
		"outputs":    outputs,
		"steps":      steps,
	}, nil
}

func (r Renderer) stepEntry(step *workflow.Step, allowComplex bool) (map[string]any, error) {
	in := make(map[string]any)
	for _, name := range step.ArgNames() {
		node, _ := step.Arg(name)
		binding, err := argBinding(node)
		if err != nil {
			return nil, fmt.Errorf("step %s, argument %s: %w", step.Name(), name, err)
		}
		in[name] = binding
	}
	run := step.Task().Name
	if step.Kind() == workflow.NestedStep {
		run = run + ".cwl"
	}
	return map[string]any{
		"run": run,
		"in":  in,
		"out": []string{"out"},
	}, nil
}

func (r Renderer) outputs(wf *workflow.Workflow, allowComplex bool) (map[string]any, error) {
	result := wf.Result()
	if result == nil {
		return map[string]any{}, nil
	}
	typ, err := cwlType(result.Type(), allowComplex)
	if err != nil {
		// The result type falls back to Any rather than failing the
		// whole document over an expression with no concrete type.
		typ = "Any"
	}
	entry := map[string]any{
		"label": "out",
		"type":  typ,
	}
	if ref, ok := result.(core.Reference); ok {
		entry["outputSource"] = ref.Name()
	} else {
		expr, err := exprString(result)
		if err != nil {
			return nil, fmt.Errorf("workflow output: %w", err)
		}
		entry["valueFrom"] = "$(" + expr + ")"
	}
	return map[string]any{"out": entry}, nil
}

// argBinding maps one step argument to its CWL input binding: a source for
// references, a default for concrete values, and a valueFrom expression
// for composites.
func argBinding(node core.Node) (map[string]any, error) {
	switch node.Kind() {
	case core.KindRaw:
		v, err := core.AsRaw(node)
		if err != nil {
			return nil, err
		}
		return map[string]any{"default": goValue(v)}, nil
	case core.KindReference:
		ref, ok := node.(core.Reference)
		if !ok {
			return nil, fmt.Errorf("reference node of unknown shape %T", node)
		}
		return map[string]any{"source": ref.Name()}, nil
	default:
		expr, err := exprString(node)
		if err != nil {
			return nil, err
		}
		return map[string]any{"valueFrom": "$(" + expr + ")"}, nil
	}
}

// exprString prints a composite expression in a conventional infix form
// using display names for references.
func exprString(node core.Node) (string, error) {
	switch n := node.(type) {
	case core.Raw:
		data, err := json.Marshal(goValue(n.Value()))
		if err != nil {
			return "", err
		}
		return string(data), nil
	case core.Binary:
		l, err := exprString(n.L)
		if err != nil {
			return "", err
		}
		r, err := exprString(n.R)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + string(n.Op) + " " + r + ")", nil
	case core.Unary:
		x, err := exprString(n.X)
		if err != nil {
			return "", err
		}
		op := string(n.Op)
		if n.Op == core.OpNeg {
			op = "-"
		}
		return op + "(" + x + ")", nil
	case core.Reference:
		return n.Name(), nil
	default:
		return "", fmt.Errorf("cannot express node of kind %v", node.Kind())
	}
}

// cwlType maps a declared cty type onto the CWL type vocabulary.
func cwlType(t cty.Type, allowComplex bool) (any, error) {
	switch {
	case t == cty.NilType || t == cty.DynamicPseudoType:
		return "Any", nil
	case t == cty.Number:
		return "double", nil
	case t == cty.String:
		return "string", nil
	case t == cty.Bool:
		return "boolean", nil
	case t.IsListType() || t.IsSetType():
		items, err := cwlType(t.ElementType(), allowComplex)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case t.IsTupleType():
		elems := t.TupleElementTypes()
		items := any("Any")
		if len(elems) > 0 {
			var err error
			items, err = cwlType(elems[0], allowComplex)
			if err != nil {
				return nil, err
			}
		}
		return map[string]any{"type": "array", "items": items}, nil
	case t.IsObjectType():
		if !allowComplex {
			return nil, fmt.Errorf("complex type %s disabled; enable allow_complex_types", t.FriendlyName())
		}
		fields := make(map[string]any)
		for name, at := range t.AttributeTypes() {
			ft, err := cwlType(at, allowComplex)
			if err != nil {
				return nil, err
			}
			fields[name] = ft
		}
		return map[string]any{"type": "record", "fields": fields}, nil
	case t.IsMapType():
		if !allowComplex {
			return nil, fmt.Errorf("complex type %s disabled; enable allow_complex_types", t.FriendlyName())
		}
		return "Any", nil
	default:
		return nil, fmt.Errorf("type %s has no CWL equivalent", t.FriendlyName())
	}
}

// goValue lowers a cty value to plain Go data for YAML serialization.
// Whole numbers come out as int64 so defaults read naturally.
func goValue(v cty.Value) any {
	if v == cty.NilVal || v.IsNull() {
		return nil
	}
	t := v.Type()
	switch {
	case t == cty.Number:
		bf := v.AsBigFloat()
		if i, acc := bf.Int64(); acc == big.Exact {
			return i
		}
		f, _ := bf.Float64()
		return f
	case t == cty.String:
		return v.AsString()
	case t == cty.Bool:
		return v.True()
	case t.IsListType() || t.IsSetType() || t.IsTupleType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, goValue(ev))
		}
		return out
	case t.IsMapType() || t.IsObjectType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			out[kv.AsString()] = goValue(ev)
		}
		return out
	default:
		return nil
	}
}
