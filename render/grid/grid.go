// Package grid renders a workflow as an HCL grid: one step block per graph
// step in sequence order, an arguments block carrying the bindings, and
// explicit depends_on edges. The output is the same dialect the program
// front end consumes.
package grid

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/render"
	"github.com/vk/workplan/workflow"
)

// Renderer implements render.RawRenderer.
type Renderer struct{}

// Name implements render.BaseRenderer.
func (Renderer) Name() string { return "grid" }

// DefaultConfig implements render.BaseRenderer.
func (Renderer) DefaultConfig() render.Config {
	return render.Config{}
}

// RenderRaw implements render.RawRenderer, emitting the root grid under
// render.RootKey and one grid per nested subworkflow keyed by task name.
func (r Renderer) RenderRaw(wf *workflow.Workflow, cfg render.Config) (map[string]string, error) {
	docs := make(map[string]string)
	if err := r.renderInto(docs, render.RootKey, wf); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r Renderer) renderInto(docs map[string]string, key string, wf *workflow.Workflow) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for _, p := range wf.FindParameters() {
		block := body.AppendNewBlock("param", []string{p.Name()})
		block.Body().SetAttributeRaw("type", hclwrite.TokensForIdentifier(typeExpr(p.Type())))
		if p.Default() != cty.NilVal {
			block.Body().SetAttributeValue("default", p.Default())
		}
		body.AppendNewline()
	}

	for _, step := range wf.OrderedSteps() {
		if err := r.stepBlock(body, step); err != nil {
			return fmt.Errorf("render %s: %w", key, err)
		}
		body.AppendNewline()

		if step.Kind() == workflow.NestedStep {
			name := step.Task().Name
			if _, done := docs[name]; !done {
				if err := r.renderInto(docs, name, step.Child()); err != nil {
					return err
				}
			}
		}
	}

	if result := wf.Result(); result != nil {
		tokens, err := nodeTokens(result)
		if err != nil {
			return fmt.Errorf("render %s result: %w", key, err)
		}
		body.SetAttributeRaw("result", tokens)
	}

	docs[key] = string(hclwrite.Format(f.Bytes()))
	return nil
}

func (r Renderer) stepBlock(body *hclwrite.Body, step *workflow.Step) error {
	block := body.AppendNewBlock("step", []string{step.Task().Name, step.Name()})
	sb := block.Body()
	if step.Kind() == workflow.NestedStep {
		sb.SetAttributeValue("workflow", cty.StringVal(step.Task().Name))
	}

	args := sb.AppendNewBlock("arguments", nil).Body()
	deps := make(map[string]struct{})
	for _, name := range step.ArgNames() {
		node, _ := step.Arg(name)
		tokens, err := nodeTokens(node)
		if err != nil {
			return fmt.Errorf("step %s, argument %s: %w", step.Name(), name, err)
		}
		args.SetAttributeRaw(name, tokens)

		for _, ref := range node.References() {
			if sr, ok := ref.Root().(*workflow.StepReference); ok {
				deps[sr.Step().Name()] = struct{}{}
			}
		}
	}

	if len(deps) > 0 {
		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}
		sort.Strings(names)
		vals := make([]cty.Value, len(names))
		for i, name := range names {
			vals[i] = cty.StringVal(name)
		}
		sb.SetAttributeValue("depends_on", cty.TupleVal(vals))
	}
	return nil
}

// nodeTokens builds the HCL expression for one bound node: literals for
// raw values, traversals for references, and infix operators for
// composite expressions.
func nodeTokens(node core.Node) (hclwrite.Tokens, error) {
	switch n := node.(type) {
	case core.Raw:
		return hclwrite.TokensForValue(n.Value()), nil
	case core.Binary:
		l, err := nodeTokens(n.L)
		if err != nil {
			return nil, err
		}
		r, err := nodeTokens(n.R)
		if err != nil {
			return nil, err
		}
		return wrapParens(join(l, opTokens(n.Op), r)), nil
	case core.Unary:
		x, err := nodeTokens(n.X)
		if err != nil {
			return nil, err
		}
		return join(opTokens(n.Op), wrapParens(x)), nil
	case core.Reference:
		trav, err := traversalFor(n)
		if err != nil {
			return nil, err
		}
		return hclwrite.TokensForTraversal(trav), nil
	default:
		return nil, fmt.Errorf("cannot express node of kind %v", node.Kind())
	}
}

// traversalFor maps a reference onto the grid namespace: step outputs as
// step.<name>.out, parameters as param.<name>, with field and index
// derivations appended.
func traversalFor(ref core.Reference) (hcl.Traversal, error) {
	switch r := ref.(type) {
	case *workflow.StepReference:
		return hcl.Traversal{
			hcl.TraverseRoot{Name: "step"},
			hcl.TraverseAttr{Name: r.Step().Name()},
			hcl.TraverseAttr{Name: "out"},
		}, nil
	case *workflow.ParameterReference:
		return hcl.Traversal{
			hcl.TraverseRoot{Name: "param"},
			hcl.TraverseAttr{Name: r.Parameter().Name()},
		}, nil
	case *workflow.FieldReference:
		parent, err := traversalFor(r.Parent())
		if err != nil {
			return nil, err
		}
		return append(parent, hcl.TraverseAttr{Name: r.Field()}), nil
	case *workflow.IteratedReference:
		parent, err := traversalFor(r.Parent())
		if err != nil {
			return nil, err
		}
		return append(parent, hcl.TraverseIndex{Key: cty.NumberIntVal(int64(r.Index()))}), nil
	default:
		return nil, fmt.Errorf("reference of unknown shape %T", ref)
	}
}

func opTokens(op core.Op) hclwrite.Tokens {
	var typ hclsyntax.TokenType
	text := string(op)
	switch op {
	case core.OpAdd:
		typ = hclsyntax.TokenPlus
	case core.OpSub, core.OpNeg:
		typ, text = hclsyntax.TokenMinus, "-"
	case core.OpMul:
		typ = hclsyntax.TokenStar
	case core.OpDiv:
		typ = hclsyntax.TokenSlash
	case core.OpMod:
		typ = hclsyntax.TokenPercent
	case core.OpEq:
		typ = hclsyntax.TokenEqualOp
	case core.OpAnd:
		typ = hclsyntax.TokenAnd
	case core.OpOr:
		typ = hclsyntax.TokenOr
	case core.OpNot:
		typ = hclsyntax.TokenBang
	default:
		typ = hclsyntax.TokenIdent
	}
	return hclwrite.Tokens{{Type: typ, Bytes: []byte(text)}}
}

func wrapParens(tokens hclwrite.Tokens) hclwrite.Tokens {
	out := hclwrite.Tokens{{Type: hclsyntax.TokenOParen, Bytes: []byte("(")}}
	out = append(out, tokens...)
	return append(out, &hclwrite.Token{Type: hclsyntax.TokenCParen, Bytes: []byte(")")})
}

func join(parts ...hclwrite.Tokens) hclwrite.Tokens {
	var out hclwrite.Tokens
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// typeExpr prints a cty type in HCL type-expression syntax.
func typeExpr(t cty.Type) string {
	switch {
	case t == cty.Number:
		return "number"
	case t == cty.String:
		return "string"
	case t == cty.Bool:
		return "bool"
	case t.IsListType():
		return "list(" + typeExpr(t.ElementType()) + ")"
	case t.IsSetType():
		return "set(" + typeExpr(t.ElementType()) + ")"
	case t.IsMapType():
		return "map(" + typeExpr(t.ElementType()) + ")"
	case t.IsTupleType():
		out := "tuple(["
		for i, et := range t.TupleElementTypes() {
			if i > 0 {
				out += ", "
			}
			out += typeExpr(et)
		}
		return out + "])"
	case t.IsObjectType():
		out := "object({"
		names := make([]string, 0, len(t.AttributeTypes()))
		for name := range t.AttributeTypes() {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				out += ", "
			}
			out += name + " = " + typeExpr(t.AttributeType(name))
		}
		return out + "})"
	default:
		return "any"
	}
}
