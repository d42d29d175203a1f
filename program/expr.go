package program

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workplan/core"
	"github.com/vk/workplan/workflow"
)

// scope resolves the two reference namespaces a program expression may
// use: call.<label>.out for step outputs and param.<name> for declared
// parameters.
type scope struct {
	calls          map[string]core.Node
	params         map[string]*workflow.Parameter
	allowPlainDict bool
}

// nodeFromExpr translates one argument expression into a symbolic node.
// Literals become raw values; traversals become references; operators
// compose symbolically. Anything that would need evaluation against a
// runtime value is rejected here rather than silently computed.
func nodeFromExpr(expr hcl.Expression, sc *scope) (core.Node, error) {
	switch e := expr.(type) {
	case *hclsyntax.LiteralValueExpr:
		raw, err := core.NewRaw(e.Val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Range(), err)
		}
		return raw, nil
	case *hclsyntax.ParenthesesExpr:
		return nodeFromExpr(e.Expression, sc)
	case *hclsyntax.TemplateExpr:
		if len(e.Parts) == 1 {
			return nodeFromExpr(e.Parts[0], sc)
		}
		return literalNode(e, sc)
	case *hclsyntax.ScopeTraversalExpr:
		return referenceFor(e.Traversal, sc)
	case *hclsyntax.RelativeTraversalExpr:
		source, err := nodeFromExpr(e.Source, sc)
		if err != nil {
			return nil, err
		}
		ref, ok := source.(core.Reference)
		if !ok {
			return nil, fmt.Errorf("%s: cannot traverse into a non-reference", e.Range())
		}
		return applyTraversal(ref, e.Traversal, sc)
	case *hclsyntax.BinaryOpExpr:
		return binaryNode(e, sc)
	case *hclsyntax.UnaryOpExpr:
		operand, err := nodeFromExpr(e.Val, sc)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case hclsyntax.OpNegate:
			return core.Neg(operand), nil
		case hclsyntax.OpLogicalNot:
			return core.Not(operand), nil
		default:
			return nil, fmt.Errorf("%s: unsupported unary operator", e.Range())
		}
	default:
		return literalNode(expr, sc)
	}
}

// literalNode evaluates an expression with no variables as a constant.
func literalNode(expr hcl.Expression, sc *scope) (core.Node, error) {
	if len(expr.Variables()) > 0 {
		return nil, fmt.Errorf(
			"%s: references are only supported standalone or in operator expressions", expr.Range(),
		)
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	raw, err := core.NewRaw(val)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expr.Range(), err)
	}
	return raw, nil
}

func binaryNode(e *hclsyntax.BinaryOpExpr, sc *scope) (core.Node, error) {
	l, err := nodeFromExpr(e.LHS, sc)
	if err != nil {
		return nil, err
	}
	r, err := nodeFromExpr(e.RHS, sc)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case hclsyntax.OpAdd:
		return core.Add(l, r), nil
	case hclsyntax.OpSubtract:
		return core.Sub(l, r), nil
	case hclsyntax.OpMultiply:
		return core.Mul(l, r), nil
	case hclsyntax.OpDivide:
		return core.Div(l, r), nil
	case hclsyntax.OpModulo:
		return core.Mod(l, r), nil
	case hclsyntax.OpEqual:
		return core.Eq(l, r), nil
	case hclsyntax.OpNotEqual:
		return core.Not(core.Eq(l, r)), nil
	case hclsyntax.OpLogicalAnd:
		return core.And(l, r), nil
	case hclsyntax.OpLogicalOr:
		return core.Or(l, r), nil
	default:
		return nil, fmt.Errorf("%s: unsupported binary operator", e.Range())
	}
}

// referenceFor resolves an absolute traversal like call.second.out.total
// or param.batch[0].
func referenceFor(trav hcl.Traversal, sc *scope) (core.Node, error) {
	rng := trav.SourceRange()
	if len(trav) < 2 {
		return nil, fmt.Errorf("%s: expected call.<label> or param.<name>", rng)
	}
	head, ok := trav[1].(hcl.TraverseAttr)
	if !ok {
		return nil, fmt.Errorf("%s: expected call.<label> or param.<name>", rng)
	}

	switch trav.RootName() {
	case "call":
		node, ok := sc.calls[head.Name]
		if !ok {
			return nil, fmt.Errorf("%s: no call labelled %q before this point", rng, head.Name)
		}
		rest := trav[2:]
		// The conventional .out names the step's single output and maps
		// onto the reference itself.
		if len(rest) > 0 {
			if attr, ok := rest[0].(hcl.TraverseAttr); ok && attr.Name == "out" {
				rest = rest[1:]
			}
		}
		ref, ok := node.(core.Reference)
		if !ok {
			if len(rest) == 0 {
				return node, nil
			}
			return nil, fmt.Errorf("%s: cannot traverse into call %q", rng, head.Name)
		}
		return applyTraversal(ref, rest, sc)
	case "param":
		param, ok := sc.params[head.Name]
		if !ok {
			return nil, fmt.Errorf("%s: no parameter named %q", rng, head.Name)
		}
		return applyTraversal(param.Ref(), trav[2:], sc)
	default:
		return nil, fmt.Errorf(
			"%s: unknown reference root %q; expected call or param", rng, trav.RootName(),
		)
	}
}

// applyTraversal derives field and index references along the remaining
// traversal parts.
func applyTraversal(ref core.Reference, trav hcl.Traversal, sc *scope) (core.Node, error) {
	current := ref
	for _, part := range trav {
		switch p := part.(type) {
		case hcl.TraverseAttr:
			next, err := workflow.Field(current, p.Name, sc.allowPlainDict)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.SourceRange(), err)
			}
			current = next
		case hcl.TraverseIndex:
			idx, err := indexValue(p.Key)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.SourceRange(), err)
			}
			next, err := workflow.Index(current, idx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.SourceRange(), err)
			}
			current = next
		default:
			return nil, fmt.Errorf("%s: unsupported traversal step", part.SourceRange())
		}
	}
	return current, nil
}

func indexValue(key cty.Value) (int, error) {
	if key.Type() != cty.Number {
		return 0, fmt.Errorf("only integer indexes are supported, got %s", key.Type().FriendlyName())
	}
	idx, acc := key.AsBigFloat().Int64()
	if acc != big.Exact {
		return 0, fmt.Errorf("index must be a whole number")
	}
	return int(idx), nil
}
