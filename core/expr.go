package core

import (
	"github.com/zclconf/go-cty/cty"
)

// Op identifies the operator of a composite expression node.
type Op string

// Binary operators. Comparison and boolean operators compose symbolically
// just like arithmetic ones; none of them evaluate during construction.
const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpMod Op = "%"
	OpEq  Op = "=="
	OpAnd Op = "&&"
	OpOr  Op = "||"

	OpNot Op = "!"
	OpNeg Op = "neg"
)

// Binary is a composite expression over two operands. It retains both
// constituent nodes untouched; renderers decide how to express it.
type Binary struct {
	Op   Op
	L, R Node
}

// Unary is a composite expression over a single operand.
type Unary struct {
	Op Op
	X  Node
}

// Add builds the symbolic sum of two nodes.
func Add(l, r Node) Node { return Binary{Op: OpAdd, L: l, R: r} }

// Sub builds the symbolic difference of two nodes.
func Sub(l, r Node) Node { return Binary{Op: OpSub, L: l, R: r} }

// Mul builds the symbolic product of two nodes.
func Mul(l, r Node) Node { return Binary{Op: OpMul, L: l, R: r} }

// Div builds the symbolic quotient of two nodes.
func Div(l, r Node) Node { return Binary{Op: OpDiv, L: l, R: r} }

// Mod builds the symbolic remainder of two nodes.
func Mod(l, r Node) Node { return Binary{Op: OpMod, L: l, R: r} }

// Eq builds a symbolic equality test. Note that this is an expression in
// the output graph, not a construction-time comparison; see Compare for
// the latter.
func Eq(l, r Node) Node { return Binary{Op: OpEq, L: l, R: r} }

// And builds a symbolic conjunction.
func And(l, r Node) Node { return Binary{Op: OpAnd, L: l, R: r} }

// Or builds a symbolic disjunction.
func Or(l, r Node) Node { return Binary{Op: OpOr, L: l, R: r} }

// Not builds a symbolic negation.
func Not(x Node) Node { return Unary{Op: OpNot, X: x} }

// Neg builds a symbolic arithmetic negation.
func Neg(x Node) Node { return Unary{Op: OpNeg, X: x} }

// Kind implements Node.
func (b Binary) Kind() Kind { return KindBinary }

// Type implements Node: comparisons and boolean composition yield bool,
// arithmetic yields a concrete type only when both operands agree.
func (b Binary) Type() cty.Type {
	switch b.Op {
	case OpEq, OpAnd, OpOr:
		return cty.Bool
	}
	if b.L.Type().Equals(b.R.Type()) {
		return b.L.Type()
	}
	return cty.DynamicPseudoType
}

// Repr implements Node.
func (b Binary) Repr() string {
	return "(" + b.L.Repr() + " " + string(b.Op) + " " + b.R.Repr() + ")"
}

// References implements Node, returning operand references in appearance
// order with duplicates removed.
func (b Binary) References() []Reference {
	return dedupRefs(append(b.L.References(), b.R.References()...))
}

// EqualNode implements Node.
func (b Binary) EqualNode(other Node) bool {
	o, ok := other.(Binary)
	return ok && b.Op == o.Op && b.L.EqualNode(o.L) && b.R.EqualNode(o.R)
}

// Kind implements Node.
func (u Unary) Kind() Kind { return KindUnary }

// Type implements Node.
func (u Unary) Type() cty.Type {
	if u.Op == OpNot {
		return cty.Bool
	}
	return u.X.Type()
}

// Repr implements Node.
func (u Unary) Repr() string {
	return string(u.Op) + "(" + u.X.Repr() + ")"
}

// References implements Node.
func (u Unary) References() []Reference {
	return u.X.References()
}

// EqualNode implements Node.
func (u Unary) EqualNode(other Node) bool {
	o, ok := other.(Unary)
	return ok && u.Op == o.Op && u.X.EqualNode(o.X)
}

func dedupRefs(refs []Reference) []Reference {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, r := range refs {
		key := r.Repr()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
