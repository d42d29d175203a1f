package core

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Kind discriminates the closed set of expression node variants.
type Kind int

const (
	// KindRaw is a concrete, serializable value.
	KindRaw Kind = iota
	// KindReference is a symbolic handle to a not-yet-computed value.
	KindReference
	// KindBinary is a two-operand composite expression.
	KindBinary
	// KindUnary is a one-operand composite expression.
	KindUnary
)

// Node is a single vertex in a symbolic expression tree.
//
// A node never holds a computed value unless it is a raw leaf; everything
// else records only enough information to name its future sources.
type Node interface {
	// Kind reports which variant this node is.
	Kind() Kind
	// Type is the declared or derived type of the eventual value.
	// cty.DynamicPseudoType when unknown.
	Type() cty.Type
	// Repr is the canonical, hash-stable representation used for step
	// identity. It must be deterministic across processes.
	Repr() string
	// References returns every reference reachable from this node, in a
	// deterministic order.
	References() []Reference
	// EqualNode compares two expressions structurally.
	EqualNode(other Node) bool
}

// Reference is a symbolic handle to a value that a workflow engine will
// compute later: a step output or an externally captured parameter.
// Derived references (field access, iteration) keep a back-reference to
// their parent and delegate identity to it.
type Reference interface {
	Node
	// Name is the display name for the reference target, possibly
	// remapped by the owning workflow (e.g. after id simplification).
	Name() string
	// Root unwraps field and iteration derivations down to the base
	// step or parameter reference.
	Root() Reference
}

// UnevaluatableError reports that a reference was treated as if it held a
// runtime value, for example by coercing it to a concrete number or
// comparing it against one during construction.
type UnevaluatableError struct {
	Name string
}

func (e *UnevaluatableError) Error() string {
	return fmt.Sprintf("this reference, %s, cannot be evaluated during construction", e.Name)
}

// AsRaw extracts the concrete value from a node. Only raw leaves have one;
// any node containing references fails with UnevaluatableError.
func AsRaw(n Node) (cty.Value, error) {
	if r, ok := n.(Raw); ok {
		return r.Value(), nil
	}
	name := n.Repr()
	if refs := n.References(); len(refs) > 0 {
		name = refs[0].Name()
	}
	return cty.NilVal, &UnevaluatableError{Name: name}
}

// Compare checks two nodes for equality the only way that is legal during
// construction: structurally. Comparing a symbolic node against a concrete
// value is a category error and fails with UnevaluatableError, since the
// symbolic side has no value yet.
func Compare(a, b Node) (bool, error) {
	aSym := a.Kind() != KindRaw
	bSym := b.Kind() != KindRaw
	if aSym != bSym {
		sym := a
		if bSym {
			sym = b
		}
		name := sym.Repr()
		if refs := sym.References(); len(refs) > 0 {
			name = refs[0].Name()
		}
		return false, &UnevaluatableError{Name: name}
	}
	return a.EqualNode(b), nil
}
