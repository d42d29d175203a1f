package core

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/workplan/internal/canon"
)

// Raw is an immutable wrapper around a plain serializable value.
//
// Wrapping validates that the value is representable in an output workflow
// (primitives, lists/tuples of raw values, string-keyed maps/objects of raw
// values) and precomputes the canonical encoding so identity never fails
// later.
type Raw struct {
	value cty.Value
	repr  string
}

// NewRaw wraps a cty value, rejecting anything that is not a raw type.
func NewRaw(v cty.Value) (Raw, error) {
	if v == cty.NilVal {
		return Raw{}, fmt.Errorf("raw value must not be nil")
	}
	if !IsRawType(v.Type()) {
		return Raw{}, fmt.Errorf("%s is not a serializable raw type", v.Type().FriendlyName())
	}
	repr, err := canon.ValueString(v)
	if err != nil {
		return Raw{}, err
	}
	return Raw{value: v, repr: repr}, nil
}

// MustRaw is NewRaw for values known to be raw; it panics otherwise.
func MustRaw(v cty.Value) Raw {
	r, err := NewRaw(v)
	if err != nil {
		panic(err)
	}
	return r
}

// Val wraps an arbitrary Go value as a raw node, inferring its cty type.
// cty.Value and Node arguments pass through unchanged.
func Val(v any) (Node, error) {
	switch tv := v.(type) {
	case Node:
		return tv, nil
	case cty.Value:
		return NewRaw(tv)
	}
	typ, err := gocty.ImpliedType(v)
	if err != nil {
		return nil, fmt.Errorf("cannot infer a serializable type: %w", err)
	}
	cv, err := gocty.ToCtyValue(v, typ)
	if err != nil {
		return nil, err
	}
	return NewRaw(cv)
}

// Int wraps an integer as a raw node.
func Int(n int64) Raw { return MustRaw(cty.NumberIntVal(n)) }

// Float wraps a float as a raw node.
func Float(f float64) Raw { return MustRaw(cty.NumberFloatVal(f)) }

// Str wraps a string as a raw node.
func Str(s string) Raw { return MustRaw(cty.StringVal(s)) }

// Bool wraps a boolean as a raw node.
func Bool(b bool) Raw { return MustRaw(cty.BoolVal(b)) }

// Value returns the wrapped concrete value.
func (r Raw) Value() cty.Value { return r.value }

// Kind implements Node.
func (r Raw) Kind() Kind { return KindRaw }

// Type implements Node.
func (r Raw) Type() cty.Type { return r.value.Type() }

// Repr implements Node with the canonical `type|value` encoding.
func (r Raw) Repr() string { return r.repr }

// References implements Node; a raw leaf has none.
func (r Raw) References() []Reference { return nil }

// EqualNode implements Node by comparing canonical encodings.
func (r Raw) EqualNode(other Node) bool {
	o, ok := other.(Raw)
	return ok && r.repr == o.repr
}

func (r Raw) String() string { return r.repr }

// IsRawType reports whether every value of the given type is directly
// serializable: a primitive, an ordered collection of raw types, or a
// string-keyed mapping of raw types.
func IsRawType(t cty.Type) bool {
	switch {
	case t == cty.NilType:
		return false
	case t.IsPrimitiveType():
		return true
	case t.IsListType(), t.IsSetType(), t.IsMapType():
		return IsRawType(t.ElementType())
	case t.IsTupleType():
		for _, et := range t.TupleElementTypes() {
			if !IsRawType(et) {
				return false
			}
		}
		return true
	case t.IsObjectType():
		for _, at := range t.AttributeTypes() {
			if !IsRawType(at) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
