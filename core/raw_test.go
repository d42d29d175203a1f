package core

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestNewRaw(t *testing.T) {
	t.Run("wraps primitives with canonical repr", func(t *testing.T) {
		r, err := NewRaw(cty.NumberIntVal(3))
		require.NoError(t, err)
		assert.Equal(t, "number|3", r.Repr())
		assert.Equal(t, KindRaw, r.Kind())
		assert.Empty(t, r.References())
	})

	t.Run("rejects nil", func(t *testing.T) {
		_, err := NewRaw(cty.NilVal)
		assert.Error(t, err)
	})

	t.Run("rejects capsule-like non-raw types", func(t *testing.T) {
		caps := cty.Capsule("opaque", reflect.TypeOf(0))
		_, err := NewRaw(cty.CapsuleVal(caps, new(int)))
		assert.ErrorContains(t, err, "not a serializable raw type")
	})
}

func TestVal(t *testing.T) {
	t.Run("infers types for plain Go values", func(t *testing.T) {
		n, err := Val(3)
		require.NoError(t, err)
		assert.Equal(t, "number|3", n.Repr())

		n, err = Val("hi")
		require.NoError(t, err)
		assert.Equal(t, `string|"hi"`, n.Repr())

		n, err = Val([]int{1, 2})
		require.NoError(t, err)
		assert.Equal(t, KindRaw, n.Kind())
	})

	t.Run("passes nodes through unchanged", func(t *testing.T) {
		orig := Int(7)
		n, err := Val(orig)
		require.NoError(t, err)
		assert.Equal(t, Node(orig), n)
	})

	t.Run("rejects unserializable values", func(t *testing.T) {
		_, err := Val(func() {})
		assert.Error(t, err)
	})
}

func TestRawEquality(t *testing.T) {
	assert.True(t, Int(3).EqualNode(Int(3)))
	assert.False(t, Int(3).EqualNode(Int(4)))
	assert.False(t, Int(3).EqualNode(Str("3")))
}

func TestIsRawType(t *testing.T) {
	assert.True(t, IsRawType(cty.Number))
	assert.True(t, IsRawType(cty.List(cty.String)))
	assert.True(t, IsRawType(cty.Tuple([]cty.Type{cty.Number, cty.Bool})))
	assert.True(t, IsRawType(cty.Object(map[string]cty.Type{"a": cty.Number})))
	assert.False(t, IsRawType(cty.NilType))
	assert.False(t, IsRawType(cty.List(cty.Capsule("x", reflect.TypeOf(0)))))
}
