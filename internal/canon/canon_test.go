package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestValueString(t *testing.T) {
	t.Run("primitives carry their type name", func(t *testing.T) {
		s, err := ValueString(cty.NumberIntVal(3))
		require.NoError(t, err)
		assert.Equal(t, "number|3", s)

		s, err = ValueString(cty.StringVal("hello"))
		require.NoError(t, err)
		assert.Equal(t, `string|"hello"`, s)

		s, err = ValueString(cty.BoolVal(true))
		require.NoError(t, err)
		assert.Equal(t, "bool|true", s)
	})

	t.Run("object keys are emitted in sorted order", func(t *testing.T) {
		v := cty.ObjectVal(map[string]cty.Value{
			"b": cty.NumberIntVal(2),
			"a": cty.NumberIntVal(1),
		})
		s, err := ValueString(v)
		require.NoError(t, err)
		assert.Contains(t, s, `{"a":1,"b":2}`)
	})

	t.Run("nil value is rejected", func(t *testing.T) {
		_, err := ValueString(cty.NilVal)
		assert.Error(t, err)
	})
}

func TestHash(t *testing.T) {
	t.Run("deterministic and short", func(t *testing.T) {
		a := Hash("task", "x", "number|1")
		b := Hash("task", "x", "number|1")
		assert.Equal(t, a, b)
		assert.Len(t, a, 16)
	})

	t.Run("length prefixing prevents field boundary collisions", func(t *testing.T) {
		assert.NotEqual(t, Hash("ab", "c"), Hash("a", "bc"))
	})
}

func TestHashPairs(t *testing.T) {
	pairs := map[string]string{"b": "2", "a": "1"}
	again := map[string]string{"a": "1", "b": "2"}
	assert.Equal(t, HashPairs("t", pairs), HashPairs("t", again))
	assert.NotEqual(t, HashPairs("t", pairs), HashPairs("u", pairs))
	assert.NotEqual(t, HashPairs("t", pairs), HashPairs("t", map[string]string{"a": "1"}))
}
