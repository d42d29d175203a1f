package construct

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer(t *testing.T) {
	s := &Sequencer{}
	assert.Equal(t, 0, s.Next())
	assert.Equal(t, 1, s.Next())
	assert.Equal(t, 2, s.Current())
}

func TestSequencerScope(t *testing.T) {
	t.Run("nested scopes count from zero and restore", func(t *testing.T) {
		s := &Sequencer{}
		s.Next()
		s.Next()

		restore := s.Scope()
		assert.Equal(t, 0, s.Next())
		assert.Equal(t, 1, s.Next())
		restore()

		assert.Equal(t, 2, s.Next())
	})

	t.Run("restore runs on error paths when deferred", func(t *testing.T) {
		s := &Sequencer{}
		s.Next()

		failing := func() (err error) {
			defer s.Scope()()
			s.Next()
			return errors.New("body failed")
		}
		require.Error(t, failing())
		assert.Equal(t, 1, s.Next())
	})
}
