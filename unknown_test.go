package protostream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownFieldSet(t *testing.T) {
	data := []byte{
		0x08, 0x96, 0x01, // 1: varint 150
		0x12, 0x01, 'x', // 2: "x"
		0x1D, 0x01, 0x00, 0x00, 0x00, // 3: fixed32
		0x23, 0x08, 0x01, 0x24, // 4: group
		0x08, 0x02, // 1 again
	}

	var set UnknownFieldSet
	require.NoError(t, set.UnmarshalBinary(data))
	assert.Equal(t, 5, set.Len())
	assert.Equal(t, len(data), set.Size())

	t.Run("ArrivalOrderPreserved", func(t *testing.T) {
		out, err := set.MarshalBinary()
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("Get", func(t *testing.T) {
		ones := set.Get(1)
		require.Len(t, ones, 2)
		assert.Equal(t, []byte{0x96, 0x01}, ones[0].Raw)
		assert.Equal(t, []byte{0x02}, ones[1].Raw)
		assert.Equal(t, []byte{0x01, 'x'}, set.Get(2)[0].Raw)
		assert.Empty(t, set.Get(9))
	})

	t.Run("TruncatedInputRejected", func(t *testing.T) {
		var s UnknownFieldSet
		err := s.UnmarshalBinary(data[:4])
		assert.ErrorIs(t, err, ErrTruncatedInput)
	})

	t.Run("NilSetIsEmpty", func(t *testing.T) {
		var s *UnknownFieldSet
		assert.True(t, s.IsEmpty())
		assert.Zero(t, s.Size())
	})
}
