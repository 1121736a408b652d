package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGSet_HasOnceTrueStaysTrue(t *testing.T) {
	s := NewGSet("set", "A")

	_, err := s.Add("x")
	require.NoError(t, err)
	assert.True(t, s.Contains("x"))

	_, err = s.Add("y")
	require.NoError(t, err)
	assert.True(t, s.Contains("x"))
	assert.True(t, s.Contains("y"))
}

func TestGSet_AddIsIdempotent(t *testing.T) {
	s := NewGSet("set", "A")
	before := s.VectorClock()

	_, err := s.Add("x")
	require.NoError(t, err)
	afterFirst := s.VectorClock()

	_, err = s.Add("x")
	require.NoError(t, err)

	assert.NotEqual(t, before, afterFirst)
	assert.Equal(t, afterFirst, s.VectorClock())
}

func TestGSet_MergeIsUnion(t *testing.T) {
	a := NewGSet("set", "A")
	b := NewGSet("set", "B")
	_, err := a.Add("x")
	require.NoError(t, err)
	_, err = b.Add("y")
	require.NoError(t, err)

	require.NoError(t, a.Merge(b))

	assert.Equal(t, []string{"x", "y"}, a.Elements())
}

func TestGSet_SerializationRoundTrip(t *testing.T) {
	s := NewGSet("set", "A")
	_, err := s.Add("a")
	require.NoError(t, err)
	_, err = s.Add("b")
	require.NoError(t, err)

	data, err := s.Serialize()
	require.NoError(t, err)

	other := NewGSet("set", "A")
	require.NoError(t, other.Deserialize(data))

	assert.True(t, s.Equals(other))
}
