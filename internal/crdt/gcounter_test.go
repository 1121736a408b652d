package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

func TestGCounter_IncrementAccumulatesOwnSlot(t *testing.T) {
	g := NewGCounter("c1", "A")

	_, err := g.Increment(3)
	require.NoError(t, err)
	_, err = g.Increment(2)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), g.Value())
}

func TestGCounter_ZeroIncrementDoesNotAdvanceClock(t *testing.T) {
	g := NewGCounter("c1", "A")
	before := g.VectorClock()

	_, err := g.Increment(0)
	require.NoError(t, err)

	assert.Equal(t, before, g.VectorClock())
}

// S1 from the spec's testable-properties scenarios: replicas A, B, C
// start at 0; after arbitrary pairwise merges every replica reports 10.
func TestGCounter_ConvergenceScenarioS1(t *testing.T) {
	a := NewGCounter("counter", "A")
	b := NewGCounter("counter", "B")
	c := NewGCounter("counter", "C")

	_, err := a.Increment(3)
	require.NoError(t, err)
	_, err = b.Increment(5)
	require.NoError(t, err)
	_, err = c.Increment(2)
	require.NoError(t, err)

	require.NoError(t, a.Merge(b))
	require.NoError(t, a.Merge(c))
	require.NoError(t, b.Merge(a))
	require.NoError(t, c.Merge(b))

	assert.Equal(t, uint64(10), a.Value())
	assert.Equal(t, uint64(10), b.Value())
	assert.Equal(t, uint64(10), c.Value())
}

func TestGCounter_MergeIsCommutative(t *testing.T) {
	a1 := NewGCounter("c", "A")
	b1 := NewGCounter("c", "B")
	_, err := a1.Increment(4)
	require.NoError(t, err)
	_, err = b1.Increment(6)
	require.NoError(t, err)

	ab := a1.Clone().(*GCounter)
	require.NoError(t, ab.Merge(b1))

	ba := b1.Clone().(*GCounter)
	require.NoError(t, ba.Merge(a1))

	assert.True(t, ab.Equals(ba))
}

func TestGCounter_ApplyOperationIsIdempotent(t *testing.T) {
	g := NewGCounter("c", "A")
	env := NewOperationEnvelope("env-1", "B", KindGCounter, "c", GCounterIncrementOp{Replica: "B", Count: 7}, NewVectorClock().Increment("B"))

	require.NoError(t, g.ApplyOperation(env))
	require.NoError(t, g.ApplyOperation(env))

	assert.Equal(t, uint64(7), g.Value())
}

func TestGCounter_SerializationRoundTrip(t *testing.T) {
	g := NewGCounter("c", "A")
	_, err := g.Increment(9)
	require.NoError(t, err)

	data, err := g.Serialize()
	require.NoError(t, err)

	other := NewGCounter("c", "A")
	require.NoError(t, other.Deserialize(data))

	assert.True(t, g.Equals(other))
}

func TestGCounter_KindMismatchOnMerge(t *testing.T) {
	g := NewGCounter("c", "A")
	s := NewGSet("c", "B")

	err := g.Merge(s)
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, crdterrors.KindMismatch, ce.Code)
}

func TestGCounter_CloneIsIndependent(t *testing.T) {
	g := NewGCounter("c", "A")
	_, err := g.Increment(1)
	require.NoError(t, err)

	clone := g.Clone().(*GCounter)
	_, err = clone.Increment(10)
	require.NoError(t, err)

	assert.NotEqual(t, g.Value(), clone.Value())
}
