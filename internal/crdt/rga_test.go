package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGA_LocalInsertAndDelete(t *testing.T) {
	r := NewRGA("doc", "A", NewIDGenerator("A", 4))

	_, _, err := r.Insert(0, 'a')
	require.NoError(t, err)
	_, _, err = r.Insert(1, 'b')
	require.NoError(t, err)
	_, _, err = r.Insert(2, 'c')
	require.NoError(t, err)
	assert.Equal(t, "abc", r.Text())

	_, err = r.Delete(1)
	require.NoError(t, err)
	assert.Equal(t, "ac", r.Text())
}

// S5 from the spec's testable-properties scenarios: starting empty, A
// inserts 'x' at position 0, B concurrently inserts 'y' at position 0
// (both with no predecessor). After exchange, both replicas converge
// on "xy" or "yx" consistently depending on which ElementId sorts
// higher under the canonical (descending) order — the key property is
// that both replicas agree.
func TestRGA_ConcurrentInsertInterleaveScenarioS5(t *testing.T) {
	a := NewRGA("doc", "A", NewIDGenerator("A", 4))
	b := NewRGA("doc", "B", NewIDGenerator("B", 4))

	idA, _, err := a.Insert(0, 'x')
	require.NoError(t, err)
	idB, _, err := b.Insert(0, 'y')
	require.NoError(t, err)

	require.NoError(t, a.Merge(b))
	require.NoError(t, b.Merge(a))

	assert.Equal(t, a.Text(), b.Text())
	assert.Len(t, a.Text(), 2)

	// The higher ElementId under descending string order is the first
	// sibling visited, so it appears first in the converged text.
	wantFirst := byte('x')
	if idB > idA {
		wantFirst = 'y'
	}
	assert.Equal(t, wantFirst, a.Text()[0])
}

// S6 from the spec's testable-properties scenarios: A inserts 'a','b',
// 'c' (producing "abc"), deletes position 1; B receives the delete
// before the insert of 'b' arrives, storing a pending tombstone keyed
// by 'b's id, which is reconciled the moment the insert arrives. Final
// text on both replicas is "ac".
func TestRGA_DeleteSurvivesReorderScenarioS6(t *testing.T) {
	idgen := NewIDGenerator("A", 4)
	a := NewRGA("doc", "A", idgen)

	idA, _, err := a.Insert(0, 'a')
	require.NoError(t, err)
	idB, _, err := a.Insert(1, 'b')
	require.NoError(t, err)
	idC, _, err := a.Insert(2, 'c')
	require.NoError(t, err)
	require.Equal(t, "abc", a.Text())

	_, err = a.Delete(1) // deletes 'b'
	require.NoError(t, err)

	insertA := NewOperationEnvelope("e-a", "A", KindRGA, "doc",
		RGAInsertOp{ID: idA, Value: 'a', HasPredecessor: false}, NewVectorClock().Increment("A"))
	insertB := NewOperationEnvelope("e-b", "A", KindRGA, "doc",
		RGAInsertOp{ID: idB, Value: 'b', Predecessor: idA, HasPredecessor: true}, NewVectorClock().Increment("A"))
	insertC := NewOperationEnvelope("e-c", "A", KindRGA, "doc",
		RGAInsertOp{ID: idC, Value: 'c', Predecessor: idB, HasPredecessor: true}, NewVectorClock().Increment("A"))
	deleteB := NewOperationEnvelope("e-del", "A", KindRGA, "doc",
		RGADeleteOp{ID: idB}, NewVectorClock().Increment("A"))

	b := NewRGA("doc", "B", NewIDGenerator("B", 4))
	require.NoError(t, b.ApplyOperation(insertA))
	require.NoError(t, b.ApplyOperation(deleteB)) // arrives before the insert of 'b'
	assert.Equal(t, "a", b.Text())

	require.NoError(t, b.ApplyOperation(insertB)) // reconciles the pending tombstone
	assert.Equal(t, "a", b.Text())                // still tombstoned

	require.NoError(t, b.ApplyOperation(insertC))
	assert.Equal(t, "ac", b.Text())
}

func TestRGA_InsertOperationIsIdempotent(t *testing.T) {
	a := NewRGA("doc", "A", NewIDGenerator("A", 4))
	id, _, err := a.Insert(0, 'z')
	require.NoError(t, err)

	env := NewOperationEnvelope("e", "A", KindRGA, "doc",
		RGAInsertOp{ID: id, Value: 'z', HasPredecessor: false}, NewVectorClock().Increment("A"))

	b := NewRGA("doc", "B", NewIDGenerator("B", 4))
	require.NoError(t, b.ApplyOperation(env))
	require.NoError(t, b.ApplyOperation(env))

	assert.Equal(t, "z", b.Text())
}

func TestRGA_SerializationRoundTrip(t *testing.T) {
	a := NewRGA("doc", "A", NewIDGenerator("A", 4))
	_, _, err := a.Insert(0, 'h')
	require.NoError(t, err)
	_, _, err = a.Insert(1, 'i')
	require.NoError(t, err)

	data, err := a.Serialize()
	require.NoError(t, err)

	other := NewRGA("doc", "A", NewIDGenerator("A", 4))
	require.NoError(t, other.Deserialize(data))

	assert.True(t, a.Equals(other))
	assert.Equal(t, "hi", other.Text())
}

func TestRGA_MergeRejectsValueConflictAsCorruptState(t *testing.T) {
	a := NewRGA("doc", "A", NewIDGenerator("A", 4))
	id, _, err := a.Insert(0, 'x')
	require.NoError(t, err)

	b := NewRGA("doc", "B", NewIDGenerator("B", 4))
	b.records[id] = &rgaRecord{ID: id, Value: 'y', HasPredecessor: false}
	b.rebuildOrder()

	err = a.Merge(b)
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCode("CORRUPT_STATE"), ce.Code)
}
