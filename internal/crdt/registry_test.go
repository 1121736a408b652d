package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreateIsIdempotentPerId(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	first, err := reg.GetOrCreate(KindGCounter, "votes")
	require.NoError(t, err)
	second, err := reg.GetOrCreate(KindGCounter, "votes")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_GetOrCreateRejectsKindMismatch(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	_, err := reg.GetOrCreate(KindGCounter, "votes")
	require.NoError(t, err)

	_, err = reg.GetOrCreate(KindPNCounter, "votes")
	require.Error(t, err)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCode("KIND_MISMATCH"), ce.Code)
}

func TestRegistry_DispatchAppliesOperationAndLogs(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	env := NewOperationEnvelope("e1", "A", KindGCounter, "votes",
		GCounterIncrementOp{Replica: "A", Count: 5}, NewVectorClock().Increment("A"))

	require.NoError(t, reg.Dispatch(env))

	instance, ok := reg.Get("votes")
	require.True(t, ok)
	gc := instance.(*GCounter)
	assert.Equal(t, uint64(5), gc.Value())

	log := reg.GetLog()
	require.Len(t, log, 1)
	assert.Equal(t, "dispatch", log[0].Operation)
	assert.Equal(t, CrdtId("votes"), log[0].CrdtID)
}

func TestRegistry_DispatchUnknownKindFailsWithoutRegistering(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	env := &OperationEnvelope{
		ID:              "e1",
		SourceReplica:   "A",
		Kind:            CrdtKind("bogus"),
		CrdtID:          "x",
		Payload:         GCounterIncrementOp{Replica: "A", Count: 1},
		ClockAtEmission: NewVectorClock().Increment("A"),
	}

	err := reg.Dispatch(env)
	require.Error(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_MergeIntoCreatesAndMergesInstance(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	incoming := NewGCounter("votes", "B")
	_, err := incoming.Increment(7)
	require.NoError(t, err)

	require.NoError(t, reg.MergeInto(incoming))

	instance, ok := reg.Get("votes")
	require.True(t, ok)
	assert.Equal(t, uint64(7), instance.(*GCounter).Value())

	log := reg.GetLog()
	require.Len(t, log, 1)
	assert.Equal(t, "merge", log[0].Operation)
}

func TestRegistry_LogIsBoundedFIFO(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4), WithMaxLogSize(2))

	for i := 0; i < 5; i++ {
		env := NewOperationEnvelope("e", "A", KindGCounter, "votes",
			GCounterIncrementOp{Replica: "A", Count: uint64(i + 1)}, NewVectorClock().Increment("A"))
		require.NoError(t, reg.Dispatch(env))
	}

	log := reg.GetLog()
	assert.Len(t, log, 2)
}

func TestRegistry_SnapshotAllCoversEveryInstance(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	envGC := NewOperationEnvelope("e1", "A", KindGCounter, "votes",
		GCounterIncrementOp{Replica: "A", Count: 3}, NewVectorClock().Increment("A"))
	require.NoError(t, reg.Dispatch(envGC))

	envGS := NewOperationEnvelope("e2", "A", KindGSet, "tags",
		GSetAddOp{Element: "urgent"}, NewVectorClock().Increment("A"))
	require.NoError(t, reg.Dispatch(envGS))

	snapshots, err := reg.SnapshotAll()
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	ids := map[string]bool{}
	for _, s := range snapshots {
		ids[s.CrdtID] = true
		assert.NotEmpty(t, s.State)
		assert.NotEmpty(t, s.VectorClock)
	}
	assert.True(t, ids["votes"])
	assert.True(t, ids["tags"])
}

func TestRegistry_PutRegistersPreconstructedInstance(t *testing.T) {
	reg := NewRegistry("A", NewIDGenerator("A", 4))

	reg2 := NewLwwRegister[int]("score", "A")
	_, err := reg2.Assign(42, 1)
	require.NoError(t, err)

	require.NoError(t, reg.Put(reg2))

	instance, ok := reg.Get("score")
	require.True(t, ok)
	assert.Equal(t, 42, instance.(*LwwRegister[int]).Value())
}
