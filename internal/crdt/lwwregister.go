package crdt

import (
	"encoding/json"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// LwwRegisterAssignOp is the wire payload for an LWW-Register assign
// (spec §4.7). Value travels as interface{} because the envelope type
// itself is not generic; ApplyOperation type-asserts it back to T.
type LwwRegisterAssignOp struct {
	Value     interface{} `json:"value"`
	Timestamp int64       `json:"timestamp"`
	Writer    ReplicaId   `json:"writer"`
}

// OpType implements OperationPayload.
func (LwwRegisterAssignOp) OpType() string { return "assign" }

type lwwRegisterState[T any] struct {
	Value     T         `json:"value"`
	Timestamp int64     `json:"timestamp"`
	Writer    ReplicaId `json:"writer"`
}

// LwwRegister is a single-cell last-writer-wins register (spec §4.7,
// C7). The winning write is the one with the greatest (timestamp,
// writer) pair under lexicographic order; timestamp is an external
// input supplied by the caller (a physical clock reading or a hybrid
// logical clock), never read from the system clock internally, so the
// register makes no claim about real-time recency — only that every
// replica converges on the same winner.
type LwwRegister[T comparable] struct {
	base
	value     T
	timestamp int64
	writer    ReplicaId
}

// NewLwwRegister constructs a register holding zero until the first
// Assign.
func NewLwwRegister[T comparable](id CrdtId, replica ReplicaId) *LwwRegister[T] {
	return &LwwRegister[T]{base: newBase(KindLWWRegister, id, replica)}
}

// Assign always succeeds locally: it sets value, stamps timestamp and
// writer = this replica, and advances the clock.
func (r *LwwRegister[T]) Assign(value T, timestamp int64) (MutationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindLWWRegister); err != nil {
		return mutationFailure(err)
	}

	old := r.value
	r.value = value
	r.timestamp = timestamp
	r.writer = r.replicaID

	clock := r.localIncrement()
	return mutationSuccess(old, r.value, clock)
}

// Value returns the current winning value.
func (r *LwwRegister[T]) Value() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// lwwGreater reports whether (ts1, w1) strictly outranks (ts2, w2)
// under: primary by timestamp ascending, tiebreak by writer
// lexicographically ascending (spec §4.7, §8).
func lwwGreater(ts1 int64, w1 ReplicaId, ts2 int64, w2 ReplicaId) bool {
	if ts1 != ts2 {
		return ts1 > ts2
	}
	return w1 > w2
}

// ApplyOperation accepts the remote assignment iff its (timestamp,
// writer) strictly outranks the current one.
func (r *LwwRegister[T]) ApplyOperation(env *OperationEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindLWWRegister); err != nil {
		return err
	}
	if err := r.checkEnvelopeKind(env); err != nil {
		return err
	}
	op, ok := env.Payload.(LwwRegisterAssignOp)
	if !ok {
		return crdterrors.NewUnknownOperation("expected LwwRegisterAssignOp payload")
	}

	value, ok := op.Value.(T)
	if !ok {
		return crdterrors.NewCorruptState("LwwRegisterAssignOp value does not match register's type")
	}

	if lwwGreater(op.Timestamp, op.Writer, r.timestamp, r.writer) {
		r.value = value
		r.timestamp = op.Timestamp
		r.writer = op.Writer
	}
	r.syncWith(env.ClockAtEmission)
	return nil
}

// Merge applies the same decision rule to other's triple.
func (r *LwwRegister[T]) Merge(other CRDT) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindLWWRegister); err != nil {
		return err
	}
	if err := r.checkMergeKind(other); err != nil {
		return err
	}
	o := other.(*LwwRegister[T])
	o.mu.Lock()
	defer o.mu.Unlock()

	if lwwGreater(o.timestamp, o.writer, r.timestamp, r.writer) {
		r.value = o.value
		r.timestamp = o.timestamp
		r.writer = o.writer
	}
	r.syncWith(o.clock)
	return nil
}

// Equals reports whether both registers hold the same (value,
// timestamp, writer) triple.
func (r *LwwRegister[T]) Equals(other CRDT) bool {
	o, ok := other.(*LwwRegister[T])
	if !ok || o == nil {
		return false
	}
	r.mu.Lock()
	o.mu.Lock()
	defer r.mu.Unlock()
	defer o.mu.Unlock()

	return r.value == o.value && r.timestamp == o.timestamp && r.writer == o.writer
}

// Serialize returns the JSON-encoded state.
func (r *LwwRegister[T]) Serialize() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(lwwRegisterState[T]{Value: r.value, Timestamp: r.timestamp, Writer: r.writer})
}

// Deserialize replaces this instance's state from JSON bytes.
func (r *LwwRegister[T]) Deserialize(data []byte) error {
	var state lwwRegisterState[T]
	if err := json.Unmarshal(data, &state); err != nil {
		return crdterrors.NewDeserializationFailed(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = state.Value
	r.timestamp = state.Timestamp
	r.writer = state.Writer
	return nil
}

// Clone returns a deep, independent copy including the clock.
func (r *LwwRegister[T]) Clone() CRDT {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &LwwRegister[T]{
		base:      base{kind: r.kind, id: r.id, replicaID: r.replicaID, clock: r.clock.Clone(), lastModified: r.lastModified},
		value:     r.value,
		timestamp: r.timestamp,
		writer:    r.writer,
	}
}

// DebugInfo returns the visualization data; LWW-Register has no
// tombstones or pending records.
func (r *LwwRegister[T]) DebugInfo() DebugInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DebugInfo{VisualizationData: r.visualizationLocked()}
}

// VisualizationData returns the stable shape for causal-order UIs.
func (r *LwwRegister[T]) VisualizationData() VisualizationData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visualizationLocked()
}

func (r *LwwRegister[T]) visualizationLocked() VisualizationData {
	return r.base.visualization(r.value, map[string]interface{}{
		"value":     r.value,
		"timestamp": r.timestamp,
		"writer":    string(r.writer),
	})
}
