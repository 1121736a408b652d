package crdt

import "time"

// OperationPayload is implemented by every kind-specific operation
// struct (GCounterIncrementOp, ORSetAddOp, RGAInsertOp, ...). OpType
// is the wire-format operation_type tag (spec §6).
type OperationPayload interface {
	OpType() string
}

// OperationEnvelope carries one operation between replicas with its
// vector-clock stamp (spec §3, C9). Immutable once constructed. The
// validate tags are checked by internal/validation before the
// Registry lets an envelope touch any instance (spec §4.2's
// "validation on every entry", enforced at the transport boundary
// rather than the instance boundary for this shape).
type OperationEnvelope struct {
	ID              string      `validate:"required"`
	SourceReplica   ReplicaId   `validate:"required,replicaid"`
	Kind            CrdtKind    `validate:"required,crdtkind"`
	CrdtID          CrdtId      `validate:"required"`
	Payload         OperationPayload
	ClockAtEmission VectorClock
	WallTime        time.Time
}

// NewOperationEnvelope builds an envelope stamped with the emitting
// replica's clock snapshot and the current wall time. id should come
// from an IDGenerator so envelopes are uniquely identifiable in logs.
func NewOperationEnvelope(id string, source ReplicaId, kind CrdtKind, crdtID CrdtId, payload OperationPayload, clock VectorClock) *OperationEnvelope {
	return &OperationEnvelope{
		ID:              id,
		SourceReplica:   source,
		Kind:            kind,
		CrdtID:          crdtID,
		Payload:         payload,
		ClockAtEmission: clock.Get(),
		WallTime:        time.Now(),
	}
}
