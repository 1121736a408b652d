// Package crdt implements the vector-clock manager and the six
// concrete Conflict-free Replicated Data Types (G-Counter, PN-Counter,
// G-Set, OR-Set, LWW-Register, RGA) that make up this module's
// replication core, along with the envelope/registry fabric that moves
// operations and whole-state snapshots between replicas.
package crdt

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// CRDT is the common interface every concrete type in this package
// implements: lifecycle identity, the two convergence entry points
// (ApplyOperation for operation-based sync, Merge for state-based
// sync), serialization, and the debug/visualization contracts
// consumed by external UIs (spec §6).
type CRDT interface {
	Kind() CrdtKind
	ID() CrdtId
	ReplicaID() ReplicaId
	VectorClock() VectorClock

	// ApplyOperation applies a remote or local operation envelope,
	// syncing the instance's clock with the envelope's clock exactly
	// once.
	ApplyOperation(env *OperationEnvelope) error

	// Merge folds another instance's full state into this one, then
	// syncs the vector clock. other must share this instance's Kind.
	Merge(other CRDT) error

	// Equals reports equivalence of replicated state, independent of
	// vector-clock state: same Kind, and per kind the same per-replica
	// slots (counters), (value, timestamp, writer) triple (LWW-Register),
	// visible membership (sets) or visible text (RGA).
	Equals(other CRDT) bool

	Serialize() ([]byte, error)
	Deserialize(data []byte) error

	// Clone returns a deep, independent copy including the clock.
	Clone() CRDT

	DebugInfo() DebugInfo
	VisualizationData() VisualizationData
}

// MutationResult is returned by every local mutating method. Old/New
// are populated only when Success is true; Error is populated only
// when Success is false, and in that case the receiver's state and
// clock are guaranteed unchanged (spec §4.2, §7).
type MutationResult struct {
	Success     bool
	Error       *crdterrors.Error
	OldState    interface{}
	NewState    interface{}
	VectorClock VectorClock
}

func mutationFailure(err *crdterrors.Error) (MutationResult, error) {
	return MutationResult{Success: false, Error: err}, err
}

func mutationSuccess(old, new interface{}, clock VectorClock) (MutationResult, error) {
	return MutationResult{Success: true, OldState: old, NewState: new, VectorClock: clock}, nil
}

// base holds the fields and bookkeeping common to every concrete CRDT:
// identity, exclusive clock ownership, and a mutex guarding against
// accidental concurrent use even though the documented contract is
// single-threaded-per-replica (spec §5).
type base struct {
	mu           sync.Mutex
	kind         CrdtKind
	id           CrdtId
	replicaID    ReplicaId
	clock        VectorClock
	lastModified time.Time
}

func newBase(kind CrdtKind, id CrdtId, replica ReplicaId) base {
	return base{
		kind:         kind,
		id:           id,
		replicaID:    replica,
		clock:        NewVectorClock(),
		lastModified: time.Now(),
	}
}

func (b *base) Kind() CrdtKind           { return b.kind }
func (b *base) ID() CrdtId               { return b.id }
func (b *base) ReplicaID() ReplicaId     { return b.replicaID }
func (b *base) VectorClock() VectorClock { return b.clock.Get() }

// validateEntry enforces spec §4.2's "Validation on every entry":
// non-empty ids and matching kind. Every local mutator, ApplyOperation
// and Merge on a concrete CRDT call this first.
func (b *base) validateEntry(expected CrdtKind) *crdterrors.Error {
	if b.id == "" {
		return crdterrors.NewInvalidArgument("crdt id must not be empty")
	}
	if b.replicaID == "" {
		return crdterrors.NewInvalidArgument("replica id must not be empty")
	}
	if b.kind != expected {
		return crdterrors.NewKindMismatch("instance kind does not match expected kind").
			WithMetadata("instance_kind", string(b.kind)).
			WithMetadata("expected_kind", string(expected))
	}
	return nil
}

// checkEnvelopeKind enforces the "kind of two envelopes targeting the
// same CrdtId must match" invariant (spec §3) before ApplyOperation
// touches any state.
func (b *base) checkEnvelopeKind(env *OperationEnvelope) *crdterrors.Error {
	if env.CrdtID != b.id {
		return crdterrors.NewInvalidArgument("envelope targets a different crdt id").
			WithMetadata("instance_id", string(b.id)).
			WithMetadata("envelope_id", string(env.CrdtID))
	}
	if env.Kind != b.kind {
		return crdterrors.NewKindMismatch("envelope kind does not match instance kind").
			WithMetadata("instance_kind", string(b.kind)).
			WithMetadata("envelope_kind", string(env.Kind))
	}
	return nil
}

// checkMergeKind enforces the same invariant for state-based merges.
func (b *base) checkMergeKind(other CRDT) *crdterrors.Error {
	if other == nil {
		return crdterrors.NewInvalidArgument("merge target must not be nil")
	}
	if other.Kind() != b.kind {
		return crdterrors.NewKindMismatch("merge target kind does not match instance kind").
			WithMetadata("instance_kind", string(b.kind)).
			WithMetadata("other_kind", string(other.Kind()))
	}
	return nil
}

// localIncrement advances this replica's own clock slot by one and
// touches lastModified. Called exactly once per accepted local
// mutation, after validation and after the state mutation itself
// (spec §4.2 step (c)).
func (b *base) localIncrement() VectorClock {
	b.clock = b.clock.Increment(b.replicaID)
	b.lastModified = time.Now()
	return b.clock.Get()
}

// syncWith folds a remote clock into this instance's clock exactly
// once, per ApplyOperation/Merge (spec §4.2).
func (b *base) syncWith(remote VectorClock) {
	b.clock = b.clock.Sync(remote, b.replicaID)
	b.lastModified = time.Now()
}

// OperationRecord is the JSON-compatible wire shape for one operation
// envelope, exactly as specified in spec §6.
type OperationRecord struct {
	ID            string `json:"id"`
	NodeID        string `json:"node_id"`
	CrdtType      string `json:"crdt_type"`
	CrdtID        string `json:"crdt_id"`
	OperationType string `json:"operation_type"`
	OperationData string `json:"operation_data"`
	VectorClock   string `json:"vector_clock"`
	Timestamp     string `json:"timestamp"`
	Applied       bool   `json:"applied"`
}

// StateSnapshot is the JSON-compatible wire shape for a whole-state
// bootstrap message, exactly as specified in spec §6.
type StateSnapshot struct {
	ID          string `json:"id"`
	NodeID      string `json:"node_id"`
	CrdtType    string `json:"crdt_type"`
	CrdtID      string `json:"crdt_id"`
	State       string `json:"state"`
	VectorClock string `json:"vector_clock"`
	UpdatedAt   string `json:"updated_at"`
}

// VisualizationData is the stable shape consumed by external causal-
// order UIs (spec §6). Fields is a per-kind bag (elements/value/text/
// order/...) populated by each concrete CRDT's VisualizationData().
type VisualizationData struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	NodeID         string                 `json:"node_id"`
	VectorClock    VectorClock            `json:"vector_clock"`
	State          interface{}            `json:"state"`
	LastModified   time.Time              `json:"last_modified"`
	CausalityLevel uint64                 `json:"causality_level"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}

// DebugInfo is a superset of VisualizationData carrying
// implementation-facing counters (spec §6): tombstone counts, add-tag
// counts, pending RGA records.
type DebugInfo struct {
	VisualizationData
	Counters map[string]int `json:"counters,omitempty"`
}

func (b *base) visualization(state interface{}, fields map[string]interface{}) VisualizationData {
	return VisualizationData{
		ID:             string(b.id),
		Type:           string(b.kind),
		NodeID:         string(b.replicaID),
		VectorClock:    b.clock.Get(),
		State:          state,
		LastModified:   b.lastModified,
		CausalityLevel: b.clock.Sum(),
		Fields:         fields,
	}
}

func marshalVectorClock(v VectorClock) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalVectorClock(s string) (VectorClock, error) {
	if s == "" {
		return NewVectorClock(), nil
	}
	var m map[ReplicaId]uint64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return newVectorClockFromMap(m), nil
}

// newOperationRecord stamps an OperationRecord for logging/transport,
// matching spec §6's wire shape. applied indicates whether the
// operation successfully mutated local state (true for a freshly
// emitted local op and for a successfully-applied remote op; false is
// reserved for diagnostic logging of rejected operations).
func (b *base) newOperationRecord(id string, operationType string, operationData interface{}, clock VectorClock, applied bool) (OperationRecord, error) {
	data, err := json.Marshal(operationData)
	if err != nil {
		return OperationRecord{}, err
	}
	clockJSON, err := marshalVectorClock(clock)
	if err != nil {
		return OperationRecord{}, err
	}
	return OperationRecord{
		ID:            id,
		NodeID:        string(b.replicaID),
		CrdtType:      string(b.kind),
		CrdtID:        string(b.id),
		OperationType: operationType,
		OperationData: string(data),
		VectorClock:   clockJSON,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Applied:       applied,
	}, nil
}

// newStateSnapshot stamps a StateSnapshot for logging/persistence
// collaborators, matching spec §6's wire shape.
func (b *base) newStateSnapshot(id string, state interface{}) (StateSnapshot, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return StateSnapshot{}, err
	}
	clockJSON, err := marshalVectorClock(b.clock)
	if err != nil {
		return StateSnapshot{}, err
	}
	return StateSnapshot{
		ID:          id,
		NodeID:      string(b.replicaID),
		CrdtType:    string(b.kind),
		CrdtID:      string(b.id),
		State:       string(data),
		VectorClock: clockJSON,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}
