package crdt

import (
	"encoding/json"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// GCounterIncrementOp is the wire payload for a G-Counter operation.
// Per spec §4.3, the wire form carries the absolute per-replica count
// (not a delta), so the operation is idempotent: a receiver takes
// max(existing, received).
type GCounterIncrementOp struct {
	Replica ReplicaId `json:"replica"`
	Count   uint64    `json:"count"`
}

// OpType implements OperationPayload.
func (GCounterIncrementOp) OpType() string { return "increment" }

// gcounterState is the JSON shape of a G-Counter's serialized state.
type gcounterState struct {
	Counters map[ReplicaId]uint64 `json:"counters"`
}

// GCounter is a monotone per-replica counter CRDT (spec §4.3, C3).
type GCounter struct {
	base
	counters map[ReplicaId]uint64
}

// NewGCounter constructs an empty G-Counter instance.
func NewGCounter(id CrdtId, replica ReplicaId) *GCounter {
	return &GCounter{
		base:     newBase(KindGCounter, id, replica),
		counters: make(map[ReplicaId]uint64),
	}
}

// Increment adds n to this replica's own slot. n = 0 is a no-op and
// does not advance the clock (spec §4.3).
func (g *GCounter) Increment(n uint64) (MutationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.validateEntry(KindGCounter); err != nil {
		return mutationFailure(err)
	}
	if n == 0 {
		return MutationResult{Success: true, OldState: g.value(), NewState: g.value(), VectorClock: g.clock.Get()}, nil
	}

	old := g.value()
	g.counters[g.replicaID] += n
	clock := g.localIncrement()
	return mutationSuccess(old, g.value(), clock)
}

// Value returns the sum of all replica slots.
func (g *GCounter) Value() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value()
}

func (g *GCounter) value() uint64 {
	var sum uint64
	for _, v := range g.counters {
		sum += v
	}
	return sum
}

// ApplyOperation applies a remote increment: counters[replica] =
// max(existing, received) — idempotent and commutative.
func (g *GCounter) ApplyOperation(env *OperationEnvelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.validateEntry(KindGCounter); err != nil {
		return err
	}
	if err := g.checkEnvelopeKind(env); err != nil {
		return err
	}
	op, ok := env.Payload.(GCounterIncrementOp)
	if !ok {
		return crdterrors.NewUnknownOperation("expected GCounterIncrementOp payload")
	}

	if existing := g.counters[op.Replica]; op.Count > existing {
		g.counters[op.Replica] = op.Count
	}
	g.syncWith(env.ClockAtEmission)
	return nil
}

// Merge takes the elementwise maximum of both replica-slot maps.
func (g *GCounter) Merge(other CRDT) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.validateEntry(KindGCounter); err != nil {
		return err
	}
	if err := g.checkMergeKind(other); err != nil {
		return err
	}
	o := other.(*GCounter)
	o.mu.Lock()
	defer o.mu.Unlock()

	for replica, count := range o.counters {
		if count > g.counters[replica] {
			g.counters[replica] = count
		}
	}
	g.syncWith(o.clock)
	return nil
}

// Equals reports whether both counters have identical per-replica
// slots.
func (g *GCounter) Equals(other CRDT) bool {
	o, ok := other.(*GCounter)
	if !ok || o == nil {
		return false
	}
	g.mu.Lock()
	o.mu.Lock()
	defer g.mu.Unlock()
	defer o.mu.Unlock()

	if len(g.counters) != len(o.counters) {
		return false
	}
	for replica, count := range g.counters {
		if o.counters[replica] != count {
			return false
		}
	}
	return true
}

// Serialize returns the JSON-encoded state.
func (g *GCounter) Serialize() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Marshal(gcounterState{Counters: g.counters})
}

// Deserialize replaces this instance's state from JSON bytes.
func (g *GCounter) Deserialize(data []byte) error {
	var state gcounterState
	if err := json.Unmarshal(data, &state); err != nil {
		return crdterrors.NewDeserializationFailed(err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if state.Counters == nil {
		state.Counters = make(map[ReplicaId]uint64)
	}
	g.counters = state.Counters
	return nil
}

// Clone returns a deep, independent copy including the clock.
func (g *GCounter) Clone() CRDT {
	g.mu.Lock()
	defer g.mu.Unlock()

	clone := &GCounter{
		base:     base{kind: g.kind, id: g.id, replicaID: g.replicaID, clock: g.clock.Clone(), lastModified: g.lastModified},
		counters: make(map[ReplicaId]uint64, len(g.counters)),
	}
	for k, v := range g.counters {
		clone.counters[k] = v
	}
	return clone
}

// DebugInfo returns the visualization data with no additional
// counters (G-Counter has no tombstones or pending records).
func (g *GCounter) DebugInfo() DebugInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return DebugInfo{VisualizationData: g.visualizationLocked()}
}

// VisualizationData returns the stable shape for causal-order UIs.
func (g *GCounter) VisualizationData() VisualizationData {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visualizationLocked()
}

func (g *GCounter) visualizationLocked() VisualizationData {
	counters := make(map[string]uint64, len(g.counters))
	for k, v := range g.counters {
		counters[string(k)] = v
	}
	return g.base.visualization(g.value(), map[string]interface{}{
		"value":    g.value(),
		"counters": counters,
	})
}
