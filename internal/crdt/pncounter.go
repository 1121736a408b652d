package crdt

import (
	"encoding/json"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// pnCounterSide distinguishes which internal G-Counter an operation
// targets.
type pnCounterSide string

const (
	pnSidePositive pnCounterSide = "positive"
	pnSideNegative pnCounterSide = "negative"
)

// PNCounterOp is the wire payload for a PN-Counter operation: like
// GCounterIncrementOp, it carries the absolute per-replica count for
// one side so application is idempotent (spec §4.3, §4.4).
type PNCounterOp struct {
	Side    pnCounterSide `json:"side"`
	Replica ReplicaId     `json:"replica"`
	Count   uint64        `json:"count"`
}

// OpType implements OperationPayload.
func (PNCounterOp) OpType() string { return "update" }

type pnCounterState struct {
	Positive map[ReplicaId]uint64 `json:"positive"`
	Negative map[ReplicaId]uint64 `json:"negative"`
}

// PNCounter is a two-G-Counter (P, N) CRDT supporting both increment
// and decrement (spec §4.4, C4). Value = sum(P) - sum(N).
type PNCounter struct {
	base
	positive map[ReplicaId]uint64
	negative map[ReplicaId]uint64
}

// NewPNCounter constructs a zeroed PN-Counter instance.
func NewPNCounter(id CrdtId, replica ReplicaId) *PNCounter {
	return &PNCounter{
		base:     newBase(KindPNCounter, id, replica),
		positive: make(map[ReplicaId]uint64),
		negative: make(map[ReplicaId]uint64),
	}
}

// Increment adds n to this replica's positive slot.
func (p *PNCounter) Increment(n uint64) (MutationResult, error) {
	return p.apply(pnSidePositive, n)
}

// Decrement adds n to this replica's negative slot.
func (p *PNCounter) Decrement(n uint64) (MutationResult, error) {
	return p.apply(pnSideNegative, n)
}

func (p *PNCounter) apply(side pnCounterSide, n uint64) (MutationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validateEntry(KindPNCounter); err != nil {
		return mutationFailure(err)
	}
	if n == 0 {
		return MutationResult{Success: true, OldState: p.value(), NewState: p.value(), VectorClock: p.clock.Get()}, nil
	}

	old := p.value()
	switch side {
	case pnSidePositive:
		p.positive[p.replicaID] += n
	default:
		p.negative[p.replicaID] += n
	}
	clock := p.localIncrement()
	return mutationSuccess(old, p.value(), clock)
}

// Value returns sum(positive) - sum(negative).
func (p *PNCounter) Value() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value()
}

func (p *PNCounter) value() int64 {
	var pos, neg uint64
	for _, v := range p.positive {
		pos += v
	}
	for _, v := range p.negative {
		neg += v
	}
	return int64(pos) - int64(neg)
}

// ApplyOperation applies a remote update to the targeted side,
// max-merging the absolute count (idempotent, commutative).
func (p *PNCounter) ApplyOperation(env *OperationEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validateEntry(KindPNCounter); err != nil {
		return err
	}
	if err := p.checkEnvelopeKind(env); err != nil {
		return err
	}
	op, ok := env.Payload.(PNCounterOp)
	if !ok {
		return crdterrors.NewUnknownOperation("expected PNCounterOp payload")
	}

	target := p.positive
	if op.Side == pnSideNegative {
		target = p.negative
	}
	if existing := target[op.Replica]; op.Count > existing {
		target[op.Replica] = op.Count
	}
	p.syncWith(env.ClockAtEmission)
	return nil
}

// Merge takes the elementwise maximum on both positive and negative
// maps.
func (p *PNCounter) Merge(other CRDT) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validateEntry(KindPNCounter); err != nil {
		return err
	}
	if err := p.checkMergeKind(other); err != nil {
		return err
	}
	o := other.(*PNCounter)
	o.mu.Lock()
	defer o.mu.Unlock()

	for replica, count := range o.positive {
		if count > p.positive[replica] {
			p.positive[replica] = count
		}
	}
	for replica, count := range o.negative {
		if count > p.negative[replica] {
			p.negative[replica] = count
		}
	}
	p.syncWith(o.clock)
	return nil
}

// Equals reports whether both counters have identical positive and
// negative slots.
func (p *PNCounter) Equals(other CRDT) bool {
	o, ok := other.(*PNCounter)
	if !ok || o == nil {
		return false
	}
	p.mu.Lock()
	o.mu.Lock()
	defer p.mu.Unlock()
	defer o.mu.Unlock()

	return mapsEqual(p.positive, o.positive) && mapsEqual(p.negative, o.negative)
}

func mapsEqual(a, b map[ReplicaId]uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Serialize returns the JSON-encoded state.
func (p *PNCounter) Serialize() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Marshal(pnCounterState{Positive: p.positive, Negative: p.negative})
}

// Deserialize replaces this instance's state from JSON bytes.
func (p *PNCounter) Deserialize(data []byte) error {
	var state pnCounterState
	if err := json.Unmarshal(data, &state); err != nil {
		return crdterrors.NewDeserializationFailed(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if state.Positive == nil {
		state.Positive = make(map[ReplicaId]uint64)
	}
	if state.Negative == nil {
		state.Negative = make(map[ReplicaId]uint64)
	}
	p.positive = state.Positive
	p.negative = state.Negative
	return nil
}

// Clone returns a deep, independent copy including the clock.
func (p *PNCounter) Clone() CRDT {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := &PNCounter{
		base:     base{kind: p.kind, id: p.id, replicaID: p.replicaID, clock: p.clock.Clone(), lastModified: p.lastModified},
		positive: make(map[ReplicaId]uint64, len(p.positive)),
		negative: make(map[ReplicaId]uint64, len(p.negative)),
	}
	for k, v := range p.positive {
		clone.positive[k] = v
	}
	for k, v := range p.negative {
		clone.negative[k] = v
	}
	return clone
}

// DebugInfo returns the visualization data; PN-Counter has no
// tombstones or pending records.
func (p *PNCounter) DebugInfo() DebugInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return DebugInfo{VisualizationData: p.visualizationLocked()}
}

// VisualizationData returns the stable shape for causal-order UIs.
func (p *PNCounter) VisualizationData() VisualizationData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visualizationLocked()
}

func (p *PNCounter) visualizationLocked() VisualizationData {
	return p.base.visualization(p.value(), map[string]interface{}{
		"value":    p.value(),
		"positive": p.positive,
		"negative": p.negative,
	})
}
