package crdt

import (
	"encoding/json"
	"sort"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// GSetAddOp is the wire payload for a G-Set add (spec §4.5). Adding an
// element already present is a no-op, so replaying this op any number
// of times converges to the same set.
type GSetAddOp struct {
	Element string `json:"element"`
}

// OpType implements OperationPayload.
func (GSetAddOp) OpType() string { return "add" }

type gsetState struct {
	Elements map[string]struct{} `json:"-"`
}

// MarshalJSON renders the set as a sorted JSON array for a stable wire
// representation.
func (s gsetState) MarshalJSON() ([]byte, error) {
	elems := make([]string, 0, len(s.Elements))
	for e := range s.Elements {
		elems = append(elems, e)
	}
	sort.Strings(elems)
	return json.Marshal(elems)
}

// UnmarshalJSON accepts a JSON array of elements.
func (s *gsetState) UnmarshalJSON(data []byte) error {
	var elems []string
	if err := json.Unmarshal(data, &elems); err != nil {
		return err
	}
	s.Elements = make(map[string]struct{}, len(elems))
	for _, e := range elems {
		s.Elements[e] = struct{}{}
	}
	return nil
}

// GSet is a grow-only set CRDT: elements may only be added, never
// removed (spec §4.5, C5).
type GSet struct {
	base
	elements map[string]struct{}
}

// NewGSet constructs an empty G-Set instance.
func NewGSet(id CrdtId, replica ReplicaId) *GSet {
	return &GSet{
		base:     newBase(KindGSet, id, replica),
		elements: make(map[string]struct{}),
	}
}

// Add inserts element into the set. Adding an already-present element
// is a no-op and does not advance the clock.
func (s *GSet) Add(element string) (MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindGSet); err != nil {
		return mutationFailure(err)
	}
	old := s.elementsSnapshot()
	if _, exists := s.elements[element]; exists {
		return MutationResult{Success: true, OldState: old, NewState: old, VectorClock: s.clock.Get()}, nil
	}

	s.elements[element] = struct{}{}
	clock := s.localIncrement()
	return mutationSuccess(old, s.elementsSnapshot(), clock)
}

// Contains reports whether element is currently a set member.
func (s *GSet) Contains(element string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.elements[element]
	return ok
}

// Elements returns a sorted snapshot of current set membership.
func (s *GSet) Elements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elementsSnapshot()
}

func (s *GSet) elementsSnapshot() []string {
	elems := make([]string, 0, len(s.elements))
	for e := range s.elements {
		elems = append(elems, e)
	}
	sort.Strings(elems)
	return elems
}

// ApplyOperation applies a remote add: union with the single element.
func (s *GSet) ApplyOperation(env *OperationEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindGSet); err != nil {
		return err
	}
	if err := s.checkEnvelopeKind(env); err != nil {
		return err
	}
	op, ok := env.Payload.(GSetAddOp)
	if !ok {
		return crdterrors.NewUnknownOperation("expected GSetAddOp payload")
	}

	s.elements[op.Element] = struct{}{}
	s.syncWith(env.ClockAtEmission)
	return nil
}

// Merge takes the set union.
func (s *GSet) Merge(other CRDT) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindGSet); err != nil {
		return err
	}
	if err := s.checkMergeKind(other); err != nil {
		return err
	}
	o := other.(*GSet)
	o.mu.Lock()
	defer o.mu.Unlock()

	for e := range o.elements {
		s.elements[e] = struct{}{}
	}
	s.syncWith(o.clock)
	return nil
}

// Equals reports whether both sets have identical membership.
func (s *GSet) Equals(other CRDT) bool {
	o, ok := other.(*GSet)
	if !ok || o == nil {
		return false
	}
	s.mu.Lock()
	o.mu.Lock()
	defer s.mu.Unlock()
	defer o.mu.Unlock()

	if len(s.elements) != len(o.elements) {
		return false
	}
	for e := range s.elements {
		if _, ok := o.elements[e]; !ok {
			return false
		}
	}
	return true
}

// Serialize returns the JSON-encoded state (a sorted array).
func (s *GSet) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(gsetState{Elements: s.elements})
}

// Deserialize replaces this instance's state from JSON bytes.
func (s *GSet) Deserialize(data []byte) error {
	var state gsetState
	if err := json.Unmarshal(data, &state); err != nil {
		return crdterrors.NewDeserializationFailed(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Elements == nil {
		state.Elements = make(map[string]struct{})
	}
	s.elements = state.Elements
	return nil
}

// Clone returns a deep, independent copy including the clock.
func (s *GSet) Clone() CRDT {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := &GSet{
		base:     base{kind: s.kind, id: s.id, replicaID: s.replicaID, clock: s.clock.Clone(), lastModified: s.lastModified},
		elements: make(map[string]struct{}, len(s.elements)),
	}
	for e := range s.elements {
		clone.elements[e] = struct{}{}
	}
	return clone
}

// DebugInfo returns the visualization data; G-Set has no tombstones.
func (s *GSet) DebugInfo() DebugInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DebugInfo{VisualizationData: s.visualizationLocked()}
}

// VisualizationData returns the stable shape for causal-order UIs.
func (s *GSet) VisualizationData() VisualizationData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visualizationLocked()
}

func (s *GSet) visualizationLocked() VisualizationData {
	elems := s.elementsSnapshot()
	return s.base.visualization(elems, map[string]interface{}{
		"elements": elems,
		"count":    len(elems),
	})
}
