package crdt

import (
	"encoding/json"
	"sort"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// ORSetAddOp is the wire payload for an OR-Set add. Tag must be
// generated by an IDGenerator so concurrent adds of the same element
// from different replicas carry distinct tags and both survive a
// concurrent remove (add-wins, spec §4.6).
type ORSetAddOp struct {
	Element string `json:"element"`
	Tag     string `json:"tag"`
}

// OpType implements OperationPayload.
func (ORSetAddOp) OpType() string { return "add" }

// ORSetRemoveOp tombstones the specific add-tags the removing replica
// had observed for Element at the time of the call. A concurrent add
// producing a tag not in Tags is not tombstoned and the element
// remains visible (add-wins).
type ORSetRemoveOp struct {
	Element string   `json:"element"`
	Tags    []string `json:"tags"`
}

// OpType implements OperationPayload.
func (ORSetRemoveOp) OpType() string { return "remove" }

type orsetState struct {
	Added      map[string]map[string]struct{} `json:"added"`
	Tombstones map[string]struct{}            `json:"tombstones"`
}

// ORSet is an observed-remove set CRDT: every add is tagged with a
// unique token, and remove tombstones only the tags observed at call
// time, so a concurrent add-remove pair on the same element resolves
// in favor of the add (spec §4.6, C6).
type ORSet struct {
	base
	added      map[string]map[string]struct{} // element -> every add-tag seen, tombstoned ones included
	tombstones map[string]struct{}            // tag -> removed
	idgen      *IDGenerator
}

// NewORSet constructs an empty OR-Set instance. idgen supplies unique
// add-tags; pass a generator scoped to this replica.
func NewORSet(id CrdtId, replica ReplicaId, idgen *IDGenerator) *ORSet {
	return &ORSet{
		base:       newBase(KindORSet, id, replica),
		added:      make(map[string]map[string]struct{}),
		tombstones: make(map[string]struct{}),
		idgen:      idgen,
	}
}

// Add inserts element into the set under a freshly generated tag.
// Unlike G-Set, re-adding a currently-visible element still mints a
// new tag: this is what lets the next Remove tombstone specifically
// what this replica observed.
func (s *ORSet) Add(element string) (MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindORSet); err != nil {
		return mutationFailure(err)
	}
	old := s.elementsSnapshot()

	tag := s.idgen.Next()
	if s.added[element] == nil {
		s.added[element] = make(map[string]struct{})
	}
	s.added[element][tag] = struct{}{}

	clock := s.localIncrement()
	return mutationSuccess(old, s.elementsSnapshot(), clock)
}

// Remove tombstones every add-tag currently live for element. Removing
// an element with no live tags is a no-op and does not advance the
// clock.
func (s *ORSet) Remove(element string) (MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindORSet); err != nil {
		return mutationFailure(err)
	}
	old := s.elementsSnapshot()

	liveTags := s.liveTagsFor(element)
	if len(liveTags) == 0 {
		return MutationResult{Success: true, OldState: old, NewState: old, VectorClock: s.clock.Get()}, nil
	}
	for _, tag := range liveTags {
		s.tombstones[tag] = struct{}{}
	}

	clock := s.localIncrement()
	return mutationSuccess(old, s.elementsSnapshot(), clock)
}

// liveTagsFor returns element's add-tags that have not been
// tombstoned, sorted; Remove, Contains and elementsSnapshot use it.
func (s *ORSet) liveTagsFor(element string) []string {
	tags := s.added[element]
	if len(tags) == 0 {
		return nil
	}
	live := make([]string, 0, len(tags))
	for tag := range tags {
		if _, removed := s.tombstones[tag]; !removed {
			live = append(live, tag)
		}
	}
	sort.Strings(live)
	return live
}

// Contains reports whether element currently has any live add-tag.
func (s *ORSet) Contains(element string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.liveTagsFor(element)) > 0
}

// Elements returns a sorted snapshot of currently-visible elements.
func (s *ORSet) Elements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elementsSnapshot()
}

func (s *ORSet) elementsSnapshot() []string {
	out := make([]string, 0, len(s.added))
	for element := range s.added {
		if len(s.liveTagsFor(element)) > 0 {
			out = append(out, element)
		}
	}
	sort.Strings(out)
	return out
}

// ApplyOperation applies a remote add or remove.
func (s *ORSet) ApplyOperation(env *OperationEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindORSet); err != nil {
		return err
	}
	if err := s.checkEnvelopeKind(env); err != nil {
		return err
	}

	switch op := env.Payload.(type) {
	case ORSetAddOp:
		if s.added[op.Element] == nil {
			s.added[op.Element] = make(map[string]struct{})
		}
		s.added[op.Element][op.Tag] = struct{}{}
	case ORSetRemoveOp:
		for _, tag := range op.Tags {
			s.tombstones[tag] = struct{}{}
		}
	default:
		return crdterrors.NewUnknownOperation("expected ORSetAddOp or ORSetRemoveOp payload")
	}

	s.syncWith(env.ClockAtEmission)
	return nil
}

// Merge takes the union of add-tags and the union of tombstones.
func (s *ORSet) Merge(other CRDT) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateEntry(KindORSet); err != nil {
		return err
	}
	if err := s.checkMergeKind(other); err != nil {
		return err
	}
	o := other.(*ORSet)
	o.mu.Lock()
	defer o.mu.Unlock()

	for element, tags := range o.added {
		if s.added[element] == nil {
			s.added[element] = make(map[string]struct{})
		}
		for tag := range tags {
			s.added[element][tag] = struct{}{}
		}
	}
	for tag := range o.tombstones {
		s.tombstones[tag] = struct{}{}
	}

	s.syncWith(o.clock)
	return nil
}

// Equals reports whether both sets have identical visible membership.
func (s *ORSet) Equals(other CRDT) bool {
	o, ok := other.(*ORSet)
	if !ok || o == nil {
		return false
	}
	s.mu.Lock()
	o.mu.Lock()
	defer s.mu.Unlock()
	defer o.mu.Unlock()

	a, b := s.elementsSnapshot(), o.elementsSnapshot()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Serialize returns the JSON-encoded internal state (add-tags and
// tombstones), not just the visible element list, so a deserialized
// replica can still resolve future concurrent operations correctly.
func (s *ORSet) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(orsetState{Added: s.added, Tombstones: s.tombstones})
}

// Deserialize replaces this instance's state from JSON bytes.
func (s *ORSet) Deserialize(data []byte) error {
	var state orsetState
	if err := json.Unmarshal(data, &state); err != nil {
		return crdterrors.NewDeserializationFailed(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Added == nil {
		state.Added = make(map[string]map[string]struct{})
	}
	if state.Tombstones == nil {
		state.Tombstones = make(map[string]struct{})
	}
	s.added = state.Added
	s.tombstones = state.Tombstones
	return nil
}

// Clone returns a deep, independent copy including the clock. The
// IDGenerator reference is shared: it is stateless with respect to the
// set's contents and safe to share across clones of the same replica.
func (s *ORSet) Clone() CRDT {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := &ORSet{
		base:       base{kind: s.kind, id: s.id, replicaID: s.replicaID, clock: s.clock.Clone(), lastModified: s.lastModified},
		added:      make(map[string]map[string]struct{}, len(s.added)),
		tombstones: make(map[string]struct{}, len(s.tombstones)),
		idgen:      s.idgen,
	}
	for element, tags := range s.added {
		clone.added[element] = make(map[string]struct{}, len(tags))
		for tag := range tags {
			clone.added[element][tag] = struct{}{}
		}
	}
	for tag := range s.tombstones {
		clone.tombstones[tag] = struct{}{}
	}
	return clone
}

// DebugInfo reports the visible elements plus the internal tombstone
// count and the total add-tag count (tombstoned tags included).
func (s *ORSet) DebugInfo() DebugInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	tagCount := 0
	for _, tags := range s.added {
		tagCount += len(tags)
	}
	return DebugInfo{
		VisualizationData: s.visualizationLocked(),
		Counters: map[string]int{
			"add_tags":   tagCount,
			"tombstones": len(s.tombstones),
		},
	}
}

// VisualizationData returns the stable shape for causal-order UIs.
func (s *ORSet) VisualizationData() VisualizationData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visualizationLocked()
}

func (s *ORSet) visualizationLocked() VisualizationData {
	elems := s.elementsSnapshot()
	return s.base.visualization(elems, map[string]interface{}{
		"elements":        elems,
		"tombstone_count": len(s.tombstones),
	})
}
