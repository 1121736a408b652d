package crdt

import (
	"encoding/json"
	"sort"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
)

// noPredecessor is the sentinel ElementId meaning "head of sequence".
// Safe because IDGenerator never produces an empty string.
const noPredecessor ElementId = ""

// RGAInsertOp is the wire payload for an RGA insert (spec §4.8).
// HasPredecessor distinguishes "insert at head" (false) from "insert
// after a real element" (true, Predecessor holds that element's id).
type RGAInsertOp struct {
	ID             ElementId `json:"id"`
	Value          rune      `json:"value"`
	Predecessor    ElementId `json:"predecessor,omitempty"`
	HasPredecessor bool      `json:"has_predecessor"`
}

// OpType implements OperationPayload.
func (RGAInsertOp) OpType() string { return "insert" }

// RGADeleteOp is the wire payload for an RGA delete, identifying the
// element by its permanent ElementId rather than a position (positions
// shift as other replicas insert/delete).
type RGADeleteOp struct {
	ID ElementId `json:"id"`
}

// OpType implements OperationPayload.
func (RGADeleteOp) OpType() string { return "delete" }

// rgaRecord is one node in the predecessor forest (spec §4.8).
type rgaRecord struct {
	ID             ElementId `json:"id"`
	Value          rune      `json:"value"`
	Predecessor    ElementId `json:"predecessor,omitempty"`
	HasPredecessor bool      `json:"has_predecessor"`
	Tombstone      bool      `json:"tombstone"`
}

type rgaState struct {
	Records           map[ElementId]rgaRecord `json:"records"`
	PendingTombstones map[ElementId]struct{}  `json:"pending_tombstones"`
}

// RGA is a replicated growable array: an ordered sequence (used here
// for text) where concurrent inserts sharing a predecessor resolve to
// a deterministic, convergent interleaving (spec §4.8, C8).
type RGA struct {
	base
	records           map[ElementId]*rgaRecord
	order             []ElementId // cached; rebuilt on every structural change
	pendingTombstones map[ElementId]struct{}
	idgen             *IDGenerator
}

// NewRGA constructs an empty RGA instance. idgen supplies unique
// ElementIds; pass a generator scoped to this replica.
func NewRGA(id CrdtId, replica ReplicaId, idgen *IDGenerator) *RGA {
	return &RGA{
		base:              newBase(KindRGA, id, replica),
		records:           make(map[ElementId]*rgaRecord),
		pendingTombstones: make(map[ElementId]struct{}),
		idgen:             idgen,
	}
}

// rebuildOrder reconstructs r.order by treating records as a forest
// rooted at noPredecessor and visiting children in descending
// ElementId order at every level, depth-first (spec §4.8's
// "algorithmically critical part"). Deterministic and identical on
// every replica holding the same record set.
func (r *RGA) rebuildOrder() {
	children := make(map[ElementId][]ElementId)
	for id, rec := range r.records {
		parent := noPredecessor
		if rec.HasPredecessor {
			parent = rec.Predecessor
		}
		children[parent] = append(children[parent], id)
	}
	for parent, ids := range children {
		sorted := append([]ElementId(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
		children[parent] = sorted
	}

	var order []ElementId
	var visit func(parent ElementId)
	visit = func(parent ElementId) {
		for _, child := range children[parent] {
			order = append(order, child)
			visit(child)
		}
	}
	visit(noPredecessor)
	r.order = order
}

// visibleIDs returns the non-tombstoned ElementIds in sequence order.
func (r *RGA) visibleIDs() []ElementId {
	out := make([]ElementId, 0, len(r.order))
	for _, id := range r.order {
		if rec := r.records[id]; rec != nil && !rec.Tombstone {
			out = append(out, id)
		}
	}
	return out
}

// Text returns the current visible sequence rendered as a string.
func (r *RGA) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.textLocked()
}

func (r *RGA) textLocked() string {
	visible := r.visibleIDs()
	runes := make([]rune, len(visible))
	for i, id := range visible {
		runes[i] = r.records[id].Value
	}
	return string(runes)
}

// Insert places value at the given visible position (0 = head) and
// returns the freshly generated ElementId.
func (r *RGA) Insert(position int, value rune) (ElementId, MutationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindRGA); err != nil {
		res, err := mutationFailure(err)
		return "", res, err
	}
	visible := r.visibleIDs()
	if position < 0 || position > len(visible) {
		res, err := mutationFailure(crdterrors.NewInvalidArgument("insert position out of range"))
		return "", res, err
	}

	old := r.textLocked()
	var predecessor ElementId
	hasPredecessor := position > 0
	if hasPredecessor {
		predecessor = visible[position-1]
	}

	id := ElementId(r.idgen.Next())
	r.records[id] = &rgaRecord{ID: id, Value: value, Predecessor: predecessor, HasPredecessor: hasPredecessor}
	r.rebuildOrder()

	clock := r.localIncrement()
	res, _ := mutationSuccess(old, r.textLocked(), clock)
	return id, res, nil
}

// Delete tombstones the visible element currently at position.
func (r *RGA) Delete(position int) (MutationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindRGA); err != nil {
		return mutationFailure(err)
	}
	visible := r.visibleIDs()
	if position < 0 || position >= len(visible) {
		return mutationFailure(crdterrors.NewInvalidArgument("delete position out of range"))
	}

	old := r.textLocked()
	id := visible[position]
	r.records[id].Tombstone = true
	// order is unchanged by a delete (spec §4.8); no rebuild needed.

	clock := r.localIncrement()
	return mutationSuccess(old, r.textLocked(), clock)
}

// ApplyOperation applies a remote insert or delete.
func (r *RGA) ApplyOperation(env *OperationEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindRGA); err != nil {
		return err
	}
	if err := r.checkEnvelopeKind(env); err != nil {
		return err
	}

	switch op := env.Payload.(type) {
	case RGAInsertOp:
		if _, known := r.records[op.ID]; known {
			break // idempotent: duplicate insert dropped
		}
		rec := &rgaRecord{ID: op.ID, Value: op.Value, Predecessor: op.Predecessor, HasPredecessor: op.HasPredecessor}
		if _, pending := r.pendingTombstones[op.ID]; pending {
			rec.Tombstone = true
			delete(r.pendingTombstones, op.ID)
		}
		r.records[op.ID] = rec
		r.rebuildOrder()
	case RGADeleteOp:
		if rec, known := r.records[op.ID]; known {
			rec.Tombstone = true
		} else {
			r.pendingTombstones[op.ID] = struct{}{}
		}
	default:
		return crdterrors.NewUnknownOperation("expected RGAInsertOp or RGADeleteOp payload")
	}

	r.syncWith(env.ClockAtEmission)
	return nil
}

// Merge unions both replicas' record maps (OR-ing tombstone flags for
// shared ids; mismatched immutable fields are a fatal CorruptState)
// and pending-tombstone sets, then reconciles and rebuilds order.
func (r *RGA) Merge(other CRDT) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validateEntry(KindRGA); err != nil {
		return err
	}
	if err := r.checkMergeKind(other); err != nil {
		return err
	}
	o := other.(*RGA)
	o.mu.Lock()
	defer o.mu.Unlock()

	// Check every shared id before touching state, so a conflict leaves
	// this instance unchanged.
	for id, rec := range o.records {
		existing, known := r.records[id]
		if known && (existing.Value != rec.Value || existing.HasPredecessor != rec.HasPredecessor || existing.Predecessor != rec.Predecessor) {
			return crdterrors.NewCorruptState("RGA element value conflict across replicas").
				WithMetadata("element_id", string(id))
		}
	}
	for id, rec := range o.records {
		existing, known := r.records[id]
		if !known {
			copyRec := *rec
			r.records[id] = &copyRec
			continue
		}
		existing.Tombstone = existing.Tombstone || rec.Tombstone
	}

	for id := range o.pendingTombstones {
		if rec, known := r.records[id]; known {
			rec.Tombstone = true
		} else {
			r.pendingTombstones[id] = struct{}{}
		}
	}
	for id := range r.pendingTombstones {
		if rec, known := r.records[id]; known {
			rec.Tombstone = true
			delete(r.pendingTombstones, id)
		}
	}

	r.rebuildOrder()
	r.syncWith(o.clock)
	return nil
}

// Equals reports whether both instances render the same visible text.
func (r *RGA) Equals(other CRDT) bool {
	o, ok := other.(*RGA)
	if !ok || o == nil {
		return false
	}
	r.mu.Lock()
	o.mu.Lock()
	defer r.mu.Unlock()
	defer o.mu.Unlock()

	return r.textLocked() == o.textLocked()
}

// Serialize returns the JSON-encoded record set. Order is not
// serialized; it is rebuilt deterministically from records on
// deserialize.
func (r *RGA) Serialize() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make(map[ElementId]rgaRecord, len(r.records))
	for id, rec := range r.records {
		records[id] = *rec
	}
	return json.Marshal(rgaState{Records: records, PendingTombstones: r.pendingTombstones})
}

// Deserialize replaces this instance's state from JSON bytes and
// rebuilds the visible order.
func (r *RGA) Deserialize(data []byte) error {
	var state rgaState
	if err := json.Unmarshal(data, &state); err != nil {
		return crdterrors.NewDeserializationFailed(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[ElementId]*rgaRecord, len(state.Records))
	for id, rec := range state.Records {
		copyRec := rec
		r.records[id] = &copyRec
	}
	if state.PendingTombstones == nil {
		state.PendingTombstones = make(map[ElementId]struct{})
	}
	r.pendingTombstones = state.PendingTombstones
	r.rebuildOrder()
	return nil
}

// Clone returns a deep, independent copy including the clock.
func (r *RGA) Clone() CRDT {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := &RGA{
		base:              base{kind: r.kind, id: r.id, replicaID: r.replicaID, clock: r.clock.Clone(), lastModified: r.lastModified},
		records:           make(map[ElementId]*rgaRecord, len(r.records)),
		pendingTombstones: make(map[ElementId]struct{}, len(r.pendingTombstones)),
		order:             append([]ElementId(nil), r.order...),
		idgen:             r.idgen,
	}
	for id, rec := range r.records {
		copyRec := *rec
		clone.records[id] = &copyRec
	}
	for id := range r.pendingTombstones {
		clone.pendingTombstones[id] = struct{}{}
	}
	return clone
}

// DebugInfo reports the visible text plus pending-record and
// tombstone counts.
func (r *RGA) DebugInfo() DebugInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	tombstones := 0
	for _, rec := range r.records {
		if rec.Tombstone {
			tombstones++
		}
	}
	return DebugInfo{
		VisualizationData: r.visualizationLocked(),
		Counters: map[string]int{
			"tombstones":         tombstones,
			"pending_tombstones": len(r.pendingTombstones),
		},
	}
}

// VisualizationData returns the stable shape for causal-order UIs.
func (r *RGA) VisualizationData() VisualizationData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visualizationLocked()
}

func (r *RGA) visualizationLocked() VisualizationData {
	text := r.textLocked()
	return r.base.visualization(text, map[string]interface{}{
		"text":  text,
		"order": r.order,
	})
}
