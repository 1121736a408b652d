package crdt

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lirlia/crdt-replicator/internal/crdterrors"
	"github.com/lirlia/crdt-replicator/internal/validation"
	"github.com/lirlia/crdt-replicator/pkg/metrics"
)

// LogEntry records one dispatched envelope or completed merge for
// later DebugInfo/VisualizationData consumption (causality charts
// needing "what happened in what order"). Bounded and FIFO-evicted,
// mirroring the teacher's mergeLog/maxMergeOps pattern.
type LogEntry struct {
	ID        string
	CrdtID    CrdtId
	Kind      CrdtKind
	Operation string // "dispatch" or "merge"
	Timestamp time.Time
}

// Registry constructs CRDT instances by kind tag and CrdtId and routes
// operation envelopes to the right one (spec §4.9, C10). It performs
// no I/O of its own: transport and persistence are external
// collaborators that feed it envelopes and consume its snapshots.
type Registry struct {
	mu         sync.Mutex
	replicaID  ReplicaId
	idgen      *IDGenerator
	instances  map[CrdtId]CRDT
	log        []LogEntry
	maxLogSize int
	metrics    *metrics.Metrics
	logger     *zap.Logger
	validator  *validation.Validator
}

// RegistryOption customizes a Registry at construction time.
type RegistryOption func(*Registry)

// WithMetrics attaches a metrics collector. Passing nil (or omitting
// this option) leaves metrics recording a no-op, same as a teacher
// service that works without its optional collaborator.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger attaches a structured logger. Defaults to zap.NewNop()
// when omitted.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMaxLogSize bounds the operation log. Defaults to 1000 entries,
// matching the teacher's maxMergeOps default.
func WithMaxLogSize(n int) RegistryOption {
	return func(r *Registry) { r.maxLogSize = n }
}

// WithValidator overrides the struct validator used at the transport
// boundary (Dispatch/GetOrCreate). Defaults to validation.NewValidator().
func WithValidator(v *validation.Validator) RegistryOption {
	return func(r *Registry) { r.validator = v }
}

// NewRegistry constructs a Registry owned by replica. idgen supplies
// tags/ElementIds for OR-Set and RGA instances created through
// GetOrCreate.
func NewRegistry(replica ReplicaId, idgen *IDGenerator, opts ...RegistryOption) *Registry {
	r := &Registry{
		replicaID:  replica,
		idgen:      idgen,
		instances:  make(map[CrdtId]CRDT),
		maxLogSize: 1000,
		logger:     zap.NewNop(),
		validator:  validation.NewValidator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newInstance builds a zeroed CRDT of the requested kind. LwwRegister
// defaults to LwwRegister[string]; callers needing a different payload
// type construct and register it directly via Put.
func (r *Registry) newInstance(kind CrdtKind, id CrdtId) (CRDT, error) {
	switch kind {
	case KindGCounter:
		return NewGCounter(id, r.replicaID), nil
	case KindPNCounter:
		return NewPNCounter(id, r.replicaID), nil
	case KindGSet:
		return NewGSet(id, r.replicaID), nil
	case KindORSet:
		return NewORSet(id, r.replicaID, r.idgen), nil
	case KindLWWRegister:
		return NewLwwRegister[string](id, r.replicaID), nil
	case KindRGA:
		return NewRGA(id, r.replicaID, r.idgen), nil
	default:
		return nil, crdterrors.NewInvalidArgument("unknown crdt kind").WithMetadata("kind", string(kind))
	}
}

// GetOrCreate returns the instance for id, creating one of kind on
// first reference. A later call for the same id with a different kind
// fails KindMismatch without mutating anything.
func (r *Registry) GetOrCreate(kind CrdtKind, id CrdtId) (CRDT, error) {
	if err := r.validator.ValidateVar(string(kind), "required,crdtkind"); err != nil {
		return nil, err
	}
	if err := r.validator.ValidateVar(string(id), "required"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.instances[id]; ok {
		if existing.Kind() != kind {
			return nil, crdterrors.NewKindMismatch("crdt id already registered under a different kind").
				WithMetadata("crdt_id", string(id)).
				WithMetadata("existing_kind", string(existing.Kind())).
				WithMetadata("requested_kind", string(kind))
		}
		return existing, nil
	}

	instance, err := r.newInstance(kind, id)
	if err != nil {
		return nil, err
	}
	r.instances[id] = instance
	r.logger.Debug("crdt instance created", zap.String("crdt_id", string(id)), zap.String("kind", string(kind)))
	return instance, nil
}

// Put registers an already-constructed instance directly, for callers
// that need a non-default LwwRegister type parameter or a restored
// instance from Deserialize.
func (r *Registry) Put(instance CRDT) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if instance == nil {
		return crdterrors.NewInvalidArgument("instance must not be nil")
	}
	if existing, ok := r.instances[instance.ID()]; ok && existing.Kind() != instance.Kind() {
		return crdterrors.NewKindMismatch("crdt id already registered under a different kind").
			WithMetadata("crdt_id", string(instance.ID()))
	}
	r.instances[instance.ID()] = instance
	return nil
}

// Get returns the instance for id, if any.
func (r *Registry) Get(id CrdtId) (CRDT, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[id]
	return instance, ok
}

// Dispatch validates the envelope's fields (spec §4.2's "validation on
// every entry", enforced here rather than per-instance since the
// envelope is the thing that crossed the transport boundary), then
// locates its target instance (creating it if absent) and applies the
// operation.
func (r *Registry) Dispatch(env *OperationEnvelope) error {
	start := time.Now()

	if err := r.validator.ValidateStruct(env); err != nil {
		r.recordError(env.Kind, err)
		return err
	}

	instance, err := r.GetOrCreate(env.Kind, env.CrdtID)
	if err != nil {
		r.recordError(env.Kind, err)
		return err
	}

	if err := instance.ApplyOperation(env); err != nil {
		r.recordError(env.Kind, err)
		return err
	}

	r.mu.Lock()
	r.appendLog(LogEntry{ID: env.ID, CrdtID: env.CrdtID, Kind: env.Kind, Operation: "dispatch", Timestamp: time.Now()})
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordOperation(string(env.Kind), env.Payload.OpType())
	}
	r.updateGauges(instance)
	r.logger.Debug("envelope dispatched",
		zap.String("envelope_id", env.ID),
		zap.String("crdt_id", string(env.CrdtID)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// MergeInto merges incoming's full state into the registry's instance
// for the same CrdtId, creating a fresh instance of incoming's kind if
// none is registered yet.
func (r *Registry) MergeInto(incoming CRDT) error {
	start := time.Now()

	local, err := r.GetOrCreate(incoming.Kind(), incoming.ID())
	if err != nil {
		r.recordError(incoming.Kind(), err)
		return err
	}

	if err := local.Merge(incoming); err != nil {
		r.recordError(incoming.Kind(), err)
		return err
	}

	r.mu.Lock()
	logID := fmt.Sprintf("%s-merge-%d", r.replicaID, len(r.log))
	r.appendLog(LogEntry{ID: logID, CrdtID: incoming.ID(), Kind: incoming.Kind(), Operation: "merge", Timestamp: time.Now()})
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordMerge(string(incoming.Kind()), time.Since(start))
	}
	r.updateGauges(local)
	return nil
}

// updateGauges refreshes the per-kind gauges (spec §6's DebugInfo
// counters, exposed as Prometheus gauges) for instance after a
// successful dispatch or merge. A no-op when no metrics collector is
// attached.
func (r *Registry) updateGauges(instance CRDT) {
	if r.metrics == nil {
		return
	}
	counters := instance.DebugInfo().Counters
	switch instance.Kind() {
	case KindORSet:
		r.metrics.SetORSetTombstones(string(instance.ID()), counters["tombstones"])
	case KindRGA:
		// Records not reachable from the head are the ones whose
		// predecessor chain is unresolved; rebuildOrder leaves them out.
		if rga, ok := instance.(*RGA); ok {
			rga.mu.Lock()
			pending := len(rga.records) - len(rga.order)
			rga.mu.Unlock()
			r.metrics.SetRGAPendingRecords(string(instance.ID()), pending)
		}
	}
}

// appendLog appends e, evicting the oldest entry if the log is at
// capacity. Caller must hold r.mu.
func (r *Registry) appendLog(e LogEntry) {
	if len(r.log) >= r.maxLogSize {
		r.log = r.log[1:]
	}
	r.log = append(r.log, e)
}

func (r *Registry) recordError(kind CrdtKind, err error) {
	if r.metrics == nil {
		return
	}
	code := "unknown"
	if ce, ok := crdterrors.As(err); ok {
		code = string(ce.Code)
	}
	r.metrics.RecordError(string(kind), code)
}

// GetLog returns a copy of the bounded dispatch/merge log.
func (r *Registry) GetLog() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.log))
	copy(out, r.log)
	return out
}

// SnapshotAll returns a StateSnapshot for every registered instance,
// for persistence or cross-replica bootstrap. Performs no I/O itself.
func (r *Registry) SnapshotAll() ([]StateSnapshot, error) {
	r.mu.Lock()
	instances := make([]CRDT, 0, len(r.instances))
	for _, inst := range r.instances {
		instances = append(instances, inst)
	}
	r.mu.Unlock()

	snapshots := make([]StateSnapshot, 0, len(instances))
	for _, inst := range instances {
		data, err := inst.Serialize()
		if err != nil {
			return nil, crdterrors.NewDeserializationFailed(err).WithMetadata("crdt_id", string(inst.ID()))
		}
		clockJSON, err := marshalVectorClock(inst.VectorClock())
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, StateSnapshot{
			ID:          fmt.Sprintf("%s-snapshot", inst.ID()),
			NodeID:      string(inst.ReplicaID()),
			CrdtType:    string(inst.Kind()),
			CrdtID:      string(inst.ID()),
			State:       string(data),
			VectorClock: clockJSON,
			UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		})
	}

	if r.metrics != nil {
		r.metrics.RecordOperation("registry", "snapshot_all")
	}
	return snapshots, nil
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}
