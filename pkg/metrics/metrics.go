// Package metrics exposes Prometheus instrumentation for the CRDT
// registry: operation counts, merge counts, error counts, and the
// gauges that feed DebugInfo (tombstone counts, pending RGA records).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all CRDT-related Prometheus collectors. Each instance
// owns a private registry so tests can construct as many Metrics as
// they like without colliding on Prometheus's global DefaultRegisterer.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal  *prometheus.CounterVec
	mergesTotal      *prometheus.CounterVec
	operationErrors  *prometheus.CounterVec
	mergeDuration    prometheus.Histogram
	orsetTombstones  *prometheus.GaugeVec
	rgaPendingRecord *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance backed by a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crdt_operations_applied_total",
			Help: "Total number of operations applied to a CRDT instance",
		}, []string{"crdt_type", "operation"}),

		mergesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crdt_merges_total",
			Help: "Total number of whole-state merges performed",
		}, []string{"crdt_type"}),

		operationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crdt_operation_errors_total",
			Help: "Total number of operations rejected with an error",
		}, []string{"crdt_type", "error_code"}),

		mergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crdt_merge_duration_seconds",
			Help:    "Duration of whole-state merge operations",
			Buckets: prometheus.DefBuckets,
		}),

		orsetTombstones: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crdt_orset_tombstones",
			Help: "Current tombstone tag count for an OR-Set instance",
		}, []string{"crdt_id"}),

		rgaPendingRecord: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crdt_rga_pending_records",
			Help: "Current count of RGA records whose predecessor chain is unresolved",
		}, []string{"crdt_id"}),
	}
}

// RecordOperation records a successfully applied operation.
func (m *Metrics) RecordOperation(crdtType, operation string) {
	m.operationsTotal.WithLabelValues(crdtType, operation).Inc()
}

// RecordMerge records a completed merge and its duration.
func (m *Metrics) RecordMerge(crdtType string, duration time.Duration) {
	m.mergesTotal.WithLabelValues(crdtType).Inc()
	m.mergeDuration.Observe(duration.Seconds())
}

// RecordError records an operation rejected with the given error code.
func (m *Metrics) RecordError(crdtType, errorCode string) {
	m.operationErrors.WithLabelValues(crdtType, errorCode).Inc()
}

// SetORSetTombstones sets the current tombstone tag count for crdtID.
func (m *Metrics) SetORSetTombstones(crdtID string, count int) {
	m.orsetTombstones.WithLabelValues(crdtID).Set(float64(count))
}

// SetRGAPendingRecords sets the current pending-record count for crdtID.
func (m *Metrics) SetRGAPendingRecords(crdtID string, count int) {
	m.rgaPendingRecord.WithLabelValues(crdtID).Set(float64(count))
}

// Registry returns the Prometheus gatherer backing this instance, for
// exposition via a /metrics endpoint owned by the host process.
func (m *Metrics) Registry() prometheus.Gatherer {
	return m.registry
}
