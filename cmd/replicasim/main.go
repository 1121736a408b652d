// Command replicasim is a thin, in-process demonstration harness for
// the replication core: it spins up a handful of replicas, drives a
// short scripted workload against their registries, exchanges whole
// instance states by direct merges (no envelopes, no network I/O), and
// logs the converged G-Counter value of every replica plus the number
// of snapshots one registry can offer for bootstrap. It exists to exercise the library the way the
// teacher's cmd/ binaries exercise its services — structured zap
// logging, graceful signal handling, a clean shutdown log line — not
// to reintroduce the transport/storage/UI scope this module excludes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lirlia/crdt-replicator/internal/config"
	"github.com/lirlia/crdt-replicator/internal/crdt"
	"github.com/lirlia/crdt-replicator/internal/logging"
	"github.com/lirlia/crdt-replicator/pkg/metrics"
)

// node bundles one simulated replica's registry, id generator, and
// identity, standing in for what a real host process would own.
type node struct {
	id    crdt.ReplicaId
	idgen *crdt.IDGenerator
	reg   *crdt.Registry
}

func newNode(id crdt.ReplicaId, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *node {
	idgen := crdt.NewIDGenerator(id, cfg.Replica.TagSaltBytes)
	reg := crdt.NewRegistry(id, idgen,
		crdt.WithMetrics(m),
		crdt.WithLogger(logger.Named(string(id))),
		crdt.WithMaxLogSize(cfg.Replica.MaxOperationLogEntries),
	)
	return &node{id: id, idgen: idgen, reg: reg}
}

// syncAll performs one full pairwise anti-entropy round: every node
// merges every other node's current state for crdtID. Run it whenever
// the simulation wants all replicas to converge before reporting.
func syncAll(nodes []*node, crdtID crdt.CrdtId) {
	for _, dst := range nodes {
		for _, src := range nodes {
			if dst == src {
				continue
			}
			inst, ok := src.reg.Get(crdtID)
			if !ok {
				continue
			}
			_ = dst.reg.MergeInto(inst.Clone())
		}
	}
}

func runSimulation(ctx context.Context, logger *zap.Logger, m *metrics.Metrics, cfg *config.Config) {
	a := newNode("replica-a", cfg, m, logger)
	b := newNode("replica-b", cfg, m, logger)
	c := newNode("replica-c", cfg, m, logger)
	nodes := []*node{a, b, c}

	logger.Info("replica simulation starting", zap.Int("replicas", len(nodes)))

	votes, _ := a.reg.GetOrCreate(crdt.KindGCounter, "votes")
	_, _ = votes.(*crdt.GCounter).Increment(3)
	votesB, _ := b.reg.GetOrCreate(crdt.KindGCounter, "votes")
	_, _ = votesB.(*crdt.GCounter).Increment(5)
	votesC, _ := c.reg.GetOrCreate(crdt.KindGCounter, "votes")
	_, _ = votesC.(*crdt.GCounter).Increment(2)

	tags, _ := a.reg.GetOrCreate(crdt.KindORSet, "tags")
	_, _ = tags.(*crdt.ORSet).Add("urgent")
	_, _ = tags.(*crdt.ORSet).Add("bug")

	doc, _ := a.reg.GetOrCreate(crdt.KindRGA, "doc")
	rgaA := doc.(*crdt.RGA)
	for i, r := range "hello" {
		_, _, _ = rgaA.Insert(i, r)
	}

	syncAll(nodes, "votes")
	syncAll(nodes, "tags")
	syncAll(nodes, "doc")

	for _, n := range nodes {
		inst, ok := n.reg.Get("votes")
		if !ok {
			continue
		}
		logger.Info("converged gcounter",
			zap.String("replica", string(n.id)),
			zap.Uint64("value", inst.(*crdt.GCounter).Value()),
			zap.Any("vector_clock", inst.VectorClock()),
		)
	}

	if snapshots, err := a.reg.SnapshotAll(); err == nil {
		logger.Info("snapshot bootstrap available", zap.Int("count", len(snapshots)))
	}

	select {
	case <-ctx.Done():
	case <-time.After(0):
	}
}

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Logging.Environment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	m := metrics.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runSimulation(ctx, logger, m, cfg)
	}()

	select {
	case <-quit:
		logger.Info("shutdown signal received")
		cancel()
	case <-done:
	}

	logger.Info("replica simulation exited")
}
