package crdt

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces globally unique tokens used as OR-Set add-tags
// and RGA ElementIds. Per spec §9, uniqueness must not depend on
// wall-clock monotonicity: each token combines this replica's id, a
// per-replica monotonic counter, and a short random salt for collision
// resistance across the whole fleet, grounded in the teacher's
// uuid.UUID usage (internal/services/anomaly_service.go) for entropy.
type IDGenerator struct {
	mu        sync.Mutex
	replica   ReplicaId
	counter   uint64
	saltChars int
}

// NewIDGenerator builds a generator for the given replica. saltBytes
// controls how many random bytes (rendered as hex, 2 chars/byte) are
// mixed into each token; 0 falls back to a sensible default.
func NewIDGenerator(replica ReplicaId, saltBytes int) *IDGenerator {
	if saltBytes <= 0 {
		saltBytes = 8
	}
	return &IDGenerator{replica: replica, saltChars: saltBytes * 2}
}

// Next returns a new, never-before-seen token of the form
// "<replica>-<counter>-<salt>".
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	g.counter++
	counter := g.counter
	g.mu.Unlock()

	salt := uuid.New().String()
	salt = stripHyphens(salt)
	if len(salt) > g.saltChars {
		salt = salt[:g.saltChars]
	}

	return fmt.Sprintf("%s-%d-%s", g.replica, counter, salt)
}

func stripHyphens(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
