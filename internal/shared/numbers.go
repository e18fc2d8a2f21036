package shared

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// NumberGenerator issues prefixed document numbers such as "TXN-2026-001234".
// Uniqueness is ultimately enforced by the store; callers retry with a new
// candidate when an insert reports a duplicate.
type NumberGenerator struct {
	mu  sync.Mutex
	seq map[string]int64
	now func() time.Time
}

// NewNumberGenerator constructs a generator. Each prefix starts from a
// random offset so restarts do not replay the same sequence.
func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{seq: make(map[string]int64), now: time.Now}
}

// Next returns the next candidate number for prefix.
func (g *NumberGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seq[prefix]; !ok {
		g.seq[prefix] = rand.Int63n(900000)
	}
	g.seq[prefix]++
	return fmt.Sprintf("%s-%d-%06d", prefix, g.now().UTC().Year(), g.seq[prefix]%1000000)
}
