// Package ids mints sortable identifiers for persisted rows.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints ULIDs from its own monotonic entropy source. It is safe
// for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator reads randomness from entropy, or crypto/rand when nil.
func NewGenerator(entropy io.Reader) *Generator {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// New returns a ULID stamped with now. Identifiers minted by the same
// Generator in the same millisecond still sort in creation order.
func (g *Generator) New(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), g.entropy).String()
}
