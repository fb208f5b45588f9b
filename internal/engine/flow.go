package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator generates unique ids for sessions and items.
// Implemented by UUIDv7Generator (production), FixedGenerator and
// SequenceGenerator (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, making ids
// sortable by creation time, which helps when reading traces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
//	gen := NewFixedGenerator("session-1", "session-2")
//	gen.Generate() // "session-1"
//	gen.Generate() // "session-2"
//	gen.Generate() // panic: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
//
// Panics if all tokens have been consumed, which catches tests that create
// more sessions than expected.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// SequenceGenerator returns "<prefix>-0001", "<prefix>-0002", ...
// Used where tests and golden traces need stable ids without listing them.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator creates a counter-based generator.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix, next: 1}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := fmt.Sprintf("%s-%04d", g.prefix, g.next)
	g.next++
	return id
}
