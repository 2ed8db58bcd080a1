package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates syncIds of the form "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike model.FixedGenerator, which is given its ids up front, this
// generator never runs out. Golden files stay byte-identical across runs
// because the sequence depends only on creation order.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. If prefix is empty, "id" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id in sequence.
//
// Implements model.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
