package testfixtures

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// fixtureNamespace seeds the name-based UUIDs handed out by UUID generators.
var fixtureNamespace = uuid.MustParse("6f0c7a52-2d0e-4a53-9a43-3b8f5a0e1c11")

// IDGenerator produces deterministic identifiers for tests, either as
// "<prefix>-<n>" or as UUIDs shaped like the ones production issues.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	uuids   bool
	counter uint64
}

// NewIDGenerator constructs a generator that yields identifiers with the given
// prefix. When prefix is empty, "id" is used.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator returns a generator of version 5 UUIDs derived from prefix
// and the counter, so reruns produce the same sequence.
func NewUUIDGenerator(prefix string) *IDGenerator {
	gen := NewIDGenerator(prefix)
	gen.uuids = true
	return gen
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	if g.uuids {
		return uuid.NewSHA1(fixtureNamespace, []byte(g.prefix+"/"+strconv.FormatUint(g.counter, 10))).String()
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next as a function suitable for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// SetCounter overrides the internal counter, enabling deterministic resets.
func (g *IDGenerator) SetCounter(counter uint64) {
	g.mu.Lock()
	g.counter = counter
	g.mu.Unlock()
}
