package sim

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

// NewRunID returns a globally unique, time-sortable ID for a simulation run.
func NewRunID() string {
	return xid.New().String()
}

// NewSequentialIDGenerator creates a generator that produces prefix-1,
// prefix-2, and so on. IDs are deterministic for a given call order.
func NewSequentialIDGenerator(prefix string) IDGenerator {
	return &sequentialIDGenerator{prefix: prefix}
}

// NewUniqueIDGenerator creates a generator whose IDs are unique across
// processes but not deterministic.
func NewUniqueIDGenerator() IDGenerator {
	return uniqueIDGenerator{}
}

type sequentialIDGenerator struct {
	prefix string
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	if g.prefix == "" {
		return id
	}

	return g.prefix + "-" + id
}

type uniqueIDGenerator struct {
}

func (g uniqueIDGenerator) Generate() string {
	return xid.New().String()
}
