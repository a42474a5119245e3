package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/mem/cache/internal/tagging"
	"github.com/sarchlab/cachesim/sim"
)

// Builder can build cache engines.
type Builder struct {
	associativity int
	cacheByteSize uint64
	lineByteSize  uint64
	victimFinder  tagging.VictimFinder
}

// MakeBuilder creates a new builder with a 16 KB direct-mapped cache of
// 16-byte lines.
func MakeBuilder() Builder {
	return Builder{
		associativity: DirectMapped,
		cacheByteSize: 16 * KB,
		lineByteSize:  16,
	}
}

// WithAssociativity sets the number of ways per set. Use FullyAssociative (0)
// or DirectMapped (1) for the two special organizations.
func (b Builder) WithAssociativity(associativity int) Builder {
	b.associativity = associativity
	return b
}

// WithCacheByteSize sets the total capacity of the cache.
func (b Builder) WithCacheByteSize(byteSize uint64) Builder {
	b.cacheByteSize = byteSize
	return b
}

// WithLineByteSize sets the size of a cache line.
func (b Builder) WithLineByteSize(byteSize uint64) Builder {
	b.lineByteSize = byteSize
	return b
}

// withVictimFinder replaces the LRU victim finder. Only tests need another
// policy.
func (b Builder) withVictimFinder(vf tagging.VictimFinder) Builder {
	b.victimFinder = vf
	return b
}

// Build creates the engine.
func (b Builder) Build(name string) *Engine {
	b.parametersMustBeValid()

	geometry := NewGeometry(b.associativity, b.cacheByteSize, b.lineByteSize)
	geometryMustBeFull(geometry)

	victimFinder := b.victimFinder
	if victimFinder == nil {
		victimFinder = tagging.NewLRUVictimFinder()
	}

	return &Engine{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		geometry:     geometry,
		tags:         tagging.NewTagArray(geometry.NumSets, geometry.NumWays),
		victimFinder: victimFinder,
	}
}

func (b Builder) parametersMustBeValid() {
	if b.lineByteSize == 0 || b.cacheByteSize == 0 {
		panic("cache and line size must not be zero")
	}

	if b.associativity < 0 {
		panic("associativity must not be negative")
	}
}

func geometryMustBeFull(g Geometry) {
	if g.NumSets == 0 || g.NumWays == 0 || g.TotalSize() != g.CacheByteSize {
		panic(fmt.Sprintf(
			"geometry %s does not cover the %d-byte cache",
			g, g.CacheByteSize))
	}
}
