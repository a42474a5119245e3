package cache

import (
	"fmt"
	"math/bits"
)

// Byte size units.
const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
)

// Associativity values with a special meaning.
const (
	FullyAssociative = 0
	DirectMapped     = 1
)

// Geometry describes the shape of a cache. It is immutable once created.
//
// All sizes must be powers of two. The geometry is not validated here; the
// config package checks user input before a geometry is built.
type Geometry struct {
	Associativity int
	CacheByteSize uint64
	LineByteSize  uint64

	NumSets      int
	NumWays      int
	Log2LineSize int
	Log2NumSets  int
}

// NewGeometry derives the number of sets and ways from the requested
// associativity. Associativity 0 is fully associative and 1 is direct mapped.
func NewGeometry(
	associativity int,
	cacheByteSize, lineByteSize uint64,
) Geometry {
	g := Geometry{
		Associativity: associativity,
		CacheByteSize: cacheByteSize,
		LineByteSize:  lineByteSize,
	}

	numLines := int(cacheByteSize / lineByteSize)

	switch associativity {
	case FullyAssociative:
		g.NumSets = 1
		g.NumWays = numLines
	case DirectMapped:
		g.NumSets = numLines
		g.NumWays = 1
	default:
		g.NumWays = associativity
		g.NumSets = int(cacheByteSize / (lineByteSize * uint64(associativity)))
	}

	g.Log2LineSize = log2(lineByteSize)
	g.Log2NumSets = log2(uint64(g.NumSets))

	return g
}

func log2(n uint64) int {
	if n == 0 {
		return 0
	}

	return bits.Len64(n) - 1
}

// TotalSize returns the number of bytes covered by all sets and ways.
func (g Geometry) TotalSize() uint64 {
	return uint64(g.NumSets) * uint64(g.NumWays) * g.LineByteSize
}

// Decode splits an address into the set it maps to and its tag. Decode is
// total: every address decodes.
func (g Geometry) Decode(address uint64) (setIndex int, tag uint64) {
	if g.NumSets > 1 {
		setIndex = int((address >> g.Log2LineSize) & uint64(g.NumSets-1))
	}

	tag = address >> (g.Log2LineSize + g.Log2NumSets)

	return setIndex, tag
}

// TagBits returns the number of address bits that form the tag.
func (g Geometry) TagBits() int {
	return 64 - g.Log2LineSize - g.Log2NumSets
}

// MaxTag returns the largest tag a 64-bit address can produce.
func (g Geometry) MaxTag() uint64 {
	return ^uint64(0) >> (g.Log2LineSize + g.Log2NumSets)
}

// Kind names the organization of the cache.
func (g Geometry) Kind() string {
	switch {
	case g.NumSets == 1:
		return "fully associative"
	case g.NumWays == 1:
		return "direct mapped"
	default:
		return fmt.Sprintf("%d-way set associative", g.NumWays)
	}
}

func (g Geometry) String() string {
	return fmt.Sprintf("%s, %d sets x %d ways x %d B",
		g.Kind(), g.NumSets, g.NumWays, g.LineByteSize)
}
