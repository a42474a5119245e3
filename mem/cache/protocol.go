package cache

import (
	"fmt"

	"github.com/sarchlab/cachesim/sim"
)

// AccessKind tells whether an access reads or writes memory.
type AccessKind int

// The kinds of access a cache can receive.
const (
	Load AccessKind = iota
	Store
)

func (k AccessKind) String() string {
	switch k {
	case Load:
		return "load"
	case Store:
		return "store"
	default:
		return fmt.Sprintf("AccessKind(%d)", int(k))
	}
}

// Outcome is the result of looking up an access in the cache.
type Outcome int

// Possible outcomes of an access.
const (
	Miss Outcome = iota
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}

	return "miss"
}

// HookPosAccess marks the point right after an access has updated the cache.
// The hook item is an AccessInfo.
var HookPosAccess = &sim.HookPos{Name: "CacheAccess"}

// AccessInfo describes what a single access did to the cache.
type AccessInfo struct {
	Kind      AccessKind
	Address   uint64
	SetIndex  int
	Tag       uint64
	WayID     int
	Outcome   Outcome
	WroteBack bool
}

// Statistics accumulates the outcomes of all accesses an engine has
// processed.
type Statistics struct {
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	DirtyWriteBacks uint64 `json:"dirty_write_backs"`
}

// Accesses returns the number of accesses counted so far.
func (s Statistics) Accesses() uint64 {
	return s.Hits + s.Misses
}

// Line is a read-only view of one cache line.
type Line struct {
	Tag         uint64
	Valid       bool
	Dirty       bool
	RecencyRank int
}
