// Package cache models a write-back, write-allocate, set-associative cache
// with LRU replacement. It keeps only metadata; no data bytes are stored.
package cache

import (
	"errors"
	"fmt"

	"github.com/sarchlab/cachesim/mem/cache/internal/tagging"
	"github.com/sarchlab/cachesim/sim"
)

// ErrSetIndexOutOfRange reports a decoded set index that does not address a
// set. It indicates a geometry or decoder defect, never bad input data.
var ErrSetIndexOutOfRange = errors.New("set index out of range")

// Engine replays accesses against the cache state.
//
// An Engine is not safe for concurrent use. Accesses must be submitted in
// trace order since LRU ranks and dirty bits depend on history.
type Engine struct {
	*sim.HookableBase

	name         string
	geometry     Geometry
	tags         tagging.TagArray
	victimFinder tagging.VictimFinder
	stats        Statistics
}

// NewEngine creates an engine with LRU replacement. The arguments must already
// be valid: power-of-two sizes, and an associativity of 0, 1, or a power of
// two that does not exceed the number of lines.
func NewEngine(
	associativity int,
	cacheByteSize, lineByteSize uint64,
) *Engine {
	return MakeBuilder().
		WithAssociativity(associativity).
		WithCacheByteSize(cacheByteSize).
		WithLineByteSize(lineByteSize).
		Build("Cache")
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// Geometry returns the shape of the cache.
func (e *Engine) Geometry() Geometry {
	return e.geometry
}

// Access looks up one address, updates the cache state and the statistics,
// and reports whether the access hit.
func (e *Engine) Access(kind AccessKind, address uint64) (Outcome, error) {
	setID, tag := e.geometry.Decode(address)
	if setID < 0 || setID >= e.geometry.NumSets {
		return Miss, fmt.Errorf("%w: address 0x%x decoded to set %d of %d",
			ErrSetIndexOutOfRange, address, setID, e.geometry.NumSets)
	}

	info := AccessInfo{
		Kind:     kind,
		Address:  address,
		SetIndex: setID,
		Tag:      tag,
	}

	block, hit := e.tags.Lookup(setID, tag)
	if hit {
		e.handleHit(kind, block, &info)
	} else {
		e.handleMiss(kind, setID, tag, &info)
	}

	if e.NumHooks() > 0 {
		e.InvokeHook(sim.HookCtx{
			Domain: e,
			Pos:    HookPosAccess,
			Item:   info,
		})
	}

	return info.Outcome, nil
}

func (e *Engine) handleHit(kind AccessKind, block tagging.Block, info *AccessInfo) {
	if kind == Store {
		block.IsDirty = true
		e.tags.Update(block)
	}

	e.tags.Visit(block)
	e.stats.Hits++

	info.WayID = block.WayID
	info.Outcome = Hit
}

func (e *Engine) handleMiss(
	kind AccessKind,
	setID int,
	tag uint64,
	info *AccessInfo,
) {
	e.stats.Misses++

	victim := e.victimFinder.FindVictim(e.tags.GetSet(setID))
	if victim.IsValid && victim.IsDirty {
		e.stats.DirtyWriteBacks++
		info.WroteBack = true
	}

	victim.Tag = tag
	victim.IsValid = true
	victim.IsDirty = kind == Store

	e.tags.Update(victim)
	e.tags.Visit(victim)

	info.WayID = victim.WayID
	info.Outcome = Miss
}

// Hits returns the number of accesses that hit.
func (e *Engine) Hits() uint64 {
	return e.stats.Hits
}

// Misses returns the number of accesses that missed.
func (e *Engine) Misses() uint64 {
	return e.stats.Misses
}

// DirtyWriteBacks returns the number of dirty lines evicted.
func (e *Engine) DirtyWriteBacks() uint64 {
	return e.stats.DirtyWriteBacks
}

// Stats returns a copy of all the counters.
func (e *Engine) Stats() Statistics {
	return e.stats
}

// Lines returns a copy of the lines of a set, in way order. It returns nil if
// setID is outside [0, NumSets).
func (e *Engine) Lines(setID int) []Line {
	if setID < 0 || setID >= e.geometry.NumSets {
		return nil
	}

	set := e.tags.GetSet(setID)

	lines := make([]Line, len(set.Blocks))
	for i, b := range set.Blocks {
		lines[i] = Line{
			Tag:         b.Tag,
			Valid:       b.IsValid,
			Dirty:       b.IsDirty,
			RecencyRank: b.RecencyRank,
		}
	}

	return lines
}
