package tagging

// A VictimFinder decides which block should be evicted
type VictimFinder interface {
	FindVictim(set *Set) Block
}

// LRUVictimFinder evicts the least recently used block to evict
type LRUVictimFinder struct {
}

// NewLRUVictimFinder returns a newly constructed lru evictor
func NewLRUVictimFinder() *LRUVictimFinder {
	e := new(LRUVictimFinder)
	return e
}

// FindVictim returns the least recently used block in a set. Invalid blocks
// are always used first, lowest way first. Among valid blocks the one with the
// largest recency rank wins; on a tie the lower way wins.
func (e *LRUVictimFinder) FindVictim(set *Set) Block {
	for _, block := range set.Blocks {
		if !block.IsValid {
			return block
		}
	}

	victim := set.Blocks[0]
	for _, block := range set.Blocks[1:] {
		if block.RecencyRank > victim.RecencyRank {
			victim = block
		}
	}

	return victim
}
