package tagging

// TagArray keeps the metadata of every line in a cache. It knows nothing about
// addresses; callers decode an address into a set ID and a tag first.
type TagArray interface {
	Lookup(setID int, tag uint64) (Block, bool)
	Update(block Block)
	Visit(block Block)
	GetSet(setID int) *Set
	NumSets() int
	NumWays() int
	Reset()
}

// NewTagArray creates a tag array with all the blocks invalid.
func NewTagArray(
	numSets int,
	numWays int,
) TagArray {
	t := &tagArrayImpl{
		numSets: numSets,
		numWays: numWays,
		Sets:    []Set{},
	}

	t.Reset()

	return t
}

// A Block of a cache is the information that is associated with a cache line.
//
// RecencyRank 0 is the most recently used block of its set. Larger ranks are
// less recently used.
type Block struct {
	Tag         uint64
	SetID       int
	WayID       int
	IsValid     bool
	IsDirty     bool
	RecencyRank int
}

// A Set is a list of blocks where a certain piece memory can be stored at.
type Set struct {
	Blocks []Block
}

type tagArrayImpl struct {
	numSets int
	numWays int
	Sets    []Set
}

func (d *tagArrayImpl) NumSets() int {
	return d.numSets
}

func (d *tagArrayImpl) NumWays() int {
	return d.numWays
}

// GetSet returns the set with the given ID.
func (d *tagArrayImpl) GetSet(setID int) *Set {
	return &d.Sets[setID]
}

// Lookup finds the valid block in the set that holds the tag.
func (d *tagArrayImpl) Lookup(setID int, tag uint64) (Block, bool) {
	set := d.GetSet(setID)
	for _, block := range set.Blocks {
		if block.IsValid && block.Tag == tag {
			return block, true
		}
	}

	return Block{}, false
}

// Update writes the block information back into its slot. The recency rank
// of the slot is left untouched; only Visit changes ranks.
func (d *tagArrayImpl) Update(block Block) {
	slot := &d.Sets[block.SetID].Blocks[block.WayID]
	rank := slot.RecencyRank

	*slot = block
	slot.RecencyRank = rank
}

// Visit makes the block the most recently used one of its set. Every block
// that was more recently used than the visited block ages by one rank, so the
// ranks of a set stay a permutation of 0..numWays-1.
func (d *tagArrayImpl) Visit(block Block) {
	set := &d.Sets[block.SetID]
	target := set.Blocks[block.WayID].RecencyRank

	for i := range set.Blocks {
		if set.Blocks[i].RecencyRank < target {
			set.Blocks[i].RecencyRank++
		}
	}

	set.Blocks[block.WayID].RecencyRank = 0
}

// Reset will mark all the blocks in the directory invalid. Ranks start as the
// way index so that an untouched set has a deterministic order.
func (d *tagArrayImpl) Reset() {
	d.Sets = make([]Set, d.numSets)
	for i := 0; i < d.numSets; i++ {
		d.Sets[i].Blocks = make([]Block, d.numWays)

		for j := 0; j < d.numWays; j++ {
			d.Sets[i].Blocks[j] = Block{
				SetID:       i,
				WayID:       j,
				RecencyRank: j,
			}
		}
	}
}
