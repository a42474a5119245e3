package tagging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LRUVictimFinder", func() {
	var (
		finder *LRUVictimFinder
		set    *Set
	)

	BeforeEach(func() {
		finder = NewLRUVictimFinder()
		set = &Set{Blocks: []Block{
			{WayID: 0, RecencyRank: 0},
			{WayID: 1, RecencyRank: 1},
			{WayID: 2, RecencyRank: 2},
			{WayID: 3, RecencyRank: 3},
		}}
	})

	It("should pick the first invalid block", func() {
		set.Blocks[0].IsValid = true

		victim := finder.FindVictim(set)

		Expect(victim.WayID).To(Equal(1))
	})

	It("should prefer an invalid block over the least recently used", func() {
		for i := range set.Blocks {
			set.Blocks[i].IsValid = true
		}
		set.Blocks[1].IsValid = false
		set.Blocks[1].RecencyRank = 0
		set.Blocks[0].RecencyRank = 1

		victim := finder.FindVictim(set)

		Expect(victim.WayID).To(Equal(1))
	})

	It("should pick the block with the largest rank", func() {
		ranks := []int{2, 0, 3, 1}
		for i := range set.Blocks {
			set.Blocks[i].IsValid = true
			set.Blocks[i].RecencyRank = ranks[i]
		}

		victim := finder.FindVictim(set)

		Expect(victim.WayID).To(Equal(2))
	})

	It("should break ties by the lowest way", func() {
		for i := range set.Blocks {
			set.Blocks[i].IsValid = true
			set.Blocks[i].RecencyRank = 1
		}

		victim := finder.FindVictim(set)

		Expect(victim.WayID).To(Equal(0))
	})

	It("should pick the only block of a direct-mapped set", func() {
		set = &Set{Blocks: []Block{{IsValid: true, Tag: 9}}}

		victim := finder.FindVictim(set)

		Expect(victim.Tag).To(Equal(uint64(9)))
	})
})
