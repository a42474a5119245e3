package tagging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ranksOf(set *Set) []int {
	ranks := make([]int, 0, len(set.Blocks))
	for _, b := range set.Blocks {
		ranks = append(ranks, b.RecencyRank)
	}

	return ranks
}

var _ = Describe("Tags", func() {
	var (
		tags *tagArrayImpl
	)

	BeforeEach(func() {
		tags = NewTagArray(1024, 4).(*tagArrayImpl)
	})

	It("should report its shape", func() {
		Expect(tags.NumSets()).To(Equal(1024))
		Expect(tags.NumWays()).To(Equal(4))
	})

	It("should start with invalid blocks ranked by way", func() {
		set := tags.GetSet(7)

		for i, b := range set.Blocks {
			Expect(b.IsValid).To(BeFalse())
			Expect(b.IsDirty).To(BeFalse())
			Expect(b.SetID).To(Equal(7))
			Expect(b.WayID).To(Equal(i))
		}
		Expect(ranksOf(set)).To(Equal([]int{0, 1, 2, 3}))
	})

	It("should lookup", func() {
		set := tags.GetSet(1)
		set.Blocks[2].Tag = 0x100
		set.Blocks[2].IsValid = true

		block, ok := tags.Lookup(1, 0x100)

		Expect(ok).To(BeTrue())
		Expect(block.WayID).To(Equal(2))
	})

	It("should not find a block when lookup misses", func() {
		block, ok := tags.Lookup(1, 0x100)

		Expect(ok).To(BeFalse())
		Expect(block).To(BeZero())
	})

	It("should not find a block that is invalid", func() {
		set := tags.GetSet(1)
		set.Blocks[0].Tag = 0x100

		_, ok := tags.Lookup(1, 0x100)

		Expect(ok).To(BeFalse())
	})

	It("should not look in other sets", func() {
		set := tags.GetSet(2)
		set.Blocks[0].Tag = 0x100
		set.Blocks[0].IsValid = true

		_, ok := tags.Lookup(1, 0x100)

		Expect(ok).To(BeFalse())
	})

	It("should update a block but keep its rank", func() {
		block := tags.GetSet(3).Blocks[2]
		block.Tag = 0x42
		block.IsValid = true
		block.IsDirty = true
		block.RecencyRank = 0

		tags.Update(block)

		stored := tags.GetSet(3).Blocks[2]
		Expect(stored.Tag).To(Equal(uint64(0x42)))
		Expect(stored.IsValid).To(BeTrue())
		Expect(stored.IsDirty).To(BeTrue())
		Expect(stored.RecencyRank).To(Equal(2))
	})

	It("should age more recent blocks when visiting", func() {
		set := tags.GetSet(0)

		tags.Visit(set.Blocks[2])

		Expect(ranksOf(set)).To(Equal([]int{1, 2, 0, 3}))
	})

	It("should not change ranks when visiting the most recent block", func() {
		set := tags.GetSet(0)

		tags.Visit(set.Blocks[0])

		Expect(ranksOf(set)).To(Equal([]int{0, 1, 2, 3}))
	})

	It("should keep ranks a permutation after many visits", func() {
		set := tags.GetSet(0)

		for _, way := range []int{3, 1, 1, 0, 2, 3, 0, 2, 1} {
			tags.Visit(set.Blocks[way])
			Expect(ranksOf(set)).To(ConsistOf(0, 1, 2, 3))
			Expect(set.Blocks[way].RecencyRank).To(Equal(0))
		}
	})

	It("should reset", func() {
		set := tags.GetSet(0)
		set.Blocks[1].IsValid = true
		tags.Visit(set.Blocks[3])

		tags.Reset()

		set = tags.GetSet(0)
		Expect(set.Blocks[1].IsValid).To(BeFalse())
		Expect(ranksOf(set)).To(Equal([]int{0, 1, 2, 3}))
	})
})
