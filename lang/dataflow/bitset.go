package dataflow

import "github.com/willf/bitset"

// BitSet is the dense, word-packed set representation used by both
// analyses: variable ids for liveness, instruction offsets for
// reaching-definitions. Backed directly by github.com/willf/bitset
// (the same library the standalone go/ast reaching-definitions pass
// in the example corpus uses for its own GEN/KILL sets), so union,
// difference, clone and equality all come from a tested word-packed
// implementation rather than being hand-rolled here.
type BitSet = bitset.BitSet

// NewBitSet returns an empty BitSet.
func NewBitSet() *BitSet { return bitset.New(0) }

// CloneOrEmpty returns a clone of b, or a fresh empty BitSet if b is
// nil. Used wherever a missing map entry should behave like the
// empty set rather than panicking on a nil dereference.
func CloneOrEmpty(b *BitSet) *BitSet {
	if b == nil {
		return NewBitSet()
	}
	return b.Clone()
}

// Union returns the union of a and b, consuming neither.
func Union(a, b *BitSet) *BitSet {
	if a == nil {
		a = NewBitSet()
	}
	if b == nil {
		return a.Clone()
	}
	return a.Union(b)
}

// Difference returns a \ b, consuming neither.
func Difference(a, b *BitSet) *BitSet {
	if a == nil {
		a = NewBitSet()
	}
	if b == nil {
		return a.Clone()
	}
	return a.Difference(b)
}

// Equal reports whether a and b contain the same elements, treating a
// nil BitSet as empty.
func Equal(a, b *BitSet) bool {
	if a == nil {
		a = NewBitSet()
	}
	if b == nil {
		b = NewBitSet()
	}
	return a.Equal(b)
}
