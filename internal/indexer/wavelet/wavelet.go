// Package wavelet implements the document-array partition: a balanced
// binary wavelet tree over document symbols. Each node covers the symbols
// sharing a level-bit prefix and the subsequence of the document array
// holding those symbols; occurrence ranges are narrowed into a child with
// rank queries on the node's bit vector.
package wavelet

import (
	"math/bits"

	"github.com/bits-and-blooms/bitset"

	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// Range is a half-open interval [Lo, Hi) of positions local to a node.
type Range struct {
	Lo, Hi uint64
}

func (r Range) Empty() bool  { return r.Lo >= r.Hi }
func (r Range) Size() uint64 {
	if r.Empty() {
		return 0
	}
	return r.Hi - r.Lo
}

type node struct {
	size        uint64
	bv          *bitset.BitSet // nil at leaves
	left, right *node
}

// rank1 counts set bits in [0, i).
func (n *node) rank1(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	return uint64(n.bv.Rank(uint(i - 1)))
}

// Node is a handle to a tree node. The zero value of an absent child is
// empty.
type Node struct {
	level uint
	sym   uint64
	shift uint
	n     *node
}

func (v Node) Level() uint { return v.level }

// Sym is the level-bit prefix shared by every symbol under v; at a leaf it
// is the symbol itself.
func (v Node) Sym() uint64 { return v.sym }

// MinSymbol is the smallest symbol the subtree can hold.
func (v Node) MinSymbol() uint64 { return v.sym << v.shift }

// Size is the number of document-array positions under v.
func (v Node) Size() uint64 {
	if v.n == nil {
		return 0
	}
	return v.n.size
}

// Less orders nodes by the smallest symbol they cover, then by level.
func (v Node) Less(o Node) bool {
	if a, b := v.MinSymbol(), o.MinSymbol(); a != b {
		return a < b
	}
	return v.level < o.level
}

// Tree is immutable after New and safe for concurrent readers.
type Tree struct {
	root     *node
	maxLevel uint
	sigma    uint64
}

// New builds the tree over seq, whose symbols must be below sigma.
func New(seq []uint32, sigma uint64) (*Tree, error) {
	var maxLevel uint
	if sigma > 1 {
		maxLevel = uint(bits.Len64(sigma - 1))
	}
	for i, s := range seq {
		if uint64(s) >= sigma {
			return nil, apperrors.Corruptf("document array symbol %d at %d exceeds alphabet %d", s, i, sigma)
		}
	}
	t := &Tree{maxLevel: maxLevel, sigma: sigma}
	t.root = t.build(seq, 0)
	return t, nil
}

func (t *Tree) build(seq []uint32, level uint) *node {
	if len(seq) == 0 {
		return nil
	}
	n := &node{size: uint64(len(seq))}
	if level == t.maxLevel {
		return n
	}
	bit := t.maxLevel - 1 - level
	n.bv = bitset.New(uint(len(seq)))
	left := make([]uint32, 0, len(seq))
	right := make([]uint32, 0, len(seq))
	for i, s := range seq {
		if (s>>bit)&1 == 1 {
			n.bv.Set(uint(i))
			right = append(right, s)
		} else {
			left = append(left, s)
		}
	}
	n.left = t.build(left, level+1)
	n.right = t.build(right, level+1)
	return n
}

func (t *Tree) Root() Node {
	return Node{level: 0, sym: 0, shift: t.maxLevel, n: t.root}
}

func (t *Tree) MaxLevel() uint { return t.maxLevel }

// Sigma is the alphabet size the tree was built for.
func (t *Tree) Sigma() uint64 { return t.sigma }

func (t *Tree) IsLeaf(v Node) bool { return v.level == t.maxLevel }

func (t *Tree) Empty(v Node) bool { return v.Size() == 0 }

// Expand returns the children of an internal node.
func (t *Tree) Expand(v Node) (Node, Node) {
	var l, r *node
	if v.n != nil {
		l, r = v.n.left, v.n.right
	}
	level, shift := v.level+1, v.shift-1
	return Node{level: level, sym: v.sym << 1, shift: shift, n: l},
		Node{level: level, sym: v.sym<<1 | 1, shift: shift, n: r}
}

// ExpandRanges maps each range of v onto its left and right children. A
// position counted in ranges[i] is counted in exactly one of left[i] and
// right[i].
func (t *Tree) ExpandRanges(v Node, ranges []Range) (left, right []Range, err error) {
	if t.IsLeaf(v) {
		return nil, nil, apperrors.Corruptf("expanding leaf %d", v.sym)
	}
	left = make([]Range, len(ranges))
	right = make([]Range, len(ranges))
	for i, r := range ranges {
		if r.Empty() {
			continue
		}
		if v.n == nil || r.Hi > v.n.size {
			return nil, nil, apperrors.Corruptf("range [%d, %d) outside node of size %d", r.Lo, r.Hi, v.Size())
		}
		ones0, ones1 := v.n.rank1(r.Lo), v.n.rank1(r.Hi)
		left[i] = Range{Lo: r.Lo - ones0, Hi: r.Hi - ones1}
		right[i] = Range{Lo: ones0, Hi: ones1}
	}
	return left, right, nil
}

// access returns the symbol at position i of the sequence.
func (t *Tree) access(i uint64) (uint64, error) {
	v := t.Root()
	if i >= v.Size() {
		return 0, apperrors.Corruptf("position %d outside sequence of length %d", i, v.Size())
	}
	for !t.IsLeaf(v) {
		ones := v.n.rank1(i)
		l, r := t.Expand(v)
		if v.n.bv.Test(uint(i)) {
			v, i = r, ones
		} else {
			v, i = l, i-ones
		}
	}
	return v.sym, nil
}
