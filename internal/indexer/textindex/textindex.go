// Package textindex is the full-text side of the succinct index: a suffix
// array over the token text that answers pattern lookups with a contiguous
// range of suffix positions, and derives the document array (the document
// of every suffix, in suffix order) the wavelet tree is built over.
package textindex

import (
	"slices"
	"sort"
)

// Index is immutable after New and safe for concurrent readers.
type Index struct {
	text []uint64
	sa   []uint64
}

// New builds the suffix array of text by prefix doubling.
func New(text []uint64) *Index {
	n := len(text)
	sa := make([]uint64, n)
	rank := make([]int64, n)
	tmp := make([]int64, n)
	for i := range sa {
		sa[i] = uint64(i)
		rank[i] = int64(text[i])
	}
	key := func(i uint64, k int) int64 {
		j := int(i) + k
		if j < n {
			return rank[j]
		}
		return -1
	}
	for k := 1; ; k <<= 1 {
		cmp := func(a, b uint64) int {
			if rank[a] != rank[b] {
				if rank[a] < rank[b] {
					return -1
				}
				return 1
			}
			ka, kb := key(a, k), key(b, k)
			switch {
			case ka < kb:
				return -1
			case ka > kb:
				return 1
			}
			return 0
		}
		slices.SortFunc(sa, cmp)
		if n > 0 {
			tmp[sa[0]] = 0
		}
		for i := 1; i < n; i++ {
			tmp[sa[i]] = tmp[sa[i-1]]
			if cmp(sa[i-1], sa[i]) < 0 {
				tmp[sa[i]]++
			}
		}
		copy(rank, tmp)
		if n == 0 || rank[sa[n-1]] == int64(n-1) || k >= n {
			break
		}
	}
	return &Index{text: text, sa: sa}
}

// Size is the number of text positions.
func (x *Index) Size() uint64 { return uint64(len(x.sa)) }

func (x *Index) suffixArray() []uint64 { return x.sa }

// BackwardSearch returns the inclusive range [sp, ep] of suffixes starting with
// pattern, or ok=false if pattern does not occur.
func (x *Index) BackwardSearch(pattern []uint64) (sp, ep uint64, ok bool) {
	if len(pattern) == 0 {
		return 0, 0, false
	}
	lo := sort.Search(len(x.sa), func(i int) bool {
		return x.comparePrefix(x.sa[i], pattern) >= 0
	})
	hi := sort.Search(len(x.sa), func(i int) bool {
		return x.comparePrefix(x.sa[i], pattern) > 0
	})
	if lo >= hi {
		return 0, 0, false
	}
	return uint64(lo), uint64(hi - 1), true
}

// comparePrefix compares the suffix at pos, truncated to len(pattern), with
// pattern. A suffix shorter than the pattern sorts before it.
func (x *Index) comparePrefix(pos uint64, pattern []uint64) int {
	suffix := x.text[pos:]
	for i, p := range pattern {
		if i >= len(suffix) {
			return -1
		}
		if suffix[i] != p {
			if suffix[i] < p {
				return -1
			}
			return 1
		}
	}
	return 0
}

// DocumentArray maps every suffix, in suffix order, through docOf (the
// document of each text position) and then through rename, which may be
// nil for the identity.
func (x *Index) DocumentArray(docOf []uint32, rename []uint64) []uint32 {
	d := make([]uint32, len(x.sa))
	for i, pos := range x.sa {
		doc := docOf[pos]
		if rename != nil {
			doc = uint32(rename[doc])
		}
		d[i] = doc
	}
	return d
}
