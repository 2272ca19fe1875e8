package textindex

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func naiveSuffixArray(text []uint64) []uint64 {
	sa := make([]uint64, len(text))
	for i := range sa {
		sa[i] = uint64(i)
	}
	slices.SortFunc(sa, func(a, b uint64) int {
		return slices.Compare(text[a:], text[b:])
	})
	return sa
}

func TestSuffixArrayMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(60)
		text := make([]uint64, n)
		for i := range text {
			text[i] = uint64(1 + rng.Intn(4))
		}
		idx := New(text)
		require.Equal(t, naiveSuffixArray(text), idx.suffixArray(), "trial %d text %v", trial, text)
	}
}

func TestBackwardSearch(t *testing.T) {
	// doc0: 2 3 2 | doc1: 3 | doc2: 4 3
	text := []uint64{2, 3, 2, 1, 3, 1, 4, 3, 1}
	idx := New(text)

	count := func(pattern ...uint64) uint64 {
		sp, ep, ok := idx.BackwardSearch(pattern)
		if !ok {
			return 0
		}
		return ep - sp + 1
	}
	assert.Equal(t, uint64(2), count(2))
	assert.Equal(t, uint64(3), count(3))
	assert.Equal(t, uint64(1), count(2, 3))
	assert.Equal(t, uint64(1), count(4, 3))
	assert.Equal(t, uint64(0), count(3, 3))
	assert.Equal(t, uint64(0), count(9))
	assert.Equal(t, uint64(0), count())
	assert.Equal(t, uint64(len(text)), idx.Size())

	sp, ep, ok := idx.BackwardSearch([]uint64{3})
	require.True(t, ok)
	for i := sp; i <= ep; i++ {
		assert.Equal(t, uint64(3), text[idx.suffixArray()[i]])
	}
}

func TestDocumentArray(t *testing.T) {
	text := []uint64{2, 3, 1, 3, 1}
	docOf := []uint32{0, 0, 0, 1, 1}
	idx := New(text)
	d := idx.DocumentArray(docOf, nil)
	for i, pos := range idx.suffixArray() {
		assert.Equal(t, docOf[pos], d[i])
	}
	swapped := idx.DocumentArray(docOf, []uint64{1, 0})
	for i := range d {
		assert.Equal(t, 1-d[i], swapped[i])
	}
}
