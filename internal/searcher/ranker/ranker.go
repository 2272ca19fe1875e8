// Package ranker holds the ranking functions the top-k engine is
// parametrised by. Every function supplies a per-subtree weight seeded once
// per candidate, a per-term score contribution, and document lengths.
package ranker

import (
	"fmt"
	"math"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
	DefaultMu = 2500.0

	// Epsilon is the floor of the BM25 inverse document frequency.
	Epsilon = 1e-6
)

// Func is a ranking function.
//
// Score receives the term's query frequency, the number of its occurrences
// inside the subtree, its document frequency, its occurrences across the
// whole collection, the length representing the subtree, and whether the
// subtree is a single document.
type Func interface {
	Name() string
	SubtreeWeight(repLen float64) float64
	Score(queryFreq, rangeSize, docFreq, termOccurrences, repLen float64, isLeaf bool) float64
	DocLength(doc uint64) float64
}

// Stats are the collection statistics a ranking function is built from.
type Stats struct {
	NumDocs       float64
	TotalPostings float64
	AvgDocLen     float64
	MinDocLen     float64
	DocLengths    []uint64
}

// NewStats derives Stats from per-document lengths. lengths is indexed the
// same way DocLength is queried.
func NewStats(lengths []uint64, totalPostings uint64) Stats {
	s := Stats{
		NumDocs:       float64(len(lengths)),
		TotalPostings: float64(totalPostings),
		DocLengths:    lengths,
	}
	if len(lengths) > 0 {
		s.AvgDocLen = s.TotalPostings / s.NumDocs
		s.MinDocLen = float64(slices.Min(lengths))
	}
	return s
}

// Check reports an error unless the statistics hold a length for each of
// the sigma documents a tree is built over. DocLength is only defined for
// those.
func (s Stats) Check(sigma uint64) error {
	if n := uint64(len(s.DocLengths)); n != sigma {
		return apperrors.Corruptf("collection statistics hold %d document lengths, tree has %d documents", n, sigma)
	}
	return nil
}

func (s Stats) docLength(doc uint64) float64 {
	if doc >= uint64(len(s.DocLengths)) {
		return 0
	}
	return float64(s.DocLengths[doc])
}

// Params are the tunable constants; zero fields take the defaults.
type Params struct {
	K1 float64
	B  float64
	Mu float64
}

func (p Params) withDefaults() Params {
	if p.K1 == 0 {
		p.K1 = DefaultK1
	}
	if p.B == 0 {
		p.B = DefaultB
	}
	if p.Mu == 0 {
		p.Mu = DefaultMu
	}
	return p
}

// Names lists the ranking functions New accepts.
var Names = []string{"bm25", "bm25_simple_est", "lmds", "tfidf", "freq"}

// New builds the ranking function called name.
func New(name string, stats Stats, params Params) (Func, error) {
	p := params.withDefaults()
	switch name {
	case "bm25":
		return &BM25{Stats: stats, K1: p.K1, B: p.B}, nil
	case "bm25_simple_est":
		return &BM25Estimate{BM25: BM25{Stats: stats, K1: p.K1, B: p.B}}, nil
	case "lmds":
		return &LMDirichlet{Stats: stats, Mu: p.Mu}, nil
	case "tfidf":
		return &TFIDF{Stats: stats}, nil
	case "freq":
		return Frequency{}, nil
	}
	return nil, fmt.Errorf("%w: %q (want one of %v)", apperrors.ErrUnknownRanker, name, Names)
}

// BM25 scores with Okapi BM25 using the exact representative length.
type BM25 struct {
	Stats
	K1, B float64
}

func (r *BM25) Name() string { return "bm25" }

func (r *BM25) SubtreeWeight(float64) float64 { return 0 }

func (r *BM25) DocLength(doc uint64) float64 { return r.docLength(doc) }

func (r *BM25) Score(queryFreq, rangeSize, docFreq, _, repLen float64, _ bool) float64 {
	return r.score(queryFreq, rangeSize, docFreq, repLen)
}

func (r *BM25) score(queryFreq, rangeSize, docFreq, docLen float64) float64 {
	idf := math.Max(Epsilon, math.Log((r.NumDocs-docFreq+0.5)/(docFreq+0.5))*queryFreq)
	var lenRatio float64
	if r.AvgDocLen > 0 {
		lenRatio = docLen / r.AvgDocLen
	}
	norm := r.K1 * ((1 - r.B) + r.B*lenRatio)
	return idf * ((r.K1 + 1) * rangeSize) / (norm + rangeSize)
}

// BM25Estimate is BM25 with the collection's shortest document length
// standing in for every internal subtree.
type BM25Estimate struct {
	BM25
}

func (r *BM25Estimate) Name() string { return "bm25_simple_est" }

func (r *BM25Estimate) Score(queryFreq, rangeSize, docFreq, _, repLen float64, isLeaf bool) float64 {
	if !isLeaf {
		repLen = r.MinDocLen
	}
	return r.score(queryFreq, rangeSize, docFreq, repLen)
}

// LMDirichlet is the query-likelihood language model with Dirichlet
// smoothing.
type LMDirichlet struct {
	Stats
	Mu float64
}

func (r *LMDirichlet) Name() string { return "lmds" }

func (r *LMDirichlet) SubtreeWeight(repLen float64) float64 {
	return math.Log(r.Mu / (r.Mu + repLen))
}

func (r *LMDirichlet) DocLength(doc uint64) float64 { return r.docLength(doc) }

func (r *LMDirichlet) Score(_, rangeSize, _, termOccurrences, _ float64, _ bool) float64 {
	if termOccurrences <= 0 {
		return 0
	}
	return math.Log1p((rangeSize / r.Mu) * (r.TotalPostings / termOccurrences))
}

// TFIDF is length-normalised log term frequency times log inverse document
// frequency.
type TFIDF struct {
	Stats
}

func (r *TFIDF) Name() string { return "tfidf" }

func (r *TFIDF) SubtreeWeight(float64) float64 { return 0 }

func (r *TFIDF) DocLength(doc uint64) float64 { return r.docLength(doc) }

func (r *TFIDF) Score(_, rangeSize, docFreq, _, repLen float64, _ bool) float64 {
	if repLen <= 0 || rangeSize <= 0 || docFreq <= 0 {
		return 0
	}
	return (1 / repLen) * (1 + math.Log(rangeSize)) * math.Log1p(r.NumDocs/docFreq)
}

// Frequency scores a document by the raw number of term occurrences.
type Frequency struct{}

func (Frequency) Name() string { return "freq" }

func (Frequency) SubtreeWeight(float64) float64 { return 0 }

func (Frequency) DocLength(uint64) float64 { return 0 }

func (Frequency) Score(_, rangeSize, _, _, _ float64, _ bool) float64 { return rangeSize }
