package topk

// Term is one resolved query term. Sp and Ep bound its occurrences in
// suffix order, inclusively; Sp > Ep marks a term with no occurrences.
type Term struct {
	Tokens    []uint64
	QueryFreq uint64
	Sp, Ep    uint64
	DocFreq   uint64
}

func (t Term) Empty() bool { return t.Sp > t.Ep }

// Occurrences is the number of times the term occurs in the collection.
func (t Term) Occurrences() uint64 {
	if t.Empty() {
		return 0
	}
	return t.Ep - t.Sp + 1
}

// Options select scoring variants for one search.
type Options struct {
	// MultiOccurrence replaces per-term contributions in (0.9, 1.1) with
	// MultiOccurrencePenalty.
	MultiOccurrence bool
	// MatchOnly scores a document by the number of query terms it holds.
	MatchOnly bool
}

// MultiOccurrencePenalty replaces a suppressed contribution.
const MultiOccurrencePenalty = -1e9

// Result is a document and its final score.
type Result struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Stats count the work done by one search.
type Stats struct {
	Pops      int `json:"pops"`
	Pushes    int `json:"pushes"`
	Expanded  int `json:"expanded"`
	Pruned    int `json:"pruned"`
	Discarded int `json:"discarded"`
	Emitted   int `json:"emitted"`
}
