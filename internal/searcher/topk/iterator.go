package topk

// Iterator walks the results of one search, best first. It is forward-only;
// running the search again is the only way to restart.
type Iterator struct {
	results []Result
	pos     int
}

func newIterator(results []Result) *Iterator {
	return &Iterator{results: results, pos: -1}
}

// Next advances to the next result and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.pos+1 >= len(it.results) {
		it.pos = len(it.results)
		return false
	}
	it.pos++
	return true
}

// Result returns the current result. It must follow a Next that returned
// true.
func (it *Iterator) Result() Result { return it.results[it.pos] }

// Len is the total number of results, independent of the position.
func (it *Iterator) Len() int { return len(it.results) }

// Remaining drains the iterator into a slice.
func (it *Iterator) Remaining() []Result {
	var out []Result
	for it.Next() {
		out = append(out, it.Result())
	}
	return out
}

// Snippet returns the text surrounding the current document's matches.
// Snippets are not produced; it always returns nil.
func (it *Iterator) Snippet(maxTokens int) []uint64 { return nil }
