// Package collection turns a stream of documents into the token text the
// succinct index is built over: a dictionary of term ids, the concatenated
// token sequence with one separator after every document, per-document
// lengths, and the permutation that renumbers documents by ascending length.
package collection

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

const (
	// Sentinel is reserved and never appears in the text.
	Sentinel uint64 = 0
	// Separator terminates every document in the text.
	Separator uint64 = 1
	// FirstTermID is the id given to the first vocabulary term.
	FirstTermID uint64 = 2
)

// Document is one unit of retrieval as it arrives from a source.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Collection is immutable once built and safe for concurrent readers.
type Collection struct {
	Terms      []string // term id -> term; ids 0 and 1 are reserved
	Text       []uint64
	DocIDs     []string // document number -> external id
	DocLengths []uint64
	LenToID    []uint64 // length rank -> document number
	IDToLen    []uint64 // document number -> length rank
	Options    tokenizer.Options

	dict          map[string]uint64
	totalPostings uint64
}

// Builder accumulates documents. It is not safe for concurrent use.
type Builder struct {
	opts    tokenizer.Options
	dict    map[string]uint64
	terms   []string
	text    []uint64
	docIDs  []string
	lengths []uint64
	seen    map[string]struct{}
	logger  *slog.Logger
}

func NewBuilder(opts tokenizer.Options) *Builder {
	return &Builder{
		opts:   opts,
		dict:   make(map[string]uint64),
		terms:  []string{"<sentinel>", "<sep>"},
		seen:   make(map[string]struct{}),
		logger: slog.Default().With("component", "collection-builder"),
	}
}

// Add tokenizes doc and appends it to the text. Documents without any
// token are skipped and reported as false.
func (b *Builder) Add(doc Document) (bool, error) {
	if doc.ID == "" {
		return false, fmt.Errorf("%w: document without id", apperrors.ErrInvalidInput)
	}
	if _, dup := b.seen[doc.ID]; dup {
		return false, fmt.Errorf("%w: duplicate document id %q", apperrors.ErrInvalidInput, doc.ID)
	}
	tokens := tokenizer.Tokenize(doc.Title+" "+doc.Body, b.opts)
	if len(tokens) == 0 {
		b.logger.Debug("skipping empty document", "doc_id", doc.ID)
		return false, nil
	}
	b.seen[doc.ID] = struct{}{}
	for _, term := range tokens {
		b.text = append(b.text, b.termID(term))
	}
	b.text = append(b.text, Separator)
	b.docIDs = append(b.docIDs, doc.ID)
	b.lengths = append(b.lengths, uint64(len(tokens)))
	return true, nil
}

func (b *Builder) termID(term string) uint64 {
	if id, ok := b.dict[term]; ok {
		return id
	}
	id := uint64(len(b.terms))
	b.dict[term] = id
	b.terms = append(b.terms, term)
	return id
}

// Build freezes the builder into a Collection.
func (b *Builder) Build() (*Collection, error) {
	if len(b.docIDs) == 0 {
		return nil, fmt.Errorf("%w: collection has no documents", apperrors.ErrInvalidInput)
	}
	c := &Collection{
		Terms:      b.terms,
		Text:       b.text,
		DocIDs:     b.docIDs,
		DocLengths: b.lengths,
		Options:    b.opts,
	}
	c.finish()
	b.logger.Info("collection built",
		"documents", len(c.DocIDs),
		"terms", len(c.Terms)-int(FirstTermID),
		"tokens", c.totalPostings,
	)
	return c, nil
}

// Restore rebuilds a Collection from persisted parts, recomputing every
// derived table and checking them against the text.
func Restore(terms []string, text []uint64, docIDs []string, opts tokenizer.Options) (*Collection, error) {
	if len(terms) < int(FirstTermID) {
		return nil, apperrors.Corruptf("dictionary has %d entries", len(terms))
	}
	lengths := make([]uint64, 0, len(docIDs))
	var cur uint64
	for pos, tok := range text {
		switch {
		case tok == Separator:
			lengths = append(lengths, cur)
			cur = 0
		case tok < FirstTermID || tok >= uint64(len(terms)):
			return nil, apperrors.Corruptf("token %d at position %d outside dictionary", tok, pos)
		default:
			cur++
		}
	}
	if cur != 0 || len(lengths) != len(docIDs) {
		return nil, apperrors.Corruptf("text holds %d documents, table lists %d", len(lengths), len(docIDs))
	}
	c := &Collection{
		Terms:      terms,
		Text:       text,
		DocIDs:     docIDs,
		DocLengths: lengths,
		Options:    opts,
	}
	c.finish()
	return c, nil
}

func (c *Collection) finish() {
	c.dict = make(map[string]uint64, len(c.Terms))
	for id := FirstTermID; id < uint64(len(c.Terms)); id++ {
		c.dict[c.Terms[id]] = id
	}
	c.totalPostings = 0
	for _, l := range c.DocLengths {
		c.totalPostings += l
	}
	n := len(c.DocLengths)
	c.LenToID = make([]uint64, n)
	for i := range c.LenToID {
		c.LenToID[i] = uint64(i)
	}
	sort.SliceStable(c.LenToID, func(i, j int) bool {
		return c.DocLengths[c.LenToID[i]] < c.DocLengths[c.LenToID[j]]
	})
	c.IDToLen = make([]uint64, n)
	for rank, id := range c.LenToID {
		c.IDToLen[id] = uint64(rank)
	}
}

// Lookup returns the id of a normalised term.
func (c *Collection) Lookup(term string) (uint64, bool) {
	id, ok := c.dict[term]
	return id, ok
}

// Term returns the text of a term id, or "" for reserved or unknown ids.
func (c *Collection) Term(id uint64) string {
	if id < FirstTermID || id >= uint64(len(c.Terms)) {
		return ""
	}
	return c.Terms[id]
}

func (c *Collection) NumDocs() int { return len(c.DocIDs) }

// TotalPostings is the number of term occurrences in the collection.
func (c *Collection) TotalPostings() uint64 { return c.totalPostings }

// DocumentOf maps every text position to the document it belongs to; a
// separator belongs to the document it terminates.
func (c *Collection) DocumentOf() []uint32 {
	docs := make([]uint32, len(c.Text))
	var doc uint32
	for pos, tok := range c.Text {
		docs[pos] = doc
		if tok == Separator {
			doc++
		}
	}
	return docs
}
