// Package indexer assembles the succinct index: the collection text, its
// suffix array, the document array partitioned by a wavelet tree over
// length-ranked document ids, and the document-frequency oracle. A built
// Index is read-only and shared by every concurrent query.
package indexer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/docfreq"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/textindex"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/wavelet"
)

type Index struct {
	collection *collection.Collection
	text       *textindex.Index
	tree       *wavelet.Tree
	df         *docfreq.Oracle
	builtAt    time.Time
}

// Summary describes an index for logs, metrics and the stats endpoint.
type Summary struct {
	Documents     int       `json:"documents"`
	Terms         int       `json:"terms"`
	TextLength    uint64    `json:"text_length"`
	TotalPostings uint64    `json:"total_postings"`
	TreeLevels    uint      `json:"tree_levels"`
	BuiltAt       time.Time `json:"built_at"`
}

// Build derives every structure from c.
func Build(c *collection.Collection) (*Index, error) {
	logger := slog.Default().With("component", "indexer")
	start := time.Now()

	text := textindex.New(c.Text)
	docs := text.DocumentArray(c.DocumentOf(), c.IDToLen)
	tree, err := wavelet.New(docs, uint64(c.NumDocs()))
	if err != nil {
		return nil, fmt.Errorf("building document array partition: %w", err)
	}
	x := &Index{
		collection: c,
		text:       text,
		tree:       tree,
		df:         docfreq.New(docs),
		builtAt:    time.Now(),
	}
	s := x.Summary()
	logger.Info("index built",
		"documents", s.Documents,
		"terms", s.Terms,
		"text_length", s.TextLength,
		"tree_levels", s.TreeLevels,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return x, nil
}

// Open loads a snapshot written by Save and rebuilds the index from it.
func Open(path string) (*Index, error) {
	reader, err := segment.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening index snapshot: %w", err)
	}
	c, err := reader.Collection()
	if err != nil {
		return nil, fmt.Errorf("restoring collection from %s: %w", path, err)
	}
	slog.Default().With("component", "indexer").Info("snapshot loaded",
		"path", path,
		"docs", reader.DocCount(),
		"terms", reader.Terms(),
	)
	return Build(c)
}

// Save writes the collection behind x as a snapshot at path.
func (x *Index) Save(path string) (segment.SnapshotHeader, error) {
	return segment.NewWriter(path).Write(x.collection)
}

func (x *Index) Collection() *collection.Collection { return x.collection }

func (x *Index) Text() *textindex.Index { return x.text }

func (x *Index) Tree() *wavelet.Tree { return x.tree }

func (x *Index) DocFreq() *docfreq.Oracle { return x.df }

// DocLengthsByRank returns document lengths indexed by length rank, the
// symbol space of the wavelet tree.
func (x *Index) DocLengthsByRank() []uint64 {
	c := x.collection
	lengths := make([]uint64, len(c.LenToID))
	for rank, id := range c.LenToID {
		lengths[rank] = c.DocLengths[id]
	}
	return lengths
}

func (x *Index) Summary() Summary {
	c := x.collection
	return Summary{
		Documents:     c.NumDocs(),
		Terms:         len(c.Terms) - int(collection.FirstTermID),
		TextLength:    x.text.Size(),
		TotalPostings: c.TotalPostings(),
		TreeLevels:    x.tree.MaxLevel(),
		BuiltAt:       x.builtAt,
	}
}
