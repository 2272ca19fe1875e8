package executor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/config"
)

// benchIndex builds a corpus of n documents drawn from a small skewed
// vocabulary, so short conjunctive queries match many documents.
func benchIndex(b *testing.B, n int) *indexer.Index {
	b.Helper()
	rng := rand.New(rand.NewSource(42))
	vocab := make([]string, 200)
	for i := range vocab {
		vocab[i] = fmt.Sprintf("w%d", i)
	}
	builder := collection.NewBuilder(tokenizer.Options{})
	for d := 0; d < n; d++ {
		words := make([]string, 5+rng.Intn(60))
		for i := range words {
			words[i] = vocab[int(rng.ExpFloat64()*20)%len(vocab)]
		}
		_, err := builder.Add(collection.Document{ID: fmt.Sprintf("doc-%d", d), Body: strings.Join(words, " ")})
		require.NoError(b, err)
	}
	c, err := builder.Build()
	require.NoError(b, err)
	idx, err := indexer.Build(c)
	require.NoError(b, err)
	return idx
}

func BenchmarkExecute(b *testing.B) {
	idx := benchIndex(b, 5000)
	for _, rankerName := range []string{"bm25", "lmds", "tfidf", "freq"} {
		e, err := New(idx, config.IndexConfig{Ranker: rankerName})
		require.NoError(b, err)
		for _, q := range []string{"w0", "w0 w1", "w2 w5 w9"} {
			p := plan(e, q)
			b.Run(rankerName+"/"+strings.ReplaceAll(q, " ", "+"), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := e.Execute(context.Background(), p, 10, topk.Options{}); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
