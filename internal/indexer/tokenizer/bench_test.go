package tokenizer

import (
	"strings"
	"testing"
)

var benchTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"long": strings.Repeat(`Succinct indexes answer ranked queries without materialising
        postings lists. A wavelet tree over the document array narrows every term's
        occurrence range with rank queries while a best-first search pops the subtree
        with the highest score bound. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range benchTexts {
		for mode, opts := range map[string]Options{"plain": {}, "normalized": {Stem: true, DropStopWords: true}} {
			b.Run(name+"/"+mode, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = Tokenize(text, opts)
				}
			})
		}
	}
}
