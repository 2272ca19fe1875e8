// Package resolver turns parsed query terms into search terms: the
// occurrence range of each term in suffix order and its document
// frequency.
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/searcher/topk"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/logger"
)

// TextIndex finds the occurrence range of a token sequence.
type TextIndex interface {
	BackwardSearch(pattern []uint64) (sp, ep uint64, ok bool)
}

// DocFreq counts distinct documents in an occurrence range.
type DocFreq interface {
	Count(sp, ep uint64) (uint64, error)
}

// Report describes what happened to the query terms.
type Report struct {
	Resolved int      `json:"resolved"`
	Missing  []string `json:"missing,omitempty"`
}

type Resolver struct {
	text TextIndex
	df   DocFreq
}

func New(text TextIndex, df DocFreq) *Resolver {
	return &Resolver{text: text, df: df}
}

// Resolve looks up every term once. Terms with the same token sequence are
// merged, their query frequencies added. If any term does not occur in the
// collection no document can hold them all, so the resolved list is empty
// and the absent terms are reported.
func (r *Resolver) Resolve(ctx context.Context, terms []parser.QueryTerm) ([]topk.Term, Report, error) {
	log := logger.FromContext(ctx).With("component", "resolver")
	var report Report
	resolved := make([]topk.Term, 0, len(terms))
	seen := make(map[string]int, len(terms))

	for _, qt := range terms {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		if len(qt.Tokens) == 0 {
			report.Missing = append(report.Missing, qt.Text)
			continue
		}
		freq := qt.Freq
		if freq == 0 {
			freq = 1
		}
		key := tokenKey(qt.Tokens)
		if i, ok := seen[key]; ok {
			resolved[i].QueryFreq += freq
			continue
		}
		sp, ep, ok := r.text.BackwardSearch(qt.Tokens)
		if !ok {
			report.Missing = append(report.Missing, qt.Text)
			continue
		}
		df, err := r.df.Count(sp, ep)
		if err != nil {
			return nil, report, fmt.Errorf("document frequency of %q: %w", qt.Text, err)
		}
		seen[key] = len(resolved)
		resolved = append(resolved, topk.Term{
			Tokens:    qt.Tokens,
			QueryFreq: freq,
			Sp:        sp,
			Ep:        ep,
			DocFreq:   df,
		})
	}

	if len(report.Missing) > 0 {
		log.Debug("query has absent terms", "missing", report.Missing)
		return []topk.Term{}, report, nil
	}
	report.Resolved = len(resolved)
	return resolved, report, nil
}

func tokenKey(tokens []uint64) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(t, 10))
	}
	return b.String()
}
