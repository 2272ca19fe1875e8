// Package parser turns query text into deduplicated query terms. Free text
// goes through the index tokenizer; query files use the "qid;tok tok ..."
// line format with tokens looked up verbatim in a dictionary.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "or"
	}
	return "and"
}

// Vocabulary maps a normalised term to its id.
type Vocabulary interface {
	Lookup(term string) (uint64, bool)
}

// QueryTerm is one distinct term of a query. Tokens is nil when some word
// of the term is not in the vocabulary.
type QueryTerm struct {
	Text   string   `json:"text"`
	Tokens []uint64 `json:"tokens,omitempty"`
	Freq   uint64   `json:"freq"`
}

type QueryPlan struct {
	ID       uint64      `json:"id"`
	Terms    []QueryTerm `json:"terms"`
	Type     QueryType   `json:"type"`
	Missing  []string    `json:"missing,omitempty"`
	RawQuery string      `json:"raw_query"`
}

// ParseText parses a free-text query. Words are normalised with opts;
// text in double quotes becomes a single phrase term. The keywords AND and
// OR select the query type.
func ParseText(query string, vocab Vocabulary, opts tokenizer.Options) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]QueryTerm, 0),
		Type:     QueryAND,
		RawQuery: query,
	}
	acc := newAccumulator()
	for _, chunk := range splitQuery(query) {
		if !chunk.phrase {
			switch strings.ToUpper(chunk.text) {
			case "AND":
				plan.Type = QueryAND
				continue
			case "OR":
				plan.Type = QueryOR
				continue
			}
		}
		words := tokenizer.Tokenize(chunk.text, opts)
		if len(words) == 0 {
			continue
		}
		if chunk.phrase {
			acc.add(strings.Join(words, " "), words, vocab)
			continue
		}
		for _, w := range words {
			acc.add(w, []string{w}, vocab)
		}
	}
	plan.Terms, plan.Missing = acc.result()
	return plan
}

type chunk struct {
	text   string
	phrase bool
}

func splitQuery(query string) []chunk {
	var chunks []chunk
	rest := query
	for {
		open := strings.IndexByte(rest, '"')
		if open < 0 {
			break
		}
		for _, f := range strings.Fields(rest[:open]) {
			chunks = append(chunks, chunk{text: f})
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			end = len(rest)
		}
		chunks = append(chunks, chunk{text: rest[:end], phrase: true})
		if end == len(rest) {
			return chunks
		}
		rest = rest[end+1:]
	}
	for _, f := range strings.Fields(rest) {
		chunks = append(chunks, chunk{text: f})
	}
	return chunks
}

// LineOptions control ParseLine.
type LineOptions struct {
	// OnlyComplete rejects a query with any token missing from the
	// vocabulary.
	OnlyComplete bool
	// Integers reads tokens as term ids instead of words.
	Integers bool
}

// ParseLine parses one "qid;tok tok ..." query line.
func ParseLine(line string, vocab Vocabulary, opts LineOptions) (*QueryPlan, error) {
	idStr, content, ok := strings.Cut(line, ";")
	if !ok {
		return nil, fmt.Errorf("%w: query line %q has no ';'", apperrors.ErrInvalidInput, line)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: query id %q: %v", apperrors.ErrInvalidInput, idStr, err)
	}
	plan := &QueryPlan{ID: id, Type: QueryAND, RawQuery: content}
	acc := newAccumulator()
	for _, tok := range strings.Fields(content) {
		if opts.Integers {
			tid, err := strconv.ParseUint(tok, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: query %d token %q: %v", apperrors.ErrInvalidInput, id, tok, err)
			}
			acc.addID(tok, tid)
			continue
		}
		if _, known := vocab.Lookup(tok); !known && opts.OnlyComplete {
			return nil, fmt.Errorf("%w: query %d: %q", apperrors.ErrTermNotFound, id, tok)
		}
		acc.add(tok, []string{tok}, vocab)
	}
	plan.Terms, plan.Missing = acc.result()
	return plan, nil
}

// ParseQueries reads a query file. Lines that fail to parse are logged and
// skipped.
func ParseQueries(r io.Reader, vocab Vocabulary, opts LineOptions) ([]*QueryPlan, int, error) {
	logger := slog.Default().With("component", "query-parser")
	var plans []*QueryPlan
	skipped := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		plan, err := ParseLine(line, vocab, opts)
		if err != nil {
			logger.Warn("skipping query", "line", lineNo, "error", err)
			skipped++
			continue
		}
		plans = append(plans, plan)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading queries: %w", err)
	}
	return plans, skipped, nil
}

// accumulator merges repeated terms into query frequencies.
type accumulator struct {
	index   map[string]int
	terms   []QueryTerm
	missing []string
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int)}
}

func (a *accumulator) add(text string, words []string, vocab Vocabulary) {
	if i, ok := a.index[text]; ok {
		a.terms[i].Freq++
		return
	}
	tokens := make([]uint64, 0, len(words))
	for _, w := range words {
		id, ok := vocab.Lookup(w)
		if !ok {
			a.missing = append(a.missing, w)
			tokens = nil
			break
		}
		tokens = append(tokens, id)
	}
	a.index[text] = len(a.terms)
	a.terms = append(a.terms, QueryTerm{Text: text, Tokens: tokens, Freq: 1})
}

func (a *accumulator) addID(text string, id uint64) {
	if i, ok := a.index[text]; ok {
		a.terms[i].Freq++
		return
	}
	a.index[text] = len(a.terms)
	a.terms = append(a.terms, QueryTerm{Text: text, Tokens: []uint64{id}, Freq: 1})
}

// result returns the terms sorted by token sequence, unknown terms last in
// text order.
func (a *accumulator) result() ([]QueryTerm, []string) {
	terms := a.terms
	if terms == nil {
		terms = make([]QueryTerm, 0)
	}
	slices.SortStableFunc(terms, func(x, y QueryTerm) int {
		switch {
		case x.Tokens == nil && y.Tokens == nil:
			return strings.Compare(x.Text, y.Text)
		case x.Tokens == nil:
			return 1
		case y.Tokens == nil:
			return -1
		}
		if c := slices.Compare(x.Tokens, y.Tokens); c != 0 {
			return c
		}
		return strings.Compare(x.Text, y.Text)
	})
	return terms, a.missing
}
