package parser

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// Dictionary is a term/id mapping read from a "term id" per line file.
type Dictionary struct {
	ids   map[string]uint64
	terms map[uint64]string
}

// NewDictionary maps terms[i] to i, skipping empty entries.
func NewDictionary(terms []string, first uint64) *Dictionary {
	d := &Dictionary{ids: make(map[string]uint64, len(terms)), terms: make(map[uint64]string, len(terms))}
	for i := first; i < uint64(len(terms)); i++ {
		d.ids[terms[i]] = i
		d.terms[i] = terms[i]
	}
	return d
}

func LoadDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{ids: make(map[string]uint64), terms: make(map[uint64]string)}
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		term, idStr, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: dictionary line %d has no id", apperrors.ErrInvalidInput, lineNo)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: dictionary line %d: %v", apperrors.ErrInvalidInput, lineNo, err)
		}
		d.ids[term] = id
		d.terms[id] = term
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	return d, nil
}

func (d *Dictionary) Lookup(term string) (uint64, bool) {
	id, ok := d.ids[term]
	return id, ok
}

func (d *Dictionary) Term(id uint64) (string, bool) {
	t, ok := d.terms[id]
	return t, ok
}

func (d *Dictionary) Len() int { return len(d.ids) }

// WriteTo writes the dictionary in LoadDictionary's format, ordered by id.
func (d *Dictionary) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	ids := make([]uint64, 0, len(d.terms))
	for id := range d.terms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		m, err := fmt.Fprintf(bw, "%s %d\n", d.terms[id], id)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
