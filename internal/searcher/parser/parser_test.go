package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

func testDict(t *testing.T) *Dictionary {
	t.Helper()
	d, err := LoadDictionary(strings.NewReader("wavelet 4\ntree 2\nsuffix 3\n\narray 5\n"))
	require.NoError(t, err)
	return d
}

func TestLoadDictionary(t *testing.T) {
	d := testDict(t)
	assert.Equal(t, 4, d.Len())
	id, ok := d.Lookup("suffix")
	require.True(t, ok)
	assert.Equal(t, uint64(3), id)
	term, ok := d.Term(5)
	require.True(t, ok)
	assert.Equal(t, "array", term)

	_, err := LoadDictionary(strings.NewReader("broken\n"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = LoadDictionary(strings.NewReader("term x\n"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDictionaryWriteTo(t *testing.T) {
	d := NewDictionary([]string{"", "", "tree", "suffix"}, 2)
	var buf bytes.Buffer
	_, err := d.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "tree 2\nsuffix 3\n", buf.String())

	back, err := LoadDictionary(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())
}

func TestParseLine(t *testing.T) {
	d := testDict(t)
	plan, err := ParseLine("17;wavelet tree wavelet", d, LineOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(17), plan.ID)
	assert.Equal(t, []QueryTerm{
		{Text: "tree", Tokens: []uint64{2}, Freq: 1},
		{Text: "wavelet", Tokens: []uint64{4}, Freq: 2},
	}, plan.Terms)
	assert.Empty(t, plan.Missing)
}

func TestParseLineMissingTerms(t *testing.T) {
	d := testDict(t)
	plan, err := ParseLine("3;tree forest", d, LineOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"forest"}, plan.Missing)
	require.Len(t, plan.Terms, 2)
	assert.Nil(t, plan.Terms[1].Tokens)

	_, err = ParseLine("3;tree forest", d, LineOptions{OnlyComplete: true})
	assert.ErrorIs(t, err, apperrors.ErrTermNotFound)
}

func TestParseLineIntegers(t *testing.T) {
	plan, err := ParseLine("9;7 3 7", nil, LineOptions{Integers: true})
	require.NoError(t, err)
	assert.Equal(t, []QueryTerm{
		{Text: "3", Tokens: []uint64{3}, Freq: 1},
		{Text: "7", Tokens: []uint64{7}, Freq: 2},
	}, plan.Terms)

	_, err = ParseLine("9;7 x", nil, LineOptions{Integers: true})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestParseLineMalformed(t *testing.T) {
	d := testDict(t)
	for _, line := range []string{"no separator", "abc;tree"} {
		_, err := ParseLine(line, d, LineOptions{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, line)
	}
}

func TestParseQueries(t *testing.T) {
	d := testDict(t)
	input := "1;wavelet tree\n\nbad line\n2;suffix array\n3;suffix forest\n"
	plans, skipped, err := ParseQueries(strings.NewReader(input), d, LineOptions{OnlyComplete: true})
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, plans, 2)
	assert.Equal(t, uint64(1), plans[0].ID)
	assert.Equal(t, uint64(2), plans[1].ID)
}

func TestParseText(t *testing.T) {
	d := testDict(t)
	tests := []struct {
		name     string
		query    string
		wantType QueryType
		want     []string
		missing  []string
	}{
		{"plain", "Wavelet TREE", QueryAND, []string{"tree", "wavelet"}, nil},
		{"or keyword", "suffix OR array", QueryOR, []string{"suffix", "array"}, nil},
		{"phrase", `"wavelet tree" array`, QueryAND, []string{"wavelet tree", "array"}, nil},
		{"unterminated phrase", `array "suffix tree`, QueryAND, []string{"suffix tree", "array"}, nil},
		{"unknown word", "tree forest", QueryAND, []string{"tree", "forest"}, []string{"forest"}},
		{"punctuation only", "?? !!", QueryAND, []string{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ParseText(tt.query, d, tokenizer.Options{})
			assert.Equal(t, tt.wantType, plan.Type)
			got := make([]string, 0, len(plan.Terms))
			for _, term := range plan.Terms {
				got = append(got, term.Text)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.missing, plan.Missing)
			assert.Equal(t, tt.query, plan.RawQuery)
		})
	}
}

func TestParseTextCountsRepeats(t *testing.T) {
	plan := ParseText("tree tree wavelet tree", testDict(t), tokenizer.Options{})
	require.Len(t, plan.Terms, 2)
	assert.Equal(t, uint64(3), plan.Terms[0].Freq)
	assert.Equal(t, []uint64{4}, plan.Terms[1].Tokens)
}
