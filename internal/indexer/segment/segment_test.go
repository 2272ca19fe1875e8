package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

func sampleCollection(t *testing.T) *collection.Collection {
	t.Helper()
	b := collection.NewBuilder(tokenizer.Options{Stem: true})
	for _, d := range []collection.Document{
		{ID: "d1", Title: "Succinct", Body: "wavelet trees answer rank queries"},
		{ID: "d2", Body: "suffix arrays and wavelet trees"},
		{ID: "d3", Body: "ranked retrieval"},
	} {
		_, err := b.Add(d)
		require.NoError(t, err)
	}
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func TestWriteReadRoundTrip(t *testing.T) {
	c := sampleCollection(t)
	path := filepath.Join(t.TempDir(), "nested", "index.spdx")

	header, err := NewWriter(path).Write(c)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), header.DocCount)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	r, err := OpenReader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), r.DocCount())
	assert.Equal(t, len(c.Terms), r.Terms())
	assert.Equal(t, header.TextSize, r.Header().TextSize)

	got, err := r.Collection()
	require.NoError(t, err)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, c.DocIDs, got.DocIDs)
	assert.Equal(t, c.DocLengths, got.DocLengths)
	assert.Equal(t, c.LenToID, got.LenToID)
	assert.True(t, got.Options.Stem)
}

func TestCorruptSnapshots(t *testing.T) {
	c := sampleCollection(t)
	path := filepath.Join(t.TempDir(), "index.spdx")
	_, err := NewWriter(path).Write(c)
	require.NoError(t, err)
	good, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"flipped text byte", func(b []byte) []byte { b[len(b)-FooterSize-2] ^= 0xff; return b }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-5] }},
		{"tiny", func(b []byte) []byte { return b[:10] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := tt.mutate(append([]byte(nil), good...))
			p := filepath.Join(t.TempDir(), "bad.spdx")
			require.NoError(t, os.WriteFile(p, bad, 0644))
			_, err := OpenReader(p)
			assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "absent.spdx"))
	require.Error(t, err)
	assert.False(t, apperrors.Is(err, apperrors.ErrCorruptIndex))
}
