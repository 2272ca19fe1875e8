package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
)

// MagicBytes identifies a valid .spdx snapshot file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SnapshotHeader is the 64-byte header written at the start of every
// snapshot.
type SnapshotHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	MetaOffset int64
	MetaSize   int64
	TextOffset int64
	TextSize   int64
}

// Meta is the JSON section: the term dictionary, the document table and
// the tokenizer settings the text was produced with.
type Meta struct {
	Terms         []string `json:"terms"`
	Docs          []string `json:"docs"`
	Stem          bool     `json:"stem"`
	DropStopWords bool     `json:"drop_stop_words"`
}

// Writer serialises a collection into a .spdx snapshot.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write atomically replaces the snapshot at the writer's path. It writes to
// a .tmp file first and renames on success.
func (w *Writer) Write(c *collection.Collection) (SnapshotHeader, error) {
	if c == nil || c.NumDocs() == 0 {
		return SnapshotHeader{}, fmt.Errorf("cannot write empty snapshot")
	}
	if uint64(len(c.Terms)) > math.MaxUint32 {
		return SnapshotHeader{}, fmt.Errorf("dictionary of %d terms exceeds snapshot format", len(c.Terms))
	}
	metaData, err := json.Marshal(Meta{
		Terms:         c.Terms,
		Docs:          c.DocIDs,
		Stem:          c.Options.Stem,
		DropStopWords: c.Options.DropStopWords,
	})
	if err != nil {
		return SnapshotHeader{}, fmt.Errorf("marshaling snapshot metadata: %w", err)
	}
	textData := make([]byte, 4*len(c.Text))
	for i, tok := range c.Text {
		binary.LittleEndian.PutUint32(textData[4*i:], uint32(tok))
	}

	header := SnapshotHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(c.Terms)),
		DocCount:   uint32(c.NumDocs()),
		CreatedAt:  time.Now().Unix(),
		MetaOffset: int64(HeaderSize),
		MetaSize:   int64(len(metaData)),
		TextOffset: int64(HeaderSize + len(metaData)),
		TextSize:   int64(len(textData)),
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return SnapshotHeader{}, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	tmpPath := w.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return SnapshotHeader{}, fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	crc := crc32.NewIEEE()
	crc.Write(metaData)
	crc.Write(textData)
	for _, part := range [][]byte{encodeHeader(header), metaData, textData, encodeFooter(header, crc.Sum32())} {
		if _, err := f.Write(part); err != nil {
			os.Remove(tmpPath)
			return SnapshotHeader{}, fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return SnapshotHeader{}, fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, w.path); err != nil {
		return SnapshotHeader{}, fmt.Errorf("renaming snapshot file: %w", err)
	}
	return header, nil
}

func encodeHeader(h SnapshotHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.MetaSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.TextOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.TextSize))
	return b
}

func encodeFooter(h SnapshotHeader, checksum uint32) []byte {
	b := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(b[0:4], checksum)
	binary.LittleEndian.PutUint32(b[4:8], h.DocCount)
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.MetaOffset))
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.TextOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.TextSize))
	return b
}
