package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/collection"
	"github.com/Adithya-Monish-Kumar-K/succinct-topk/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// Reader holds a validated snapshot in memory.
type Reader struct {
	filePath string
	header   SnapshotHeader
	meta     Meta
	text     []uint64
}

// OpenReader loads and validates the snapshot at path. Any structural
// mismatch is reported as errors.ErrCorruptIndex.
func OpenReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, apperrors.Corruptf("snapshot %s is %d bytes", path, len(data))
	}
	header := decodeHeader(data[:HeaderSize])
	if header.Magic != MagicBytes {
		return nil, apperrors.Corruptf("bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, apperrors.Corruptf("unsupported snapshot version %d", header.Version)
	}
	end := header.TextOffset + header.TextSize
	if header.MetaOffset != int64(HeaderSize) ||
		header.TextOffset != header.MetaOffset+header.MetaSize ||
		header.TextSize%4 != 0 ||
		end+int64(FooterSize) != int64(len(data)) {
		return nil, apperrors.Corruptf("section layout does not match file size %d", len(data))
	}

	footer := data[end:]
	metaData := data[header.MetaOffset:header.TextOffset]
	textData := data[header.TextOffset:end]
	crc := crc32.NewIEEE()
	crc.Write(metaData)
	crc.Write(textData)
	if got, want := crc.Sum32(), binary.LittleEndian.Uint32(footer[0:4]); got != want {
		return nil, apperrors.Corruptf("checksum mismatch: computed %08x, stored %08x", got, want)
	}
	if binary.LittleEndian.Uint32(footer[4:8]) != header.DocCount {
		return nil, apperrors.Corruptf("footer document count disagrees with header")
	}

	var meta Meta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, apperrors.Corruptf("parsing metadata: %v", err)
	}
	if len(meta.Docs) != int(header.DocCount) || len(meta.Terms) != int(header.TermCount) {
		return nil, apperrors.Corruptf("metadata lists %d docs and %d terms, header %d and %d",
			len(meta.Docs), len(meta.Terms), header.DocCount, header.TermCount)
	}
	text := make([]uint64, len(textData)/4)
	for i := range text {
		text[i] = uint64(binary.LittleEndian.Uint32(textData[4*i:]))
	}
	return &Reader{filePath: path, header: header, meta: meta, text: text}, nil
}

// Collection rebuilds the collection the snapshot was written from.
func (r *Reader) Collection() (*collection.Collection, error) {
	return collection.Restore(r.meta.Terms, r.text, r.meta.Docs, tokenizer.Options{
		Stem:          r.meta.Stem,
		DropStopWords: r.meta.DropStopWords,
	})
}

func (r *Reader) Header() SnapshotHeader { return r.header }

func (r *Reader) Terms() int { return len(r.meta.Terms) }

func (r *Reader) DocCount() uint32 { return r.header.DocCount }

func (r *Reader) Path() string { return r.filePath }

func decodeHeader(b []byte) SnapshotHeader {
	return SnapshotHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[16:24])),
		MetaOffset: int64(binary.LittleEndian.Uint64(b[24:32])),
		MetaSize:   int64(binary.LittleEndian.Uint64(b[32:40])),
		TextOffset: int64(binary.LittleEndian.Uint64(b[40:48])),
		TextSize:   int64(binary.LittleEndian.Uint64(b[48:56])),
	}
}
