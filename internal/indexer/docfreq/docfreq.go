// Package docfreq answers distinct-document counts over ranges of the
// document array.
package docfreq

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/succinct-topk/pkg/errors"
)

// Oracle counts the distinct documents in a suffix-order range. It is safe
// for concurrent use.
type Oracle struct {
	docs []uint32
	pool sync.Pool
}

// New wraps the document array; docs is not copied and must not change.
func New(docs []uint32) *Oracle {
	return &Oracle{
		docs: docs,
		pool: sync.Pool{New: func() any { return roaring.New() }},
	}
}

// Count returns the number of distinct documents in docs[sp..ep].
func (o *Oracle) Count(sp, ep uint64) (uint64, error) {
	if sp > ep {
		return 0, nil
	}
	if ep >= uint64(len(o.docs)) {
		return 0, apperrors.Corruptf("document-frequency range [%d, %d] outside array of length %d", sp, ep, len(o.docs))
	}
	if sp == ep {
		return 1, nil
	}
	bm := o.pool.Get().(*roaring.Bitmap)
	defer func() {
		bm.Clear()
		o.pool.Put(bm)
	}()
	bm.AddMany(o.docs[sp : ep+1])
	return bm.GetCardinality(), nil
}

// documents returns the sorted distinct documents in docs[sp..ep].
func (o *Oracle) documents(sp, ep uint64) ([]uint32, error) {
	if sp > ep {
		return nil, nil
	}
	if ep >= uint64(len(o.docs)) {
		return nil, apperrors.Corruptf("document range [%d, %d] outside array of length %d", sp, ep, len(o.docs))
	}
	bm := roaring.BitmapOf(o.docs[sp : ep+1]...)
	return bm.ToArray(), nil
}

// Len is the length of the document array.
func (o *Oracle) Len() uint64 { return uint64(len(o.docs)) }
