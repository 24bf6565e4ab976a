package segment

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
)

// Smallest encodings, used to reject counts that cannot fit in the bytes
// that remain.
const (
	minTermRecord     = 4 + 4
	postingRecord     = 4 + 4
	minManifestRecord = 4 + 4
)

type decoder struct {
	buf  []byte
	off  int
	name string
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) corrupt(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrCorruptIndex, "%s at offset %d: %s", d.name, d.off, fmt.Sprintf(format, args...))
}

func (d *decoder) u32(what string) (uint32, error) {
	if d.remaining() < 4 {
		return 0, d.corrupt("truncated %s", what)
	}
	v := byteOrder.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) i32(what string) (int32, error) {
	v, err := d.u32(what)
	return int32(v), err
}

func (d *decoder) str(n uint32, what string) (string, error) {
	if uint64(n) > uint64(d.remaining()) {
		return "", d.corrupt("%s length %d exceeds %d remaining bytes", what, n, d.remaining())
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) count(n uint32, recordSize int, what string) error {
	if uint64(n)*uint64(recordSize) > uint64(d.remaining()) {
		return d.corrupt("%s count %d does not fit in %d remaining bytes", what, n, d.remaining())
	}
	return nil
}

func (d *decoder) finish() error {
	if d.remaining() != 0 {
		return d.corrupt("%d trailing bytes", d.remaining())
	}
	return nil
}

// ReadIndex decodes the index layout written by WriteIndex. Any mismatch
// between declared counts and actual bytes, a non-positive frequency, a
// negative DocID or a duplicate key is reported as ErrCorruptIndex.
func ReadIndex(data []byte) (index.InvertedIndex, error) {
	d := &decoder{buf: data, name: "index"}
	termCount, err := d.u32("term count")
	if err != nil {
		return nil, err
	}
	if err := d.count(termCount, minTermRecord, "term"); err != nil {
		return nil, err
	}
	idx := make(index.InvertedIndex, termCount)
	for i := uint32(0); i < termCount; i++ {
		termLen, err := d.u32("term length")
		if err != nil {
			return nil, err
		}
		term, err := d.str(termLen, "term")
		if err != nil {
			return nil, err
		}
		if _, dup := idx[term]; dup {
			return nil, d.corrupt("duplicate term %q", term)
		}
		postingCount, err := d.u32("posting count")
		if err != nil {
			return nil, err
		}
		if err := d.count(postingCount, postingRecord, "posting"); err != nil {
			return nil, err
		}
		postings := make(index.PostingList, postingCount)
		for j := uint32(0); j < postingCount; j++ {
			docID, err := d.i32("doc id")
			if err != nil {
				return nil, err
			}
			freq, err := d.i32("frequency")
			if err != nil {
				return nil, err
			}
			if docID < 0 {
				return nil, d.corrupt("negative doc id %d for term %q", docID, term)
			}
			if freq <= 0 {
				return nil, d.corrupt("frequency %d for term %q doc %d", freq, term, docID)
			}
			if _, dup := postings[index.DocID(docID)]; dup {
				return nil, d.corrupt("duplicate doc id %d for term %q", docID, term)
			}
			postings[index.DocID(docID)] = freq
		}
		idx[term] = postings
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return idx, nil
}

// ReadManifest decodes the manifest layout written by WriteManifest.
func ReadManifest(data []byte) (index.Manifest, error) {
	d := &decoder{buf: data, name: "manifest"}
	docCount, err := d.u32("document count")
	if err != nil {
		return nil, err
	}
	if err := d.count(docCount, minManifestRecord, "document"); err != nil {
		return nil, err
	}
	m := make(index.Manifest, docCount)
	for i := uint32(0); i < docCount; i++ {
		docID, err := d.i32("doc id")
		if err != nil {
			return nil, err
		}
		if docID < 0 {
			return nil, d.corrupt("negative doc id %d", docID)
		}
		pathLen, err := d.u32("path length")
		if err != nil {
			return nil, err
		}
		path, err := d.str(pathLen, "path")
		if err != nil {
			return nil, err
		}
		if _, dup := m[index.DocID(docID)]; dup {
			return nil, d.corrupt("duplicate doc id %d", docID)
		}
		m[index.DocID(docID)] = path
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return m, nil
}
