package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
)

// Integers are fixed width in the host's native byte order. Files are only
// portable between machines of the same endianness.
var byteOrder = binary.NativeEndian

// WriteIndex encodes idx in the index layout:
//
//	u32 termCount
//	termCount x { u32 termLen, term, u32 postingCount, postingCount x { i32 docId, i32 freq } }
//
// Terms are written in lexical order and postings in DocID order so the
// output is reproducible.
func WriteIndex(w io.Writer, idx index.InvertedIndex) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 256)
	buf = byteOrder.AppendUint32(buf, uint32(len(idx)))
	if _, err := bw.Write(buf); err != nil {
		return fmt.Errorf("writing term count: %w", err)
	}
	for _, term := range idx.Terms() {
		postings := idx[term].Sorted()
		buf = buf[:0]
		buf = byteOrder.AppendUint32(buf, uint32(len(term)))
		buf = append(buf, term...)
		buf = byteOrder.AppendUint32(buf, uint32(len(postings)))
		for _, p := range postings {
			buf = byteOrder.AppendUint32(buf, uint32(p.DocID))
			buf = byteOrder.AppendUint32(buf, uint32(p.Frequency))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing postings for term %q: %w", term, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing index: %w", err)
	}
	return nil
}

// WriteManifest encodes m in the manifest layout:
//
//	u32 documentCount
//	documentCount x { i32 docId, u32 pathLen, path }
func WriteManifest(w io.Writer, m index.Manifest) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 256)
	buf = byteOrder.AppendUint32(buf, uint32(len(m)))
	if _, err := bw.Write(buf); err != nil {
		return fmt.Errorf("writing document count: %w", err)
	}
	for _, id := range m.IDs() {
		path := m[id]
		buf = buf[:0]
		buf = byteOrder.AppendUint32(buf, uint32(id))
		buf = byteOrder.AppendUint32(buf, uint32(len(path)))
		buf = append(buf, path...)
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing manifest entry %d: %w", id, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing manifest: %w", err)
	}
	return nil
}

// writeFile writes to path+".tmp", syncs, and returns the temp path. The
// caller renames it into place once every file of the pair is written.
func writeFile(path string, encode func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	return tmpPath, nil
}
