package index

import (
	"maps"
	"slices"
)

// DocID identifies a document within one build. IDs are dense from 0.
type DocID int32

// PostingList maps a document to the number of times a term occurs in it.
// Frequencies are always >= 1; absent documents have no entry.
type PostingList map[DocID]int32

// InvertedIndex maps a case-sensitive term to its posting list.
type InvertedIndex map[string]PostingList

// Manifest maps a document to the path it was read from.
type Manifest map[DocID]string

// Posting is one (document, frequency) pair of a posting list.
type Posting struct {
	DocID     DocID
	Frequency int32
}

// Sorted returns the posting list ordered by DocID ascending.
func (p PostingList) Sorted() []Posting {
	out := make([]Posting, 0, len(p))
	for id, freq := range p {
		out = append(out, Posting{DocID: id, Frequency: freq})
	}
	slices.SortFunc(out, func(a, b Posting) int {
		return int(a.DocID) - int(b.DocID)
	})
	return out
}

// Terms returns every term of the index in lexical order.
func (idx InvertedIndex) Terms() []string {
	return slices.Sorted(maps.Keys(idx))
}

// IDs returns every document ID of the manifest in ascending order.
func (m Manifest) IDs() []DocID {
	return slices.Sorted(maps.Keys(m))
}

// Snapshot is an immutable (index, manifest) pair. Once constructed, neither
// map is written again, so any number of goroutines may read it without
// locking.
type Snapshot struct {
	index    InvertedIndex
	manifest Manifest
}

// NewSnapshot takes ownership of idx and manifest. The caller must not
// modify either map afterwards.
func NewSnapshot(idx InvertedIndex, manifest Manifest) *Snapshot {
	if idx == nil {
		idx = make(InvertedIndex)
	}
	if manifest == nil {
		manifest = make(Manifest)
	}
	return &Snapshot{index: idx, manifest: manifest}
}

// Lookup returns the postings of term ordered by DocID, or nil if the term
// never occurred.
func (s *Snapshot) Lookup(term string) []Posting {
	postings, ok := s.index[term]
	if !ok {
		return nil
	}
	return postings.Sorted()
}

// Path returns the manifest path of id.
func (s *Snapshot) Path(id DocID) (string, bool) {
	path, ok := s.manifest[id]
	return path, ok
}

// Index exposes the inverted index for encoding. It must be treated as
// read-only.
func (s *Snapshot) Index() InvertedIndex {
	return s.index
}

// Manifest exposes the manifest for encoding. It must be treated as
// read-only.
func (s *Snapshot) Manifest() Manifest {
	return s.manifest
}

func (s *Snapshot) TermCount() int {
	return len(s.index)
}

func (s *Snapshot) DocCount() int {
	return len(s.manifest)
}

// Dangling counts postings whose document is missing from the manifest.
// Non-zero only when the index and manifest files come from different
// builds.
func (s *Snapshot) Dangling() int {
	n := 0
	for _, postings := range s.index {
		for id := range postings {
			if _, ok := s.manifest[id]; !ok {
				n++
			}
		}
	}
	return n
}
