package index

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/tokenizer"
)

// MemoryIndex accumulates term counts and manifest entries during a build.
type MemoryIndex struct {
	mu       sync.Mutex
	index    InvertedIndex
	manifest Manifest
	nextID   DocID
	tokens   int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:    make(InvertedIndex),
		manifest: make(Manifest),
	}
}

// AddDocument assigns the next DocID to path and records it in the manifest.
// The ID stays assigned even if no terms are ever added for it.
func (m *MemoryIndex) AddDocument(path string) DocID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.manifest[id] = path
	m.nextID++
	return id
}

// AddText tokenizes text and increments index[token][id] once per token. It
// returns the number of tokens seen.
func (m *MemoryIndex) AddText(id DocID, text string) int {
	freqs := tokenizer.Frequencies(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for term, freq := range freqs {
		postings, exists := m.index[term]
		if !exists {
			postings = make(PostingList)
			m.index[term] = postings
		}
		postings[id] += freq
		total += int(freq)
	}
	m.tokens += int64(total)
	return total
}

func (m *MemoryIndex) DocCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.manifest)
}

func (m *MemoryIndex) TermCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

func (m *MemoryIndex) TokenCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Seal hands the accumulated maps over to a Snapshot and resets the memory
// index to empty.
func (m *MemoryIndex) Seal() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := NewSnapshot(m.index, m.manifest)
	m.index = make(InvertedIndex)
	m.manifest = make(Manifest)
	m.nextID = 0
	m.tokens = 0
	return snap
}
