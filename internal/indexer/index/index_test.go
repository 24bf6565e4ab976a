package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexAccumulates(t *testing.T) {
	mi := NewMemoryIndex()
	a := mi.AddDocument("dir/a.txt")
	b := mi.AddDocument("dir/b.txt")
	require.Equal(t, DocID(0), a)
	require.Equal(t, DocID(1), b)

	assert.Equal(t, 3, mi.AddText(a, "hello world hello"))
	assert.Equal(t, 2, mi.AddText(b, "hello\tthere"))
	assert.Equal(t, int64(5), mi.TokenCount())
	assert.Equal(t, 2, mi.DocCount())
	assert.Equal(t, 3, mi.TermCount())

	snap := mi.Seal()
	assert.Equal(t, []Posting{{DocID: 0, Frequency: 2}, {DocID: 1, Frequency: 1}}, snap.Lookup("hello"))
	assert.Equal(t, []Posting{{DocID: 0, Frequency: 1}}, snap.Lookup("world"))
	assert.Nil(t, snap.Lookup("Hello"))
	assert.Zero(t, snap.Dangling())

	assert.Zero(t, mi.DocCount(), "seal resets the memory index")
	assert.Equal(t, DocID(0), mi.AddDocument("fresh"))
}

func TestDocumentWithoutText(t *testing.T) {
	mi := NewMemoryIndex()
	empty := mi.AddDocument("empty.txt")
	full := mi.AddDocument("full.txt")
	mi.AddText(full, "cat")

	snap := mi.Seal()
	assert.Equal(t, 2, snap.DocCount())
	path, ok := snap.Path(empty)
	assert.True(t, ok)
	assert.Equal(t, "empty.txt", path)
	assert.Equal(t, []Posting{{DocID: full, Frequency: 1}}, snap.Lookup("cat"))
}

func TestSnapshotDangling(t *testing.T) {
	snap := NewSnapshot(
		InvertedIndex{"cat": {0: 1, 7: 2}, "dog": {9: 1}},
		Manifest{0: "a.txt"},
	)
	assert.Equal(t, 2, snap.Dangling())
	assert.Equal(t, []string{"cat", "dog"}, snap.Index().Terms())
}

func TestNewSnapshotNil(t *testing.T) {
	snap := NewSnapshot(nil, nil)
	assert.Zero(t, snap.TermCount())
	assert.Zero(t, snap.DocCount())
	assert.Nil(t, snap.Lookup("anything"))
}

func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := NewMemoryIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := mi.AddDocument(fmt.Sprintf("doc-%d.txt", i))
		mi.AddText(id, "this is a benchmark document with several terms for testing the indexing performance")
	}
}

func BenchmarkSnapshotLookupParallel(b *testing.B) {
	mi := NewMemoryIndex()
	for i := 0; i < 10000; i++ {
		id := mi.AddDocument(fmt.Sprintf("doc-%d.txt", i))
		mi.AddText(id, "search engine with distributed indexing and query processing")
	}
	snap := mi.Seal()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = snap.Lookup("search")
		}
	})
}
