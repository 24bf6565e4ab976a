package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func build(t *testing.T, dir string) (*index.Snapshot, BuildStats) {
	t.Helper()
	snap, stats, err := NewBuilder(nil).BuildIndex(context.Background(), dir)
	require.NoError(t, err)
	return snap, stats
}

func TestBuildSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "hello world hello"})

	snap, stats := build(t, dir)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, int64(3), stats.Tokens)
	assert.Equal(t, []index.Posting{{DocID: 0, Frequency: 2}}, snap.Lookup("hello"))
	path, ok := snap.Path(0)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "a.txt"), path)
}

func TestBuildEmptyDirectory(t *testing.T) {
	snap, stats := build(t, t.TempDir())
	assert.Zero(t, snap.DocCount())
	assert.Zero(t, snap.TermCount())
	assert.Zero(t, stats.Documents)
}

func TestBuildDenseDocIDs(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	for i := range 25 {
		files[fmt.Sprintf("f%02d.txt", i)] = fmt.Sprintf("common word%d", i)
	}
	writeFiles(t, dir, files)

	snap, _ := build(t, dir)
	require.Equal(t, 25, snap.DocCount())
	for i := range 25 {
		_, ok := snap.Path(index.DocID(i))
		assert.True(t, ok, "doc %d present", i)
	}
	assert.Len(t, snap.Lookup("common"), 25)
}

func TestBuildTokenCountsSum(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.txt": "x y x\nx",
		"b.txt": "y x\t z",
		"c.txt": "z z z",
	})
	snap, _ := build(t, dir)

	sum := func(term string) int32 {
		var total int32
		for _, p := range snap.Lookup(term) {
			total += p.Frequency
		}
		return total
	}
	assert.Equal(t, int32(4), sum("x"))
	assert.Equal(t, int32(2), sum("y"))
	assert.Equal(t, int32(4), sum("z"))
}

func TestBuildOrderIsByName(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"b.txt": "dog", "a.txt": "cat", "c.txt": "bird"})

	snap, _ := build(t, dir)
	for id, name := range []string{"a.txt", "b.txt", "c.txt"} {
		path, ok := snap.Path(index.DocID(id))
		require.True(t, ok)
		assert.Equal(t, name, filepath.Base(path))
	}
}

func TestBuildSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"top.txt": "top"})
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFiles(t, sub, map[string]string{"deep.txt": "deep"})

	snap, _ := build(t, dir)
	assert.Equal(t, 1, snap.DocCount())
	assert.Nil(t, snap.Lookup("deep"))
}

func TestBuildFollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "target.txt")
	require.NoError(t, os.WriteFile(outside, []byte("linked"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link.txt")))

	snap, _ := build(t, dir)
	assert.Equal(t, 1, snap.DocCount())
	assert.Len(t, snap.Lookup("linked"), 1)
}

func TestBuildKeepsIDForEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "", "b.txt": "dog"})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	snap, stats, err := NewBuilder(m).BuildIndex(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.DocCount())
	assert.Equal(t, 1, stats.Skipped)
	path, ok := snap.Path(0)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(path, "a.txt"))
	assert.Equal(t, []index.Posting{{DocID: 1, Frequency: 1}}, snap.Lookup("dog"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsSkippedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsIndexedTotal))
}

func TestBuildRejectsFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "cat"})
	_, _, err := NewBuilder(nil).BuildIndex(context.Background(), filepath.Join(dir, "a.txt"))
	assert.ErrorIs(t, err, apperrors.ErrNotDirectory)

	_, _, err = NewBuilder(nil).BuildIndex(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBuildCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "cat"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewBuilder(nil).BuildIndex(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkBuildIndex(b *testing.B) {
	dir := b.TempDir()
	terms := []string{"distributed", "search", "analytics", "platform", "indexing", "query"}
	for i := 0; i < 200; i++ {
		body := strings.Repeat(fmt.Sprintf("%s %s %s\n", terms[i%6], terms[(i+1)%6], terms[(i+3)%6]), 50)
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("doc-%03d.txt", i)), []byte(body), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	builder := NewBuilder(nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := builder.BuildIndex(context.Background(), dir); err != nil {
			b.Fatal(err)
		}
	}
}
