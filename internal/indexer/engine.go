package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
)

// BuildStats summarises one BuildIndex run.
type BuildStats struct {
	Documents int
	Indexed   int
	Skipped   int
	Terms     int
	Tokens    int64
	Duration  time.Duration
}

// Builder turns a directory of text files into an index snapshot.
type Builder struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder returns a Builder. m may be nil.
func NewBuilder(m *metrics.Metrics) *Builder {
	return &Builder{
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// BuildIndex indexes the regular files directly inside dir. Entries are
// visited in name order and each regular file gets the next DocID before it
// is read, so a file that cannot be read or is empty still owns a manifest
// entry, just without postings. Subdirectories are not descended into.
func (b *Builder) BuildIndex(ctx context.Context, dir string) (*index.Snapshot, BuildStats, error) {
	start := time.Now()
	var stats BuildStats

	info, err := os.Stat(dir)
	if err != nil {
		return nil, stats, fmt.Errorf("inspecting %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, stats, apperrors.New(apperrors.ErrNotDirectory, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, stats, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	mem := index.NewMemoryIndex()
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, stats, fmt.Errorf("build cancelled: %w", err)
		}
		path := filepath.Join(dir, entry.Name())
		if !isRegular(path, entry) {
			continue
		}
		docID := mem.AddDocument(path)
		stats.Documents++

		content, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("skipping unreadable file", "doc_id", docID, "path", path, "error", err)
			stats.Skipped++
			b.metrics.DocIndexed(true)
			continue
		}
		if len(content) == 0 {
			b.logger.Debug("skipping empty file", "doc_id", docID, "path", path)
			stats.Skipped++
			b.metrics.DocIndexed(true)
			continue
		}
		tokens := mem.AddText(docID, string(content))
		stats.Indexed++
		b.metrics.DocIndexed(false)
		b.logger.Debug("document indexed",
			"doc_id", docID,
			"path", path,
			"token_count", tokens,
		)
	}

	stats.Terms = mem.TermCount()
	stats.Tokens = mem.TokenCount()
	stats.Duration = time.Since(start)
	snap := mem.Seal()
	b.logger.Info("index built",
		"dir", dir,
		"docs", stats.Documents,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"terms", stats.Terms,
		"tokens", stats.Tokens,
		"duration", stats.Duration,
	)
	return snap, stats, nil
}

// isRegular reports whether entry is a regular file, following symlinks.
func isRegular(path string, entry fs.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
