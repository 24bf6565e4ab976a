package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/resilience"
)

const defaultDebounce = 200 * time.Millisecond

// IndexSource is a Loader that also names the files it reads.
type IndexSource interface {
	Loader
	IndexPath() string
	ManifestPath() string
}

// Watcher reloads the served snapshot when the index files change on disk.
type Watcher struct {
	source   IndexSource
	exec     *executor.Executor
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	debounce time.Duration
	retry    resilience.RetryConfig
	logger   *slog.Logger
	paths    map[string]bool
}

// NewWatcher creates a Watcher. qc and m may be nil.
func NewWatcher(source IndexSource, exec *executor.Executor, qc *cache.QueryCache, m *metrics.Metrics) (*Watcher, error) {
	paths := make(map[string]bool, 2)
	for _, p := range []string{source.IndexPath(), source.ManifestPath()} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		paths[abs] = true
	}
	return &Watcher{
		source:   source,
		exec:     exec,
		cache:    qc,
		metrics:  m,
		debounce: defaultDebounce,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return !apperrors.Is(err, context.Canceled)
			},
		},
		logger: slog.Default().With("component", "index-watcher"),
		paths:  paths,
	}, nil
}

// Run watches the directories holding the index files until ctx is done.
// Bursts of events are collapsed into one reload after the debounce delay.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	dirs := make(map[string]bool)
	for p := range w.paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.logger.Info("watching index files", "dirs", len(dirs))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			if err := w.Reload(ctx); err != nil {
				w.logger.Error("index reload failed, keeping current snapshot", "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.paths[abs]
}

// Reload loads a fresh snapshot, swaps it in and drops cache entries of the
// replaced version. On failure the current snapshot stays in service.
func (w *Watcher) Reload(ctx context.Context) error {
	err := resilience.Retry(ctx, "index-reload", w.retry, func() error {
		snap, err := w.source.Load(ctx)
		if err != nil {
			return err
		}
		old := w.exec.Version()
		version := w.exec.Replace(snap)
		w.metrics.SnapshotLoaded(snap.TermCount(), snap.DocCount(), nil)
		w.logger.Info("index reloaded", "version", version, "terms", snap.TermCount(), "documents", snap.DocCount())
		if err := w.cache.Invalidate(ctx, old); err != nil {
			w.logger.Warn("dropping stale cache entries failed", "error", err)
		}
		return nil
	})
	if err != nil {
		w.metrics.SnapshotLoaded(0, 0, err)
	}
	return err
}
