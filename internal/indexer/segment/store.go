// Package segment encodes the inverted index and manifest to their binary
// files and keeps the pair consistent on disk.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/errors"
)

const lockRetryDelay = 50 * time.Millisecond

// Store saves and loads an index/manifest file pair. Saves take an exclusive
// advisory lock and loads a shared one, so a load never pairs a new index
// with an old manifest.
type Store struct {
	indexPath    string
	manifestPath string
	lockPath     string
	lockTimeout  time.Duration
	logger       *slog.Logger
}

func NewStore(cfg config.IndexConfig) *Store {
	return &Store{
		indexPath:    cfg.IndexPath,
		manifestPath: cfg.ManifestPath,
		lockPath:     cfg.IndexPath + ".lock",
		lockTimeout:  cfg.LockTimeout,
		logger:       slog.Default().With("component", "index-store"),
	}
}

func (s *Store) IndexPath() string    { return s.indexPath }
func (s *Store) ManifestPath() string { return s.manifestPath }

// Save overwrites both files with snap.
func (s *Store) Save(ctx context.Context, snap *index.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	indexTmp, err := writeFile(s.indexPath, func(w io.Writer) error {
		return WriteIndex(w, snap.Index())
	})
	if err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	manifestTmp, err := writeFile(s.manifestPath, func(w io.Writer) error {
		return WriteManifest(w, snap.Manifest())
	})
	if err != nil {
		os.Remove(indexTmp)
		return fmt.Errorf("saving manifest: %w", err)
	}
	if err := os.Rename(indexTmp, s.indexPath); err != nil {
		os.Remove(indexTmp)
		os.Remove(manifestTmp)
		return fmt.Errorf("renaming index file: %w", err)
	}
	if err := os.Rename(manifestTmp, s.manifestPath); err != nil {
		os.Remove(manifestTmp)
		return fmt.Errorf("renaming manifest file: %w", err)
	}
	s.logger.Info("index saved",
		"index_path", s.indexPath,
		"manifest_path", s.manifestPath,
		"terms", snap.TermCount(),
		"docs", snap.DocCount(),
	)
	return nil
}

// Load reads both files into a new Snapshot. A missing file yields
// ErrIndexNotFound and malformed contents ErrCorruptIndex.
func (s *Store) Load(ctx context.Context) (*index.Snapshot, error) {
	for _, path := range []string{s.indexPath, s.manifestPath} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "%s does not exist", path)
			}
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}
	}

	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	indexData, err := os.ReadFile(s.indexPath)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	manifestData, err := os.ReadFile(s.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}
	idx, err := ReadIndex(indexData)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.indexPath, err)
	}
	manifest, err := ReadManifest(manifestData)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.manifestPath, err)
	}
	snap := index.NewSnapshot(idx, manifest)
	if dangling := snap.Dangling(); dangling > 0 {
		s.logger.Warn("index references documents missing from manifest",
			"dangling_postings", dangling,
			"index_path", s.indexPath,
			"manifest_path", s.manifestPath,
		)
	}
	s.logger.Info("index loaded",
		"terms", snap.TermCount(),
		"docs", snap.DocCount(),
		"index_bytes", len(indexData),
		"manifest_bytes", len(manifestData),
	)
	return snap, nil
}

func (s *Store) acquire(ctx context.Context, shared bool) (func(), error) {
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	lock := flock.New(s.lockPath)
	var locked bool
	var err error
	if shared {
		locked, err = lock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = lock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		if shared && lockUnavailable(err) {
			// Readers of a directory they cannot write to go unlocked.
			s.logger.Warn("index lock unavailable, reading without it", "lock_path", s.lockPath, "error", err)
			return func() {}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.New(apperrors.ErrLocked, s.lockPath), err)
		}
		return nil, fmt.Errorf("acquiring lock %s: %w", s.lockPath, err)
	}
	if !locked {
		return nil, apperrors.New(apperrors.ErrLocked, s.lockPath)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Error("releasing index lock", "lock_path", s.lockPath, "error", err)
		}
	}, nil
}

// lockUnavailable reports whether err means the lock file cannot be created or
// opened at all, as opposed to being held by someone else.
func lockUnavailable(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS)
}
