// Package executor answers single-term queries against the active index
// snapshot.
package executor

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/index"
)

// Executor owns the snapshot queries run against. The snapshot is swapped as
// a whole, so a query sees either the old or the new snapshot, never a mix.
type Executor struct {
	current atomic.Pointer[version]
	seq     atomic.Uint64
	logger  *slog.Logger
}

// epoch distinguishes version identifiers of different processes.
var epoch = strconv.FormatInt(time.Now().UnixNano(), 36)

type version struct {
	snap *index.Snapshot
	id   string
}

// New returns an Executor serving snap. snap may be nil, in which case every
// query is empty until Replace is called.
func New(snap *index.Snapshot) *Executor {
	e := &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
	if snap != nil {
		e.Replace(snap)
	}
	return e
}

// Search returns the paths of the documents containing term, ordered by
// DocID. The comparison is exact and case-sensitive. An unknown term yields
// an empty, non-nil slice. Postings pointing at documents missing from the
// manifest are dropped.
func (e *Executor) Search(term string) []string {
	return e.View().Search(term)
}

// View pins the snapshot currently served. Searches through one View all see
// the same snapshot, labelled by Version, even across a concurrent Replace.
type View struct {
	v *version
}

// View returns the current snapshot view. It is empty when nothing is served.
func (e *Executor) View() View {
	return View{v: e.current.Load()}
}

// Version identifies the pinned snapshot, or "" for an empty View.
func (w View) Version() string {
	if w.v == nil {
		return ""
	}
	return w.v.id
}

// Search behaves like Executor.Search against the pinned snapshot.
func (w View) Search(term string) []string {
	v := w.v
	if v == nil {
		return []string{}
	}
	postings := v.snap.Lookup(term)
	results := make([]string, 0, len(postings))
	for _, p := range postings {
		if path, ok := v.snap.Path(p.DocID); ok {
			results = append(results, path)
		}
	}
	return results
}

// Replace installs snap and returns the version identifier assigned to it.
// Identifiers differ across Replace calls and across processes.
func (e *Executor) Replace(snap *index.Snapshot) string {
	v := &version{
		snap: snap,
		id:   epoch + "-" + strconv.FormatUint(e.seq.Add(1), 10),
	}
	e.current.Store(v)
	e.logger.Info("snapshot installed",
		"version", v.id,
		"terms", snap.TermCount(),
		"docs", snap.DocCount(),
	)
	return v.id
}

// Version identifies the snapshot currently served, or "" when none is.
func (e *Executor) Version() string {
	if v := e.current.Load(); v != nil {
		return v.id
	}
	return ""
}

// Snapshot returns the snapshot currently served, or nil.
func (e *Executor) Snapshot() *index.Snapshot {
	if v := e.current.Load(); v != nil {
		return v.snap
	}
	return nil
}

// Release drops the snapshot. Subsequent queries return empty results.
func (e *Executor) Release() {
	e.current.Store(nil)
}
