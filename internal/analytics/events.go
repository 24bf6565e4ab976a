// Package analytics publishes query and build events to an optional sink.
package analytics

import "time"

type EventType string

const (
	EventQuery      EventType = "query"
	EventZeroResult EventType = "zero_result"
	EventBuild      EventType = "build"
)

// QueryEvent is emitted once per served query.
type QueryEvent struct {
	Type      EventType `json:"type"`
	Term      string    `json:"term"`
	Results   int       `json:"results"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildEvent is emitted once per completed index build.
type BuildEvent struct {
	Type       EventType `json:"type"`
	Dir        string    `json:"dir"`
	Documents  int       `json:"documents"`
	Skipped    int       `json:"skipped"`
	Terms      int       `json:"terms"`
	Tokens     int64     `json:"tokens"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewQueryEvent classifies a query by its result count.
func NewQueryEvent(term string, results int, latency time.Duration, cacheHit bool, version string) QueryEvent {
	typ := EventQuery
	if results == 0 {
		typ = EventZeroResult
	}
	return QueryEvent{
		Type:      typ,
		Term:      term,
		Results:   results,
		LatencyUs: latency.Microseconds(),
		CacheHit:  cacheHit,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}
