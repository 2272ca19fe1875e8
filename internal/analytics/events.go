package analytics

import "time"

type EventType string

const (
	EventSearch       EventType = "search"
	EventCacheHit     EventType = "cache_hit"
	EventZeroResult   EventType = "zero_result"
	EventMissingTerms EventType = "missing_terms"
	EventSearchError  EventType = "search_error"
	EventSnapshot     EventType = "index_snapshot"
)

// SearchEvent is published once per executed query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	QueryID   uint64    `json:"query_id,omitempty"`
	Ranker    string    `json:"ranker"`
	Terms     []string  `json:"terms"`
	Missing   []string  `json:"missing,omitempty"`
	K         int       `json:"k"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Pops      int       `json:"pops"`
	Pruned    int       `json:"pruned"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// SnapshotEvent is published when an index snapshot is written.
type SnapshotEvent struct {
	Type       EventType `json:"type"`
	Path       string    `json:"path"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	TextLength uint64    `json:"text_length"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// ClassifySearch picks the event type for a completed query.
func ClassifySearch(returned int, missing []string, cacheHit bool) EventType {
	switch {
	case len(missing) > 0:
		return EventMissingTerms
	case returned == 0:
		return EventZeroResult
	case cacheHit:
		return EventCacheHit
	}
	return EventSearch
}
