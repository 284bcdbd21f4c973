package query

import (
	"context"
	"time"
)

// Key identifies a fetchable resource, typically the endpoint path plus
// sub-path and parameters (e.g. "/foo/events?limit=50").
type Key string

// Status is the settled outcome of the most recent fetch for a key.
type Status int

const (
	// StatusPending means no fetch has settled yet.
	StatusPending Status = iota
	// StatusSuccess means the last fetch returned data.
	StatusSuccess
	// StatusError means the last fetch failed after all retries.
	StatusError
)

// String returns a human-readable status string.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Fetcher loads the data for a key. It should return an already-validated,
// typed value; the client stores it as-is.
type Fetcher func(ctx context.Context) (any, error)

// Listener receives State changes for a subscribed key.
type Listener func(State)

// State is a snapshot of one cache entry.
type State struct {
	Key    Key
	Status Status

	// Data is the last successful result. It is kept when a later fetch
	// fails, so views can keep showing last-known-good data.
	Data any
	Err  error

	// UpdatedAt is when Data was last set; zero if never.
	UpdatedAt time.Time
	// ErrorAt is when the last failure settled; zero if never.
	ErrorAt time.Time

	// Fetching is true while a fetch for the key is in flight.
	Fetching bool
	// FailureCount counts failed attempts since the last success.
	FailureCount int
}

// HasData reports whether a fetch ever succeeded for this key.
func (s State) HasData() bool {
	return !s.UpdatedAt.IsZero()
}

// IsLoading is true before the first result arrives.
func (s State) IsLoading() bool {
	return s.Status == StatusPending
}

// DataAs returns the state's data as T.
func DataAs[T any](s State) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}
