package model

import "time"

// Event is one calendar entry parsed from a feed. It lives only for the
// duration of a sync run; the persisted form is the note written by the
// reconciler.
type Event struct {
	UID string // feed-assigned stable identity

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time // zero when the feed carried no DTEND
	AllDay bool

	Recurring      bool
	RecurrenceRule string // raw RRULE text, if any

	// Sequence is the feed-assigned revision counter. nil means the feed
	// did not provide one; change detection then always rewrites the note.
	Sequence *int

	// LastModified is the raw LAST-MODIFIED value, kept as an opaque stamp.
	LastModified string
}

// HasEnd reports whether the event carried an explicit end time.
func (e Event) HasEnd() bool {
	return !e.End.IsZero()
}

// SyncRunResult aggregates the outcome of one fetch→parse→reconcile→orphan
// cycle for a single feed. Created fresh each run and returned to the
// caller; never persisted.
type SyncRunResult struct {
	FeedID   string `json:"feed_id"`
	FeedName string `json:"feed_name"`

	// Success is false only when the fetch itself failed; per-event
	// failures leave Success true and show up in Errors.
	Success bool `json:"success"`

	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Quarantined int `json:"quarantined"`

	Errors []string `json:"errors,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Processed returns the number of events the run looked at.
func (r SyncRunResult) Processed() int {
	return r.Created + r.Updated + r.Skipped
}
