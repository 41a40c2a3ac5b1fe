package sync

import "errors"

// Sync engine errors.
var (
	// ErrRetriesExhausted is returned when a retryable request keeps failing
	// past the attempt budget. Callers treat it as a failed page, not a
	// fatal run abort.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrMalformedResponse is returned when a vendor payload cannot be
	// decoded. Retried like a transport fault but logged distinctly.
	ErrMalformedResponse = errors.New("malformed vendor response")

	// ErrTooManyRuns is returned when a trigger arrives while every run slot
	// is occupied.
	ErrTooManyRuns = errors.New("maximum concurrent sync runs reached")
)

// Detail strings recorded on sync log entries.
const (
	detailOrphanedParent = "orphaned parent"
)
