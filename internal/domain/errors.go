package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// Every failure surfaced by the progression engine wraps one of these so callers
// can branch with errors.Is regardless of which store or transport produced it.
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned for unknown users, lessons or levels.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed input: empty ids, bad dates,
	// unknown stage types or quiz scores outside [0, 100].
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPersistence is returned when the progression store cannot be read or written.
	ErrPersistence = errors.New("persistence failure")

	// ErrConcurrencyConflict is returned when a snapshot changed underneath a writer
	// or the per-user lock could not be acquired.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
