package store

import "errors"

// Error taxonomy surfaced to logical callers. Transient backend errors are
// retried inside the adapters and never escape as such; everything that does
// escape wraps one of these sentinels.
var (
	// ErrNotFound means the key is absent. A valid outcome, not a failure.
	ErrNotFound = errors.New("document not found")

	// ErrConflict means the presented version token no longer matches.
	ErrConflict = errors.New("version conflict")

	// ErrUnavailable means the backend stayed unreachable or throttled
	// after bounded retries.
	ErrUnavailable = errors.New("store unavailable")

	// ErrValidation means a document failed shape validation during
	// migration. That unit is skipped and recorded; the run continues.
	ErrValidation = errors.New("document validation failed")
)

// permanent reports whether err must not be retried at the adapter level.
func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation)
}
