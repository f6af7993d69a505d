package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSeriesNotFound     = errors.New("series not found")
	ErrOccurrenceNotFound = errors.New("occurrence not found")

	// ErrDuplicateOccurrence signals a uniqueness-constraint conflict on
	// (series_id, occurrence_date). The materializer always recovers from
	// it internally; it must never reach an API caller.
	ErrDuplicateOccurrence = errors.New("occurrence already exists for date")
)

// InvalidTimezoneError marks an unresolvable IANA timezone identifier.
// It is scoped to a single series: the batch paths log it and skip the
// series rather than aborting the whole run.
type InvalidTimezoneError struct {
	TZ  string
	Err error
}

func (e *InvalidTimezoneError) Error() string {
	return fmt.Sprintf("invalid timezone %q: %v", e.TZ, e.Err)
}

func (e *InvalidTimezoneError) Unwrap() error { return e.Err }
