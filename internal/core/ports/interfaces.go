package ports

import (
	"context"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
)

// StatusFilter scopes occurrence listings by lifecycle state.
// The zero value (pending-only) is the default for summary counts;
// calendar views pass StatusAll because completed occurrences stay visible.
type StatusFilter string

const (
	FilterPending   StatusFilter = "pending"
	FilterAll       StatusFilter = "all"
	FilterCompleted StatusFilter = "completed"
	FilterSkipped   StatusFilter = "skipped"
)

// OccurrenceQuery scopes a listing. Exactly one of SeriesID or UserID
// should be set; zero From/To means an unbounded range on that side.
type OccurrenceQuery struct {
	SeriesID domain.SeriesID
	UserID   domain.UserID
	From     time.Time
	To       time.Time
	Status   StatusFilter
}

// OccurrenceStore abstracts the durable storage of materialized
// occurrences (DuckDB). The UNIQUE (series_id, occurrence_date)
// constraint inside the store is the only synchronization primitive for
// concurrent materialization; callers never hold application-level locks.
type OccurrenceStore interface {
	// InsertIfAbsent persists occ unless a row for (series, date) already
	// exists, in which case the existing row is returned and created is
	// false. Safe to call concurrently for the same (series, date).
	InsertIfAbsent(ctx context.Context, occ domain.Occurrence) (out domain.Occurrence, created bool, err error)

	// GetOccurrence retrieves one occurrence by id.
	// Returns domain.ErrOccurrenceNotFound when absent.
	GetOccurrence(ctx context.Context, id domain.OccurrenceID) (domain.Occurrence, error)

	// ListOccurrences returns occurrences matching the query in ascending
	// date order.
	ListOccurrences(ctx context.Context, q OccurrenceQuery) ([]domain.Occurrence, error)

	// UpdateOccurrenceStatus sets status and completed-at together.
	UpdateOccurrenceStatus(ctx context.Context, id domain.OccurrenceID, status domain.OccurrenceStatus, completedAt *time.Time) error

	// DeletePendingOccurrences removes every pending occurrence of the
	// series, past-dated ones included, and returns the removed rows so
	// the caller can emit deletion events. Terminal rows are never touched.
	DeletePendingOccurrences(ctx context.Context, id domain.SeriesID) ([]domain.Occurrence, error)

	// PruneTerminalOccurrences deletes the user's completed/skipped
	// occurrences dated strictly before the cutoff. Pending occurrences
	// are never pruned by age. Returns the removed rows so the caller can
	// emit deletion events.
	PruneTerminalOccurrences(ctx context.Context, user domain.UserID, before time.Time) ([]domain.Occurrence, error)
}

// SeriesStore abstracts persistence of the series definitions this engine
// materializes. Series records arrive pre-validated and pre-authorized
// from the series-edit collaborator.
type SeriesStore interface {
	// UpsertSeries inserts or replaces a series definition.
	UpsertSeries(ctx context.Context, s domain.Series) error

	// GetSeries returns domain.ErrSeriesNotFound when absent.
	GetSeries(ctx context.Context, id domain.SeriesID) (domain.Series, error)

	// ListActiveSeries returns every series the window scheduler should
	// keep materialized.
	ListActiveSeries(ctx context.Context) ([]domain.Series, error)

	// DeleteSeries removes the series and cascades to its occurrences in
	// one transaction, returning the cascaded occurrence rows so the
	// caller can emit deletion events.
	DeleteSeries(ctx context.Context, id domain.SeriesID) ([]domain.Occurrence, error)
}

// Store is the full persistence surface, implemented by the DuckDB adapter.
type Store interface {
	OccurrenceStore
	SeriesStore
}

// PreferenceSource supplies per-user settings owned by the preference
// collaborator. Values are read at generation time, never cached
// indefinitely: a later change takes effect on the next materialization,
// not retroactively on existing scheduled instants.
type PreferenceSource interface {
	// Timezone returns the user's IANA timezone identifier.
	Timezone(ctx context.Context, user domain.UserID) (string, error)

	// RetentionDays returns how long terminal occurrences are kept.
	RetentionDays(ctx context.Context, user domain.UserID) (int, error)
}
