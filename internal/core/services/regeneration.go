package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
)

// RegenerationCoordinator rebuilds the pending portion of a series after
// its rule, time-of-day, start or end changed. It is the only component
// allowed to bulk-delete non-terminal occurrences.
//
// Completed and skipped occurrences are historical record: they survive
// every rule change with id, status and completed-at intact.
type RegenerationCoordinator struct {
	logger       *slog.Logger
	store        ports.Store
	prefs        ports.PreferenceSource
	materializer *Materializer
	bus          *EventBus
	horizon      time.Duration
	now          func() time.Time
}

func NewRegenerationCoordinator(logger *slog.Logger, store ports.Store, prefs ports.PreferenceSource, materializer *Materializer, bus *EventBus, horizonDays int) *RegenerationCoordinator {
	return &RegenerationCoordinator{
		logger:       logger,
		store:        store,
		prefs:        prefs,
		materializer: materializer,
		bus:          bus,
		horizon:      time.Duration(horizonDays) * 24 * time.Hour,
		now:          time.Now,
	}
}

// Regenerate deletes every pending occurrence of the series (past-dated
// ones included: they are stale under the superseded rule) and
// re-materializes from the user's local "today" through the standard
// horizon, so regeneration never recreates pending occurrences in the
// past.
//
// The destructive delete is deliberately the last step: the new generation
// plan (timezone resolution and candidate expansion) is validated first,
// so a failing edit leaves the prior occurrences untouched and the error
// propagates to the caller.
func (r *RegenerationCoordinator) Regenerate(ctx context.Context, seriesID domain.SeriesID) (int, error) {
	series, err := r.store.GetSeries(ctx, seriesID)
	if err != nil {
		return 0, err
	}

	tzID, err := r.prefs.Timezone(ctx, series.UserID)
	if err != nil {
		return 0, fmt.Errorf("resolve timezone for user %s: %w", series.UserID, err)
	}
	if tzID == "" {
		tzID = "UTC"
	}
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		return 0, &domain.InvalidTimezoneError{TZ: tzID, Err: err}
	}

	today := TodayIn(loc, r.now())
	windowEnd := today.Add(r.horizon)

	// Dry-run the plan before deleting anything. A time-of-day series
	// additionally proves each candidate converts cleanly.
	candidates := GenerateOccurrenceDates(series.Rule, series.StartDate, series.EndDate, today, windowEnd)
	if series.LocalTimeOfDay != nil {
		for _, date := range candidates {
			if _, err := ToInstant(date, *series.LocalTimeOfDay, tzID); err != nil {
				return 0, fmt.Errorf("validate regeneration plan: %w", err)
			}
		}
	}

	deleted, err := r.store.DeletePendingOccurrences(ctx, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete pending occurrences of %s: %w", seriesID, err)
	}
	r.bus.PublishDeleted(deleted)

	created, err := r.materializer.MaterializeWindow(ctx, series, today, windowEnd)
	if err != nil {
		// Partial state is safely resumable: the next scheduler tick or
		// any get-or-create fills the gap idempotently.
		return created, fmt.Errorf("rematerialize series %s: %w", seriesID, err)
	}

	r.logger.Info("series regenerated",
		"series_id", seriesID,
		"deleted_pending", len(deleted),
		"created", created,
		"window_start", today.Format(time.DateOnly),
		"window_end", windowEnd.Format(time.DateOnly),
	)
	return created, nil
}
