package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
	"github.com/cadehq/cadence/internal/metrics"
)

// Materializer turns recurrence rules into persisted occurrences for a
// rolling window. It has no locking of its own: correctness under
// concurrent callers (scheduler tick racing a user action) rests on the
// store's uniqueness constraint plus per-insert conflict recovery.
type Materializer struct {
	logger *slog.Logger
	store  ports.OccurrenceStore
	prefs  ports.PreferenceSource
	bus    *EventBus
}

func NewMaterializer(logger *slog.Logger, store ports.OccurrenceStore, prefs ports.PreferenceSource, bus *EventBus) *Materializer {
	return &Materializer{
		logger: logger,
		store:  store,
		prefs:  prefs,
		bus:    bus,
	}
}

// MaterializeWindow populates [from, to] for one series and returns how
// many occurrences were created. Candidates already present are left
// untouched; a concurrent duplicate insert is recovered by re-reading the
// existing row and moving on, so calling this repeatedly or concurrently
// for overlapping windows is safe.
func (m *Materializer) MaterializeWindow(ctx context.Context, series domain.Series, from, to time.Time) (int, error) {
	tzID, err := m.timezoneFor(ctx, series.UserID)
	if err != nil {
		return 0, err
	}
	// Resolve the zone up front so a bad preference fails the series
	// before any writes.
	if series.LocalTimeOfDay != nil {
		if _, err := time.LoadLocation(tzID); err != nil {
			return 0, &domain.InvalidTimezoneError{TZ: tzID, Err: err}
		}
	}

	dates := GenerateOccurrenceDates(series.Rule, series.StartDate, series.EndDate, from, to)
	created := 0
	for _, date := range dates {
		_, wasCreated, err := m.insertOccurrence(ctx, series, date, tzID)
		if err != nil {
			return created, err
		}
		if wasCreated {
			created++
		}
	}
	return created, nil
}

// MaterializeDate is the single-date insert path used by get-or-create.
// It does not require the date to match the series' rule: a user acting on
// an arbitrary future date gets a real occurrence for it.
func (m *Materializer) MaterializeDate(ctx context.Context, series domain.Series, date time.Time) (domain.Occurrence, bool, error) {
	tzID, err := m.timezoneFor(ctx, series.UserID)
	if err != nil {
		return domain.Occurrence{}, false, err
	}
	return m.insertOccurrence(ctx, series, domain.DateOf(date), tzID)
}

// MaterializeAll runs MaterializeWindow for each series, isolating
// failures: one series' bad timezone or generator error is logged and
// counted, and the batch continues. Returns total created plus the ids of
// series that failed this cycle.
func (m *Materializer) MaterializeAll(ctx context.Context, all []domain.Series, from, to time.Time) (int, []domain.SeriesID) {
	total := 0
	var failed []domain.SeriesID
	for _, s := range all {
		n, err := m.MaterializeWindow(ctx, s, from, to)
		total += n
		if err != nil {
			failed = append(failed, s.ID)
			metrics.SeriesFailures.Inc()
			m.logger.Error("materialization failed for series, continuing batch",
				"series_id", s.ID, "error", err)
		}
	}
	return total, failed
}

func (m *Materializer) insertOccurrence(ctx context.Context, series domain.Series, date time.Time, tzID string) (domain.Occurrence, bool, error) {
	occ := domain.Occurrence{
		ID:        domain.OccurrenceID(uuid.NewString()),
		SeriesID:  series.ID,
		Date:      date,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	// ScheduledAt is computed exactly once, from the series' time-of-day
	// and the owner's timezone as they stand right now. A nil time-of-day
	// makes this an "anytime" occurrence and ScheduledAt stays nil.
	if series.LocalTimeOfDay != nil {
		instant, err := ToInstant(date, *series.LocalTimeOfDay, tzID)
		if err != nil {
			return domain.Occurrence{}, false, err
		}
		occ.ScheduledAt = &instant
	}

	out, created, err := m.store.InsertIfAbsent(ctx, occ)
	if err != nil {
		return domain.Occurrence{}, false, fmt.Errorf("insert occurrence %s/%s: %w", series.ID, date.Format(time.DateOnly), err)
	}
	if !created {
		metrics.InsertConflicts.Inc()
		return out, false, nil
	}

	metrics.OccurrencesMaterialized.Inc()
	m.bus.Publish(domain.OccurrenceEvent{
		Type:         domain.EventOccurrenceCreated,
		SeriesID:     out.SeriesID,
		OccurrenceID: out.ID,
		Date:         out.Date,
		Status:       out.Status,
		At:           time.Now().UTC(),
	})
	return out, true, nil
}

func (m *Materializer) timezoneFor(ctx context.Context, user domain.UserID) (string, error) {
	tzID, err := m.prefs.Timezone(ctx, user)
	if err != nil {
		return "", fmt.Errorf("resolve timezone for user %s: %w", user, err)
	}
	if tzID == "" {
		tzID = "UTC"
	}
	return tzID, nil
}
