package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
	"github.com/cadehq/cadence/internal/metrics"
)

// LifecycleController is the per-occurrence state machine. All transitions
// are reversible by explicit action; completed and skipped are mutually
// exclusive (setting one clears the other). Completing an occurrence never
// cascades to sibling occurrences or the parent series, and nothing here
// ever silently undoes an explicit completion.
//
// Every transition publishes a fire-and-forget lifecycle event; the
// external mirror consumes those asynchronously and is never awaited.
type LifecycleController struct {
	logger       *slog.Logger
	store        ports.Store
	materializer *Materializer
	bus          *EventBus
	now          func() time.Time
}

func NewLifecycleController(logger *slog.Logger, store ports.Store, materializer *Materializer, bus *EventBus) *LifecycleController {
	return &LifecycleController{
		logger:       logger,
		store:        store,
		materializer: materializer,
		bus:          bus,
		now:          time.Now,
	}
}

// Complete moves a pending or skipped occurrence to completed and stamps
// CompletedAt. Completing an already-completed occurrence is a no-op.
func (c *LifecycleController) Complete(ctx context.Context, id domain.OccurrenceID) (domain.Occurrence, error) {
	occ, err := c.store.GetOccurrence(ctx, id)
	if err != nil {
		return domain.Occurrence{}, err
	}
	if occ.Status == domain.StatusCompleted {
		return occ, nil
	}
	at := c.now().UTC()
	return c.transition(ctx, occ, domain.StatusCompleted, &at, domain.EventOccurrenceCompleted, "complete")
}

// Uncomplete moves a completed occurrence back to pending and clears
// CompletedAt.
func (c *LifecycleController) Uncomplete(ctx context.Context, id domain.OccurrenceID) (domain.Occurrence, error) {
	occ, err := c.store.GetOccurrence(ctx, id)
	if err != nil {
		return domain.Occurrence{}, err
	}
	if occ.Status != domain.StatusCompleted {
		return occ, nil
	}
	return c.transition(ctx, occ, domain.StatusPending, nil, domain.EventOccurrenceUncompleted, "uncomplete")
}

// Skip moves a pending or completed occurrence to skipped, clearing any
// completion stamp.
func (c *LifecycleController) Skip(ctx context.Context, id domain.OccurrenceID) (domain.Occurrence, error) {
	occ, err := c.store.GetOccurrence(ctx, id)
	if err != nil {
		return domain.Occurrence{}, err
	}
	if occ.Status == domain.StatusSkipped {
		return occ, nil
	}
	return c.transition(ctx, occ, domain.StatusSkipped, nil, domain.EventOccurrenceSkipped, "skip")
}

// Unskip moves a skipped occurrence back to pending.
func (c *LifecycleController) Unskip(ctx context.Context, id domain.OccurrenceID) (domain.Occurrence, error) {
	occ, err := c.store.GetOccurrence(ctx, id)
	if err != nil {
		return domain.Occurrence{}, err
	}
	if occ.Status != domain.StatusSkipped {
		return occ, nil
	}
	return c.transition(ctx, occ, domain.StatusPending, nil, domain.EventOccurrenceUnskipped, "unskip")
}

// GetOrCreateForDate returns the occurrence for (series, date), creating
// it through the materializer's single-date insert path when the date lies
// outside the currently materialized window. Two back-to-back calls for
// the same pair always return the same occurrence id.
func (c *LifecycleController) GetOrCreateForDate(ctx context.Context, seriesID domain.SeriesID, date time.Time) (domain.Occurrence, error) {
	series, err := c.store.GetSeries(ctx, seriesID)
	if err != nil {
		return domain.Occurrence{}, err
	}
	occ, _, err := c.materializer.MaterializeDate(ctx, series, date)
	return occ, err
}

func (c *LifecycleController) transition(ctx context.Context, occ domain.Occurrence, to domain.OccurrenceStatus, completedAt *time.Time, event domain.EventType, name string) (domain.Occurrence, error) {
	if err := c.store.UpdateOccurrenceStatus(ctx, occ.ID, to, completedAt); err != nil {
		return domain.Occurrence{}, err
	}
	occ.Status = to
	occ.CompletedAt = completedAt

	metrics.LifecycleTransitions.WithLabelValues(name).Inc()
	c.logger.Debug("occurrence transition",
		"occurrence_id", occ.ID, "series_id", occ.SeriesID, "transition", name)

	c.bus.Publish(domain.OccurrenceEvent{
		Type:         event,
		SeriesID:     occ.SeriesID,
		OccurrenceID: occ.ID,
		Date:         occ.Date,
		Status:       occ.Status,
		At:           c.now().UTC(),
	})
	return occ, nil
}
