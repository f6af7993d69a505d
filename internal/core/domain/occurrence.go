package domain

import "time"

// OccurrenceID is the unique identifier for a materialized occurrence
type OccurrenceID string

// OccurrenceStatus represents the lifecycle state of an occurrence.
// No state is permanently terminal: completed and skipped can always be
// toggled back to pending by explicit user action, but regeneration treats
// them as historical record and never deletes or recreates them.
type OccurrenceStatus string

const (
	StatusPending   OccurrenceStatus = "pending"
	StatusCompleted OccurrenceStatus = "completed"
	StatusSkipped   OccurrenceStatus = "skipped"
)

// Occurrence is one materialized, individually-actionable instance of a
// series on a specific calendar date.
//
// ScheduledAt is derived once at creation from date + time-of-day +
// timezone and never recomputed afterwards; nil means the occurrence is
// "anytime" (the series had no time-of-day when it was created).
type Occurrence struct {
	ID          OccurrenceID     `json:"id"`
	SeriesID    SeriesID         `json:"series_id"`
	Date        time.Time        `json:"date"`
	ScheduledAt *time.Time       `json:"scheduled_at,omitempty"`
	Status      OccurrenceStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Terminal reports whether the occurrence is in a historical state that
// regeneration and pruning treat as settled.
func (o Occurrence) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusSkipped
}

// DateOf truncates t to a calendar date: UTC midnight of the same
// year/month/day. All occurrence dates flow through this so that date
// equality is plain time.Time equality.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date constructs a calendar date directly.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
