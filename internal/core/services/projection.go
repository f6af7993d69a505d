package services

import (
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
)

// Projection helpers shape occurrence listings for the calendar and
// summary views. Views render occurrences only, never series definitions,
// and every consumer computes "overdue" through IsOverdue so the
// definition cannot drift between surfaces.

// IsOverdue reports whether the occurrence is pending with a date before
// the user-local today. Completed and skipped occurrences are never
// overdue.
func IsOverdue(occ domain.Occurrence, today time.Time) bool {
	return occ.Status == domain.StatusPending && occ.Date.Before(domain.DateOf(today))
}

// NearestPending picks the single occurrence that represents a whole
// series in a list/summary view: today's pending occurrence if it exists,
// otherwise the earliest future pending one. When every pending
// occurrence is overdue (see IsOverdue) the most recent overdue one
// stands in, so a lapsed series still surfaces an actionable row instead
// of vanishing from the list. Returns false when the series has no
// pending occurrences.
func NearestPending(occs []domain.Occurrence, today time.Time) (domain.Occurrence, bool) {
	day := domain.DateOf(today)
	var future, overdue *domain.Occurrence
	for i := range occs {
		occ := occs[i]
		if occ.Status != domain.StatusPending {
			continue
		}
		switch {
		case occ.Date.Equal(day):
			return occ, true
		case occ.Date.After(day):
			if future == nil || occ.Date.Before(future.Date) {
				future = &occs[i]
			}
		default:
			if overdue == nil || occ.Date.After(overdue.Date) {
				overdue = &occs[i]
			}
		}
	}
	if future != nil {
		return *future, true
	}
	if overdue != nil {
		return *overdue, true
	}
	return domain.Occurrence{}, false
}

// CalendarEntry is one occurrence shaped for calendar rendering. Anytime
// is true when the occurrence has no scheduled instant; such entries
// belong in the date's "anytime" bucket and must never be defaulted to an
// arbitrary fixed hour.
type CalendarEntry struct {
	Occurrence domain.Occurrence `json:"occurrence"`
	Anytime    bool              `json:"anytime"`
	Done       bool              `json:"done"`
	Overdue    bool              `json:"overdue"`
}

// CalendarEntries shapes occurrences for a calendar view: skipped
// occurrences are hidden, completed ones stay visible with a done marker.
func CalendarEntries(occs []domain.Occurrence, today time.Time) []CalendarEntry {
	out := make([]CalendarEntry, 0, len(occs))
	for _, occ := range occs {
		if occ.Status == domain.StatusSkipped {
			continue
		}
		out = append(out, CalendarEntry{
			Occurrence: occ,
			Anytime:    occ.ScheduledAt == nil,
			Done:       occ.Status == domain.StatusCompleted,
			Overdue:    IsOverdue(occ, today),
		})
	}
	return out
}
