package services

import (
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
)

// ToInstant converts a calendar date plus local wall-clock time in the
// given IANA timezone into an unambiguous absolute instant (UTC).
//
// DST transitions are handled explicitly: when the wall time is ambiguous
// (clock fell back) or nonexistent (clock sprang forward), the later of
// the candidate instants is chosen, so an occurrence is never silently
// dropped. An unknown timezone returns *domain.InvalidTimezoneError.
func ToInstant(date time.Time, tod domain.TimeOfDay, tzID string) (time.Time, error) {
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		return time.Time{}, &domain.InvalidTimezoneError{TZ: tzID, Err: err}
	}
	return resolveLocal(date.Year(), date.Month(), date.Day(), tod, loc), nil
}

// ToLocal converts an absolute instant back into the calendar date and
// wall-clock time it represents in the given timezone.
func ToLocal(instant time.Time, tzID string) (time.Time, domain.TimeOfDay, error) {
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		return time.Time{}, domain.TimeOfDay{}, &domain.InvalidTimezoneError{TZ: tzID, Err: err}
	}
	local := instant.In(loc)
	return domain.Date(local.Year(), local.Month(), local.Day()),
		domain.TimeOfDay{Hour: local.Hour(), Minute: local.Minute()},
		nil
}

// TodayIn returns the current calendar date in the given location.
func TodayIn(loc *time.Location, now time.Time) time.Time {
	local := now.In(loc)
	return domain.Date(local.Year(), local.Month(), local.Day())
}

// resolveLocal maps a wall-clock time to an instant. Zone offsets are
// probed on both sides of the target day so a DST transition surfaces
// both candidate instants; of the candidates whose local rendering
// round-trips to the requested wall time, the later wins (an ambiguous
// fall-back time resolves to its second occurrence). If no candidate
// round-trips, the wall time fell inside a spring-forward gap and the
// later candidate is taken, which lands just past the transition.
func resolveLocal(year int, month time.Month, day int, tod domain.TimeOfDay, loc *time.Location) time.Time {
	guess := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, time.UTC)

	offsets := make(map[int]struct{})
	for _, probe := range []time.Time{guess.Add(-30 * time.Hour), guess, guess.Add(30 * time.Hour)} {
		_, off := probe.In(loc).Zone()
		offsets[off] = struct{}{}
	}

	var best, fallback *time.Time
	for off := range offsets {
		c := guess.Add(-time.Duration(off) * time.Second)
		if fallback == nil || c.After(*fallback) {
			c := c
			fallback = &c
		}
		l := c.In(loc)
		if l.Year() == year && l.Month() == month && l.Day() == day &&
			l.Hour() == tod.Hour && l.Minute() == tod.Minute {
			if best == nil || c.After(*best) {
				c := c
				best = &c
			}
		}
	}
	if best != nil {
		return best.UTC()
	}
	return fallback.UTC()
}
