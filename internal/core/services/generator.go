package services

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cadehq/cadence/internal/core/domain"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// GenerateOccurrenceDates expands a recurrence rule into the ordered list
// of candidate calendar dates inside [windowStart, windowEnd], bounded by
// the series' own start/end. Pure and deterministic: identical inputs
// always yield identical output.
//
// The interval phase is anchored at seriesStart, never at the window, so a
// daily/4 series starting Jan 1 lands on Jan 1, 5, 9... regardless of how
// the rolling window shifts.
//
// A rule with no valid anchors (weekly with an empty weekday set, or a
// structurally invalid rule) yields an empty list, not an error. Rule
// validation proper belongs to the series-edit path upstream.
func GenerateOccurrenceDates(rule domain.RecurrenceRule, seriesStart time.Time, seriesEnd *time.Time, windowStart, windowEnd time.Time) []time.Time {
	if rule.Interval <= 0 {
		return nil
	}

	lo := domain.DateOf(seriesStart)
	if ws := domain.DateOf(windowStart); ws.After(lo) {
		lo = ws
	}
	hi := domain.DateOf(windowEnd)
	if seriesEnd != nil {
		if se := domain.DateOf(*seriesEnd); se.Before(hi) {
			hi = se
		}
	}
	if rule.EndDate != nil {
		if re := domain.DateOf(*rule.EndDate); re.Before(hi) {
			hi = re
		}
	}
	if hi.Before(lo) {
		return nil
	}

	switch rule.Frequency {
	case domain.FrequencyDaily:
		return expandRRule(rrule.ROption{
			Freq:     rrule.DAILY,
			Interval: rule.Interval,
			Dtstart:  domain.DateOf(seriesStart),
		}, lo, hi)
	case domain.FrequencyWeekly:
		if len(rule.Weekdays) == 0 {
			// Degenerate: no anchors, silent no-op.
			return nil
		}
		byday := make([]rrule.Weekday, 0, len(rule.Weekdays))
		for _, wd := range rule.Weekdays {
			byday = append(byday, rruleWeekdays[wd])
		}
		return expandRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Interval:  rule.Interval,
			Byweekday: byday,
			Dtstart:   domain.DateOf(seriesStart),
		}, lo, hi)
	case domain.FrequencyMonthly:
		return expandMonthly(rule.Interval, domain.DateOf(seriesStart), lo, hi)
	default:
		return nil
	}
}

func expandRRule(opt rrule.ROption, lo, hi time.Time) []time.Time {
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil
	}
	times := r.Between(lo, hi, true)
	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		out = append(out, domain.DateOf(t))
	}
	return out
}

// expandMonthly steps month by month from the series anchor. RFC 5545
// monthly recurrence skips months that lack the anchor day (a Jan 31 rule
// never fires in February); this engine clamps to the last day of the
// month instead, so the expansion is done by hand rather than via rrule.
func expandMonthly(interval int, anchor, lo, hi time.Time) []time.Time {
	day := anchor.Day()
	var out []time.Time
	for i := 0; ; i += interval {
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		d := day
		if last := daysInMonth(first.Year(), first.Month()); d > last {
			d = last
		}
		cand := time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
		if cand.After(hi) {
			return out
		}
		if !cand.Before(lo) {
			out = append(out, cand)
		}
	}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
