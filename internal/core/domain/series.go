package domain

import (
	"fmt"
	"time"
)

// SeriesID is the unique identifier for a repeating-task definition
type SeriesID string

// UserID identifies the owning user of a series
type UserID string

// Frequency describes how often a series repeats
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurrenceRule is an immutable description of how a series repeats.
// Weekdays is only meaningful for weekly rules; EndDate nil means the
// series repeats forever.
type RecurrenceRule struct {
	Frequency Frequency      `json:"frequency"`
	Interval  int            `json:"interval"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
	EndDate   *time.Time     `json:"end_date,omitempty"`
}

// Validate checks the rule's structural invariants. A weekly rule with an
// empty weekday set is structurally valid but degenerate: generation yields
// no occurrences, which is a silent no-op rather than an error.
func (r RecurrenceRule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("recurrence rule: unknown frequency %q", r.Frequency)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("recurrence rule: interval must be positive, got %d", r.Interval)
	}
	for _, wd := range r.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("recurrence rule: invalid weekday %d", wd)
		}
	}
	return nil
}

// TimeOfDay is a wall-clock time with minute precision, independent of
// any particular day or timezone.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Series is the repeating-task definition. It is owned by the series-edit
// collaborator; this engine only reads it to drive materialization.
// A rule, start/end or time-of-day change must go through regeneration.
type Series struct {
	ID             SeriesID       `json:"id"`
	UserID         UserID         `json:"user_id"`
	Title          string         `json:"title"`
	Rule           RecurrenceRule `json:"rule"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        *time.Time     `json:"end_date,omitempty"`
	LocalTimeOfDay *TimeOfDay     `json:"local_time_of_day,omitempty"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RuleChanged reports whether an edit touched any field that invalidates
// already-materialized pending occurrences.
func (s Series) RuleChanged(prev Series) bool {
	if s.Rule.Frequency != prev.Rule.Frequency || s.Rule.Interval != prev.Rule.Interval {
		return true
	}
	if !weekdaysEqual(s.Rule.Weekdays, prev.Rule.Weekdays) {
		return true
	}
	if !optionalDateEqual(s.Rule.EndDate, prev.Rule.EndDate) {
		return true
	}
	if !s.StartDate.Equal(prev.StartDate) {
		return true
	}
	if !optionalDateEqual(s.EndDate, prev.EndDate) {
		return true
	}
	if !timeOfDayEqual(s.LocalTimeOfDay, prev.LocalTimeOfDay) {
		return true
	}
	return false
}

func weekdaysEqual(a, b []time.Weekday) bool {
	if len(a) != len(b) {
		return false
	}
	var sa, sb [7]bool
	for _, wd := range a {
		sa[wd] = true
	}
	for _, wd := range b {
		sb[wd] = true
	}
	return sa == sb
}

func optionalDateEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func timeOfDayEqual(a, b *TimeOfDay) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
