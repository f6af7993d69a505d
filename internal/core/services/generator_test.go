package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cadehq/cadence/internal/core/domain"
)

func TestGenerate_DailyIntervalAnchoredAtSeriesStart(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 4}
	start := domain.Date(2026, time.January, 1)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.January, 20))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 1),
		domain.Date(2026, time.January, 5),
		domain.Date(2026, time.January, 9),
		domain.Date(2026, time.January, 13),
		domain.Date(2026, time.January, 17),
	}, dates)
}

func TestGenerate_DailyPhaseStableAcrossWindowShift(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 4}
	start := domain.Date(2026, time.January, 1)

	// A window that starts mid-phase must not re-anchor: Jan 3 is not a
	// candidate, Jan 5 is.
	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 3), domain.Date(2026, time.January, 10))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 5),
		domain.Date(2026, time.January, 9),
	}, dates)
}

func TestGenerate_WeeklyByWeekdaySet(t *testing.T) {
	// Mon/Wed every week; 2026-01-05 is a Monday.
	rule := domain.RecurrenceRule{
		Frequency: domain.FrequencyWeekly,
		Interval:  1,
		Weekdays:  []time.Weekday{time.Monday, time.Wednesday},
	}
	start := domain.Date(2026, time.January, 5)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 5), domain.Date(2026, time.January, 18))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 5),
		domain.Date(2026, time.January, 7),
		domain.Date(2026, time.January, 12),
		domain.Date(2026, time.January, 14),
	}, dates)
}

func TestGenerate_WeeklyEveryOtherWeek(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency: domain.FrequencyWeekly,
		Interval:  2,
		Weekdays:  []time.Weekday{time.Friday},
	}
	// 2026-01-02 is a Friday.
	start := domain.Date(2026, time.January, 2)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.February, 1))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 2),
		domain.Date(2026, time.January, 16),
		domain.Date(2026, time.January, 30),
	}, dates)
}

func TestGenerate_WeeklyEmptyWeekdaySetIsDegenerate(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyWeekly, Interval: 1}
	start := domain.Date(2026, time.January, 1)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.December, 31))

	assert.Empty(t, dates)
}

func TestGenerate_MonthlyClampsToShortMonths(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 1}
	start := domain.Date(2026, time.January, 31)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.April, 30))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 31),
		domain.Date(2026, time.February, 28), // clamped, 2026 is not a leap year
		domain.Date(2026, time.March, 31),
		domain.Date(2026, time.April, 30), // clamped
	}, dates)
}

func TestGenerate_MonthlyInterval(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyMonthly, Interval: 3}
	start := domain.Date(2026, time.January, 15)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.December, 31))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 15),
		domain.Date(2026, time.April, 15),
		domain.Date(2026, time.July, 15),
		domain.Date(2026, time.October, 15),
	}, dates)
}

func TestGenerate_SeriesEndBoundsWindow(t *testing.T) {
	end := domain.Date(2026, time.January, 10)
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
	start := domain.Date(2026, time.January, 8)

	dates := GenerateOccurrenceDates(rule, start, &end,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.January, 31))

	assert.Equal(t, []time.Time{
		domain.Date(2026, time.January, 8),
		domain.Date(2026, time.January, 9),
		domain.Date(2026, time.January, 10), // seriesEnd is inclusive
	}, dates)
}

func TestGenerate_WindowBeforeSeriesStartIsEmpty(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 1}
	start := domain.Date(2026, time.June, 1)

	dates := GenerateOccurrenceDates(rule, start, nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.January, 31))

	assert.Empty(t, dates)
}

func TestGenerate_Deterministic(t *testing.T) {
	rule := domain.RecurrenceRule{
		Frequency: domain.FrequencyWeekly,
		Interval:  2,
		Weekdays:  []time.Weekday{time.Monday, time.Thursday, time.Saturday},
	}
	start := domain.Date(2026, time.March, 3)
	lo := domain.Date(2026, time.March, 1)
	hi := domain.Date(2026, time.June, 30)

	first := GenerateOccurrenceDates(rule, start, nil, lo, hi)
	second := GenerateOccurrenceDates(rule, start, nil, lo, hi)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestGenerate_InvalidIntervalYieldsNothing(t *testing.T) {
	rule := domain.RecurrenceRule{Frequency: domain.FrequencyDaily, Interval: 0}
	dates := GenerateOccurrenceDates(rule, domain.Date(2026, time.January, 1), nil,
		domain.Date(2026, time.January, 1), domain.Date(2026, time.January, 31))
	assert.Empty(t, dates)
}
