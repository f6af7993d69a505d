package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
)

const seriesColumns = `id, user_id, title, frequency, recur_interval, weekdays, rule_end_date, start_date, end_date, time_hour, time_minute, active, created_at, updated_at`

func (r *Repository) UpsertSeries(ctx context.Context, s domain.Series) error {
	query := `
	INSERT INTO series (id, user_id, title, frequency, recur_interval, weekdays, rule_end_date, start_date, end_date, time_hour, time_minute, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		frequency = excluded.frequency,
		recur_interval = excluded.recur_interval,
		weekdays = excluded.weekdays,
		rule_end_date = excluded.rule_end_date,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		time_hour = excluded.time_hour,
		time_minute = excluded.time_minute,
		active = excluded.active,
		updated_at = excluded.updated_at;
	`

	var hour, minute *int
	if s.LocalTimeOfDay != nil {
		h, m := s.LocalTimeOfDay.Hour, s.LocalTimeOfDay.Minute
		hour, minute = &h, &m
	}

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.Title, s.Rule.Frequency, s.Rule.Interval,
		encodeWeekdays(s.Rule.Weekdays), optDateStr(s.Rule.EndDate),
		dateStr(s.StartDate), optDateStr(s.EndDate),
		hour, minute, s.Active, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *Repository) GetSeries(ctx context.Context, id domain.SeriesID) (domain.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series WHERE id = ?`
	s, err := scanSeries(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Series{}, domain.ErrSeriesNotFound
		}
		return domain.Series{}, err
	}
	return s, nil
}

func (r *Repository) ListActiveSeries(ctx context.Context) ([]domain.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series WHERE active ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteSeries(ctx context.Context, id domain.SeriesID) ([]domain.Occurrence, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Cascade: occurrences go with their series. The rows are read back
	// first so the caller can emit deletion events for each of them.
	cascaded, err := selectOccurrences(ctx, tx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE series_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences WHERE series_id = ?`, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cascaded, nil
}

func scanSeries(s rowScanner) (domain.Series, error) {
	var out domain.Series
	var idStr, userStr, freqStr, weekdaysStr string
	var ruleEnd, endDate sql.NullString
	var startDate string
	var hour, minute sql.NullInt64

	if err := s.Scan(&idStr, &userStr, &out.Title, &freqStr, &out.Rule.Interval,
		&weekdaysStr, &ruleEnd, &startDate, &endDate, &hour, &minute,
		&out.Active, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return domain.Series{}, err
	}

	out.ID = domain.SeriesID(idStr)
	out.UserID = domain.UserID(userStr)
	out.Rule.Frequency = domain.Frequency(freqStr)

	wd, err := decodeWeekdays(weekdaysStr)
	if err != nil {
		return domain.Series{}, err
	}
	out.Rule.Weekdays = wd

	start, err := time.ParseInLocation(time.DateOnly, startDate, time.UTC)
	if err != nil {
		return domain.Series{}, fmt.Errorf("parse start_date %q: %w", startDate, err)
	}
	out.StartDate = start

	if out.Rule.EndDate, err = parseOptDate(ruleEnd); err != nil {
		return domain.Series{}, err
	}
	if out.EndDate, err = parseOptDate(endDate); err != nil {
		return domain.Series{}, err
	}
	if hour.Valid && minute.Valid {
		out.LocalTimeOfDay = &domain.TimeOfDay{Hour: int(hour.Int64), Minute: int(minute.Int64)}
	}
	return out, nil
}

// encodeWeekdays stores a weekday set as comma-joined ints ("1,3,5").
func encodeWeekdays(wds []time.Weekday) string {
	if len(wds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(wds))
	for _, wd := range wds {
		parts = append(parts, strconv.Itoa(int(wd)))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse weekdays %q: %w", s, err)
		}
		out = append(out, time.Weekday(n))
	}
	return out, nil
}

func optDateStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := dateStr(*t)
	return &s
}

func parseOptDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, ns.String, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", ns.String, err)
	}
	return &t, nil
}
