package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
)

const occurrenceColumns = `id, series_id, occurrence_date, scheduled_at, status, completed_at, created_at`

func (r *Repository) InsertIfAbsent(ctx context.Context, occ domain.Occurrence) (domain.Occurrence, bool, error) {
	query := `
	INSERT INTO occurrences (id, series_id, occurrence_date, scheduled_at, status, completed_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (series_id, occurrence_date) DO NOTHING;
	`

	res, err := r.db.ExecContext(ctx, query,
		occ.ID, occ.SeriesID, dateStr(occ.Date),
		occ.ScheduledAt, occ.Status, occ.CompletedAt, occ.CreatedAt,
	)
	if err != nil {
		return domain.Occurrence{}, false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Occurrence{}, false, err
	}
	if n > 0 {
		return occ, true, nil
	}

	// A concurrent caller (or an earlier run) won the insert. Re-read the
	// existing row instead of trusting anything decided before the write.
	existing, err := r.getByDate(ctx, occ.SeriesID, occ.Date)
	if err != nil {
		return domain.Occurrence{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) GetOccurrence(ctx context.Context, id domain.OccurrenceID) (domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences WHERE id = ?`
	occ, err := scanOccurrence(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Occurrence{}, domain.ErrOccurrenceNotFound
		}
		return domain.Occurrence{}, err
	}
	return occ, nil
}

func (r *Repository) getByDate(ctx context.Context, seriesID domain.SeriesID, date time.Time) (domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences WHERE series_id = ? AND occurrence_date = ?`
	occ, err := scanOccurrence(r.db.QueryRowContext(ctx, query, seriesID, dateStr(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Occurrence{}, domain.ErrOccurrenceNotFound
		}
		return domain.Occurrence{}, err
	}
	return occ, nil
}

func (r *Repository) ListOccurrences(ctx context.Context, q ports.OccurrenceQuery) ([]domain.Occurrence, error) {
	query := `SELECT o.` + "id, o.series_id, o.occurrence_date, o.scheduled_at, o.status, o.completed_at, o.created_at" + `
	FROM occurrences o`
	var args []any
	where := ""

	and := func(cond string, a ...any) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, a...)
	}

	if q.UserID != "" {
		query += ` JOIN series s ON s.id = o.series_id`
		and(`s.user_id = ?`, q.UserID)
	}
	if q.SeriesID != "" {
		and(`o.series_id = ?`, q.SeriesID)
	}
	if !q.From.IsZero() {
		and(`o.occurrence_date >= ?`, dateStr(q.From))
	}
	if !q.To.IsZero() {
		and(`o.occurrence_date <= ?`, dateStr(q.To))
	}
	switch q.Status {
	case ports.FilterAll:
	case ports.FilterCompleted:
		and(`o.status = ?`, domain.StatusCompleted)
	case ports.FilterSkipped:
		and(`o.status = ?`, domain.StatusSkipped)
	default:
		// Pending-only is the default read for summary counts.
		and(`o.status = ?`, domain.StatusPending)
	}

	rows, err := r.db.QueryContext(ctx, query+where+` ORDER BY o.occurrence_date ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateOccurrenceStatus(ctx context.Context, id domain.OccurrenceID, status domain.OccurrenceStatus, completedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE occurrences SET status = ?, completed_at = ? WHERE id = ?`,
		status, completedAt, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrOccurrenceNotFound
	}
	return nil
}

func (r *Repository) DeletePendingOccurrences(ctx context.Context, id domain.SeriesID) ([]domain.Occurrence, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	deleted, err := selectOccurrences(ctx, tx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE series_id = ? AND status = ?`,
		id, domain.StatusPending,
	)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM occurrences WHERE series_id = ? AND status = ?`,
		id, domain.StatusPending,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Repository) PruneTerminalOccurrences(ctx context.Context, user domain.UserID, before time.Time) ([]domain.Occurrence, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cond := `
	WHERE status IN (?, ?)
	  AND occurrence_date < ?
	  AND series_id IN (SELECT id FROM series WHERE user_id = ?)`
	args := []any{domain.StatusCompleted, domain.StatusSkipped, dateStr(before), user}

	pruned, err := selectOccurrences(ctx, tx,
		`SELECT `+occurrenceColumns+` FROM occurrences`+cond, args...)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences`+cond, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pruned, nil
}

func selectOccurrences(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.Occurrence, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(s rowScanner) (domain.Occurrence, error) {
	var o domain.Occurrence
	var idStr, seriesIDStr, dateS, statusStr string
	var scheduledAt, completedAt sql.NullTime

	if err := s.Scan(&idStr, &seriesIDStr, &dateS, &scheduledAt, &statusStr, &completedAt, &o.CreatedAt); err != nil {
		return domain.Occurrence{}, err
	}

	date, err := time.ParseInLocation(time.DateOnly, dateS, time.UTC)
	if err != nil {
		return domain.Occurrence{}, fmt.Errorf("parse occurrence_date %q: %w", dateS, err)
	}

	o.ID = domain.OccurrenceID(idStr)
	o.SeriesID = domain.SeriesID(seriesIDStr)
	o.Date = date
	o.Status = domain.OccurrenceStatus(statusStr)
	if scheduledAt.Valid {
		t := scheduledAt.Time.UTC()
		o.ScheduledAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		o.CompletedAt = &t
	}
	return o, nil
}

func dateStr(t time.Time) string {
	return t.Format(time.DateOnly)
}
