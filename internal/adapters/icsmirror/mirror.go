// Package icsmirror maintains a best-effort ICS rendition of the
// materialized occurrences for an external calendar client. It consumes
// the lifecycle event stream asynchronously and never blocks or fails the
// core: a dropped event or a failed write is healed by the next rebuild,
// which always re-reads the store rather than trusting event history.
package icsmirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
	"github.com/cadehq/cadence/internal/core/services"
)

const (
	debounce     = 2 * time.Second
	resyncEvery  = 15 * time.Minute
	lookbackDays = 90
)

type Mirror struct {
	logger *slog.Logger
	store  ports.Store
	bus    *services.EventBus
	path   string
	now    func() time.Time
}

func New(logger *slog.Logger, store ports.Store, bus *services.EventBus, path string) *Mirror {
	return &Mirror{
		logger: logger,
		store:  store,
		bus:    bus,
		path:   path,
		now:    time.Now,
	}
}

// Run subscribes to the broadcast event stream and rewrites the ICS file
// after bursts of changes, plus a periodic full resync. Blocks until ctx
// is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	events, unsub := m.bus.Subscribe(services.BroadcastChannel)
	defer unsub()

	resync := time.NewTicker(resyncEvery)
	defer resync.Stop()

	var flush *time.Timer
	var flushC <-chan time.Time

	rebuild := func() {
		flush = nil
		flushC = nil
		if err := m.Rebuild(ctx); err != nil {
			// Best effort: the periodic resync retries.
			m.logger.Warn("mirror rebuild failed", "error", err)
		}
	}

	// Initial sync so a fresh mirror file exists before any event fires.
	if err := m.Rebuild(ctx); err != nil {
		m.logger.Warn("initial mirror rebuild failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			if flush == nil {
				flush = time.NewTimer(debounce)
				flushC = flush.C
			}
		case <-flushC:
			rebuild()
		case <-resync.C:
			rebuild()
		}
	}
}

// Rebuild regenerates the full ICS file from the store.
func (m *Mirror) Rebuild(ctx context.Context) error {
	today := domain.DateOf(m.now().UTC())
	occs, err := m.store.ListOccurrences(ctx, ports.OccurrenceQuery{
		From:   today.AddDate(0, 0, -lookbackDays),
		Status: ports.FilterAll,
	})
	if err != nil {
		return fmt.Errorf("mirror: list occurrences: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//cadence//materialization engine//EN")

	titles := map[domain.SeriesID]string{}
	for _, entry := range services.CalendarEntries(occs, today) {
		occ := entry.Occurrence
		title, ok := titles[occ.SeriesID]
		if !ok {
			series, err := m.store.GetSeries(ctx, occ.SeriesID)
			if err != nil {
				// Series deleted under us; its occurrences go on the next
				// rebuild.
				continue
			}
			title = series.Title
			titles[occ.SeriesID] = title
		}

		ev := cal.AddEvent(string(occ.ID))
		ev.SetSummary(title)
		ev.SetDtStampTime(occ.CreatedAt)
		if entry.Anytime {
			// Anytime occurrences render as all-day, never pinned to a
			// made-up hour.
			ev.SetAllDayStartAt(occ.Date)
			ev.SetAllDayEndAt(occ.Date.AddDate(0, 0, 1))
		} else {
			ev.SetStartAt(*occ.ScheduledAt)
			ev.SetEndAt(occ.ScheduledAt.Add(time.Hour))
		}
		if entry.Done {
			ev.SetStatus(ics.ObjectStatusCompleted)
		}
	}

	if err := m.writeAtomic(cal.Serialize()); err != nil {
		return fmt.Errorf("mirror: write %s: %w", m.path, err)
	}
	m.logger.Debug("mirror rebuilt", "path", m.path, "occurrences", len(occs))
	return nil
}

func (m *Mirror) writeAtomic(content string) error {
	tmp := m.path + ".tmp"
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
