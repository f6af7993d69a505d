package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
	"github.com/cadehq/cadence/internal/metrics"
)

const (
	DefaultHorizonDays   = 60
	DefaultRetentionDays = 90
	DefaultAdvanceCron   = "0 * * * *" // hourly
)

// WindowScheduler is the singleton background process that keeps every
// active series' rolling window filled and prunes old terminal
// occurrences. Each tick is isolated per series: one series failing never
// blocks the rest, and tick errors never propagate anywhere user-visible.
type WindowScheduler struct {
	logger        *slog.Logger
	store         ports.Store
	prefs         ports.PreferenceSource
	materializer  *Materializer
	bus           *EventBus
	cronSpec      string
	horizonDays   int
	retentionDays int
	now           func() time.Time
}

func NewWindowScheduler(logger *slog.Logger, store ports.Store, prefs ports.PreferenceSource, materializer *Materializer, bus *EventBus, cronSpec string, horizonDays, retentionDays int) *WindowScheduler {
	if cronSpec == "" {
		cronSpec = DefaultAdvanceCron
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &WindowScheduler{
		logger:        logger,
		store:         store,
		prefs:         prefs,
		materializer:  materializer,
		bus:           bus,
		cronSpec:      cronSpec,
		horizonDays:   horizonDays,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run starts the cron schedule and blocks until ctx is cancelled. An
// immediate tick runs on startup so a freshly started engine fills any gap
// left while it was down.
func (s *WindowScheduler) Run(ctx context.Context) error {
	s.logger.Info("window scheduler started", "cron", s.cronSpec, "horizon_days", s.horizonDays, "retention_days", s.retentionDays)

	s.Tick(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.cronSpec, func() { s.Tick(ctx) }); err != nil {
		return err
	}
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info("window scheduler stopped")
	return nil
}

// Tick runs one window-advance plus pruning pass over all active series.
func (s *WindowScheduler) Tick(ctx context.Context) {
	all, err := s.store.ListActiveSeries(ctx)
	if err != nil {
		s.logger.Error("failed to list active series", "error", err)
		return
	}
	metrics.ActiveSeries.Set(float64(len(all)))
	if len(all) == 0 {
		return
	}

	s.advance(ctx, all)
	s.prune(ctx, all)
}

func (s *WindowScheduler) advance(ctx context.Context, all []domain.Series) {
	now := s.now()
	created := 0
	var failed []domain.SeriesID

	// Windows are computed per series in the owner's local timezone so
	// "today" means the user's today.
	for _, series := range all {
		loc := s.locationFor(ctx, series.UserID)
		today := TodayIn(loc, now)
		n, batchFailed := s.materializer.MaterializeAll(ctx, []domain.Series{series}, today, today.AddDate(0, 0, s.horizonDays))
		created += n
		failed = append(failed, batchFailed...)
	}

	if created > 0 || len(failed) > 0 {
		s.logger.Info("window advance complete",
			"series", len(all), "created", created, "failed_series", failed)
	}
}

func (s *WindowScheduler) prune(ctx context.Context, all []domain.Series) {
	now := s.now()

	// Retention is a per-user preference, so pruning is scoped per user
	// and each user is walked only once.
	seen := map[domain.UserID]bool{}
	for _, series := range all {
		if seen[series.UserID] {
			continue
		}
		seen[series.UserID] = true

		days, err := s.prefs.RetentionDays(ctx, series.UserID)
		if err != nil || days <= 0 {
			days = s.retentionDays
		}
		loc := s.locationFor(ctx, series.UserID)
		cutoff := TodayIn(loc, now).AddDate(0, 0, -days)

		pruned, err := s.store.PruneTerminalOccurrences(ctx, series.UserID, cutoff)
		if err != nil {
			s.logger.Error("pruning failed", "user_id", series.UserID, "error", err)
			continue
		}
		if len(pruned) > 0 {
			s.bus.PublishDeleted(pruned)
			metrics.OccurrencesPruned.Add(float64(len(pruned)))
			s.logger.Info("pruned terminal occurrences",
				"count", len(pruned), "cutoff", cutoff.Format(time.DateOnly))
		}
	}
}

func (s *WindowScheduler) locationFor(ctx context.Context, user domain.UserID) *time.Location {
	tzID, err := s.prefs.Timezone(ctx, user)
	if err != nil || tzID == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tzID)
	if err != nil {
		return time.UTC
	}
	return loc
}
