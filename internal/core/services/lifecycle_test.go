package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
)

func newTestLifecycle(store ports.Store) (*LifecycleController, *EventBus) {
	logger := testLogger()
	bus := NewEventBus(logger)
	m := NewMaterializer(logger, store, newStaticPrefs(), bus)
	return NewLifecycleController(logger, store, m, bus), bus
}

func seedOccurrence(t *testing.T, store *memStore, seriesID domain.SeriesID, date time.Time) domain.Occurrence {
	t.Helper()
	occ, created, err := store.InsertIfAbsent(context.Background(), domain.Occurrence{
		ID:        domain.OccurrenceID("occ-" + date.Format(time.DateOnly)),
		SeriesID:  seriesID,
		Date:      date,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return occ
}

func TestLifecycle_CompleteSetsStamp(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return now }

	occ := seedOccurrence(t, store, "s1", domain.Date(2026, time.April, 1))

	out, err := lc.Complete(context.Background(), occ.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	require.NotNil(t, out.CompletedAt)
	assert.True(t, out.CompletedAt.Equal(now))
}

func TestLifecycle_ToggleSymmetry(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	occ := seedOccurrence(t, store, "s1", domain.Date(2026, time.April, 1))

	_, err := lc.Complete(context.Background(), occ.ID)
	require.NoError(t, err)
	out, err := lc.Uncomplete(context.Background(), occ.ID)
	require.NoError(t, err)

	// Status and completion stamp both revert.
	assert.Equal(t, domain.StatusPending, out.Status)
	assert.Nil(t, out.CompletedAt)

	stored, err := store.GetOccurrence(context.Background(), occ.ID)
	require.NoError(t, err)
	assert.Equal(t, occ.Status, stored.Status)
	assert.Nil(t, stored.CompletedAt)
}

func TestLifecycle_SkipClearsCompletion(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	occ := seedOccurrence(t, store, "s1", domain.Date(2026, time.April, 2))
	_, err := lc.Complete(context.Background(), occ.ID)
	require.NoError(t, err)

	// Completed and skipped are mutually exclusive: skipping clears the
	// completion stamp.
	out, err := lc.Skip(context.Background(), occ.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSkipped, out.Status)
	assert.Nil(t, out.CompletedAt)
}

func TestLifecycle_UnskipReturnsToPending(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	occ := seedOccurrence(t, store, "s1", domain.Date(2026, time.April, 3))
	_, err := lc.Skip(context.Background(), occ.ID)
	require.NoError(t, err)

	out, err := lc.Unskip(context.Background(), occ.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, out.Status)
}

func TestLifecycle_CompleteFromSkipped(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	occ := seedOccurrence(t, store, "s1", domain.Date(2026, time.April, 4))
	_, err := lc.Skip(context.Background(), occ.ID)
	require.NoError(t, err)

	out, err := lc.Complete(context.Background(), occ.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, out.Status)
	assert.NotNil(t, out.CompletedAt)
}

func TestLifecycle_NotFound(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	_, err := lc.Complete(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrOccurrenceNotFound)
	_, err = lc.Skip(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrOccurrenceNotFound)
}

func TestLifecycle_GetOrCreateForDateIsStable(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	series := dailySeries("s1", "u1", domain.Date(2026, time.January, 1))
	require.NoError(t, store.UpsertSeries(context.Background(), series))

	// A date far outside any materialized window.
	date := domain.Date(2027, time.June, 15)
	first, err := lc.GetOrCreateForDate(context.Background(), "s1", date)
	require.NoError(t, err)
	second, err := lc.GetOrCreateForDate(context.Background(), "s1", date)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "repeated get-or-create must return the same occurrence")
	occs, _ := store.ListOccurrences(context.Background(), ports.OccurrenceQuery{SeriesID: "s1", Status: ports.FilterAll})
	assert.Len(t, occs, 1)
}

func TestLifecycle_GetOrCreateUnknownSeries(t *testing.T) {
	store := newMemStore()
	lc, _ := newTestLifecycle(store)

	_, err := lc.GetOrCreateForDate(context.Background(), "ghost", domain.Date(2026, time.May, 1))
	assert.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

func TestLifecycle_TransitionsPublishEvents(t *testing.T) {
	store := newMemStore()
	lc, bus := newTestLifecycle(store)

	occ := seedOccurrence(t, store, "s1", domain.Date(2026, time.April, 5))

	ch, unsub := bus.Subscribe("s1")
	defer unsub()

	_, err := lc.Complete(context.Background(), occ.ID)
	require.NoError(t, err)

	select {
	case evt := <-ch:
		assert.Equal(t, domain.EventOccurrenceCompleted, evt.Type)
		assert.Equal(t, occ.ID, evt.OccurrenceID)
		assert.Equal(t, domain.StatusCompleted, evt.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lifecycle event")
	}
}
