package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
	"github.com/cadehq/cadence/internal/core/ports"
)

// memStore is an in-memory ports.Store with the same uniqueness semantics
// as the DuckDB adapter, used to keep the service tests hermetic.
type memStore struct {
	mu          sync.Mutex
	series      map[domain.SeriesID]domain.Series
	occurrences map[domain.OccurrenceID]domain.Occurrence
	byDate      map[string]domain.OccurrenceID
}

func newMemStore() *memStore {
	return &memStore{
		series:      make(map[domain.SeriesID]domain.Series),
		occurrences: make(map[domain.OccurrenceID]domain.Occurrence),
		byDate:      make(map[string]domain.OccurrenceID),
	}
}

func dateKey(id domain.SeriesID, date time.Time) string {
	return string(id) + "|" + date.Format(time.DateOnly)
}

func (m *memStore) InsertIfAbsent(_ context.Context, occ domain.Occurrence) (domain.Occurrence, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dateKey(occ.SeriesID, occ.Date)
	if existing, ok := m.byDate[key]; ok {
		return m.occurrences[existing], false, nil
	}
	m.occurrences[occ.ID] = occ
	m.byDate[key] = occ.ID
	return occ, true, nil
}

func (m *memStore) GetOccurrence(_ context.Context, id domain.OccurrenceID) (domain.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, ok := m.occurrences[id]
	if !ok {
		return domain.Occurrence{}, domain.ErrOccurrenceNotFound
	}
	return occ, nil
}

func (m *memStore) ListOccurrences(_ context.Context, q ports.OccurrenceQuery) ([]domain.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Occurrence
	for _, occ := range m.occurrences {
		if q.SeriesID != "" && occ.SeriesID != q.SeriesID {
			continue
		}
		if q.UserID != "" {
			s, ok := m.series[occ.SeriesID]
			if !ok || s.UserID != q.UserID {
				continue
			}
		}
		if !q.From.IsZero() && occ.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && occ.Date.After(q.To) {
			continue
		}
		switch q.Status {
		case ports.FilterAll:
		case ports.FilterCompleted:
			if occ.Status != domain.StatusCompleted {
				continue
			}
		case ports.FilterSkipped:
			if occ.Status != domain.StatusSkipped {
				continue
			}
		default:
			if occ.Status != domain.StatusPending {
				continue
			}
		}
		out = append(out, occ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) UpdateOccurrenceStatus(_ context.Context, id domain.OccurrenceID, status domain.OccurrenceStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, ok := m.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	occ.Status = status
	occ.CompletedAt = completedAt
	m.occurrences[id] = occ
	return nil
}

func (m *memStore) DeletePendingOccurrences(_ context.Context, id domain.SeriesID) ([]domain.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []domain.Occurrence
	for oid, occ := range m.occurrences {
		if occ.SeriesID == id && occ.Status == domain.StatusPending {
			deleted = append(deleted, occ)
			delete(m.occurrences, oid)
			delete(m.byDate, dateKey(occ.SeriesID, occ.Date))
		}
	}
	return deleted, nil
}

func (m *memStore) PruneTerminalOccurrences(_ context.Context, user domain.UserID, before time.Time) ([]domain.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned []domain.Occurrence
	for oid, occ := range m.occurrences {
		s, ok := m.series[occ.SeriesID]
		if !ok || s.UserID != user {
			continue
		}
		if occ.Terminal() && occ.Date.Before(before) {
			pruned = append(pruned, occ)
			delete(m.occurrences, oid)
			delete(m.byDate, dateKey(occ.SeriesID, occ.Date))
		}
	}
	return pruned, nil
}

func (m *memStore) UpsertSeries(_ context.Context, s domain.Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[s.ID] = s
	return nil
}

func (m *memStore) GetSeries(_ context.Context, id domain.SeriesID) (domain.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[id]
	if !ok {
		return domain.Series{}, domain.ErrSeriesNotFound
	}
	return s, nil
}

func (m *memStore) ListActiveSeries(_ context.Context) ([]domain.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Series
	for _, s := range m.series {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteSeries(_ context.Context, id domain.SeriesID) ([]domain.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.series, id)
	var cascaded []domain.Occurrence
	for oid, occ := range m.occurrences {
		if occ.SeriesID == id {
			cascaded = append(cascaded, occ)
			delete(m.occurrences, oid)
			delete(m.byDate, dateKey(occ.SeriesID, occ.Date))
		}
	}
	return cascaded, nil
}

// staticPrefs is a PreferenceSource with fixed answers per user.
type staticPrefs struct {
	tz        map[domain.UserID]string
	retention map[domain.UserID]int
}

func newStaticPrefs() *staticPrefs {
	return &staticPrefs{tz: map[domain.UserID]string{}, retention: map[domain.UserID]int{}}
}

func (p *staticPrefs) Timezone(_ context.Context, user domain.UserID) (string, error) {
	if tz, ok := p.tz[user]; ok {
		return tz, nil
	}
	return "UTC", nil
}

func (p *staticPrefs) RetentionDays(_ context.Context, user domain.UserID) (int, error) {
	if d, ok := p.retention[user]; ok {
		return d, nil
	}
	return 90, nil
}
