package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cadehq/cadence/internal/core/domain"
)

// BroadcastChannel receives every lifecycle event regardless of series.
// The external calendar mirror subscribes here.
const BroadcastChannel = "*"

// EventBus fans lifecycle events out to subscribers keyed by series id.
// Publishing is fire-and-forget: a full subscriber channel drops the event
// rather than blocking the lifecycle path, so delivery is at-least-effort
// with no ordering guarantee. Consumers self-heal by resyncing from the
// store.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan domain.OccurrenceEvent
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan domain.OccurrenceEvent),
	}
}

// Subscribe returns a channel receiving events for one series, or for all
// series when key is BroadcastChannel. The returned func unsubscribes and
// closes the channel.
func (b *EventBus) Subscribe(key string) (<-chan domain.OccurrenceEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.OccurrenceEvent, 256) // buffer so publishers never block
	b.subs[key] = append(b.subs[key], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[key]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[key] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[key]) == 0 {
			delete(b.subs, key)
		}
	}

	return ch, unsub
}

// Publish delivers the event to the series' subscribers and to broadcast
// subscribers. Never blocks.
// PublishDeleted emits one deletion event per removed occurrence. Every
// path that deletes occurrences (regeneration, series cascade delete,
// retention pruning) reports the rows it removed through here so
// subscribers like the calendar mirror see deletions without waiting for
// a resync.
func (b *EventBus) PublishDeleted(occs []domain.Occurrence) {
	at := time.Now().UTC()
	for _, occ := range occs {
		b.Publish(domain.OccurrenceEvent{
			Type:         domain.EventOccurrenceDeleted,
			SeriesID:     occ.SeriesID,
			OccurrenceID: occ.ID,
			Date:         occ.Date,
			Status:       occ.Status,
			At:           at,
		})
	}
}

func (b *EventBus) Publish(e domain.OccurrenceEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range []string{string(e.SeriesID), BroadcastChannel} {
		for _, ch := range b.subs[key] {
			select {
			case ch <- e:
			default:
				b.logger.Warn("event bus channel full, dropping event",
					"series_id", e.SeriesID, "type", e.Type)
			}
		}
	}
}
