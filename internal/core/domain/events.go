package domain

import "time"

// EventType classifies a lifecycle event on an occurrence
type EventType string

const (
	EventOccurrenceCreated     EventType = "occurrence_created"
	EventOccurrenceDeleted     EventType = "occurrence_deleted"
	EventOccurrenceCompleted   EventType = "occurrence_completed"
	EventOccurrenceUncompleted EventType = "occurrence_uncompleted"
	EventOccurrenceSkipped     EventType = "occurrence_skipped"
	EventOccurrenceUnskipped   EventType = "occurrence_unskipped"
)

// OccurrenceEvent is published on every creation, deletion and status
// transition. Delivery is fire-and-forget with no ordering guarantee;
// consumers (the external calendar mirror) are expected to self-heal by
// resyncing from the store.
type OccurrenceEvent struct {
	Type         EventType        `json:"type"`
	SeriesID     SeriesID         `json:"series_id"`
	OccurrenceID OccurrenceID     `json:"occurrence_id"`
	Date         time.Time        `json:"date"`
	Status       OccurrenceStatus `json:"status"`
	At           time.Time        `json:"at"`
}
