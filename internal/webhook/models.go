package webhook

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the processing state of one received webhook delivery.
type EventStatus string

const (
	EventReceived  EventStatus = "RECEIVED"
	EventProcessed EventStatus = "PROCESSED"
	EventFailed    EventStatus = "FAILED"
)

// Event records one externally-triggered confirmation callback. The
// provider-supplied idempotency key is unique: redeliveries reuse the row. A
// FAILED event may be retried by a later delivery with the same key; an event
// is never left in RECEIVED once processing has finished either way.
type Event struct {
	ID             uuid.UUID
	IdempotencyKey string
	ApplicationID  uuid.UUID
	Payload        []byte
	Status         EventStatus
	ErrorMessage   *string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
