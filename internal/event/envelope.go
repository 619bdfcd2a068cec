package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePositionOpened
	EventTypePriceUpdated
	EventTypeLiquidationTriggered
	EventTypeSnapshotFrozen
	EventTypeLiquidationExecuted
	EventTypePositionSettled
	EventTypePositionClosed
)

func (et EventType) String() string {
	switch et {
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypePriceUpdated:
		return "PriceUpdated"
	case EventTypeLiquidationTriggered:
		return "LiquidationTriggered"
	case EventTypeSnapshotFrozen:
		return "SnapshotFrozen"
	case EventTypeLiquidationExecuted:
		return "LiquidationExecuted"
	case EventTypePositionSettled:
		return "PositionSettled"
	case EventTypePositionClosed:
		return "PositionClosed"
	default:
		return "Unknown"
	}
}

// Event is the interface all outbound payloads implement
type Event interface {
	// IdempotencyKey returns the stable dedup key for downstream consumers
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PositionID returns the position this event concerns
	PositionID() uuid.UUID
}

// Envelope wraps every event published to the outbound stream
type Envelope struct {
	Sequence       int64     `json:"sequence"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	PositionID     uuid.UUID `json:"position_id"`
	Timestamp      time.Time `json:"timestamp"`
	Payload        any       `json:"payload"`
}
