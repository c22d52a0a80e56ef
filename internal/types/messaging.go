package types

import (
	"encoding/json"
	"time"
)

// ReadingMessage is the SQS payload delivered by the ingestion collaborator
// to the reading worker. JSON tags use snake_case to match the ingestion
// contract.
type ReadingMessage struct {
	UnitID      string    `json:"unit_id"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`

	// Observability
	TraceID string `json:"trace_id,omitempty"`
}

// AlertEventMessage is the SQS envelope carrying a lifecycle transition from
// the lifecycle manager to the notification workers.
//
// RetryCount carries retry state across the SQS publish-subscribe cycle: it
// is incremented by the publisher on transient failures before re-publishing,
// so the next consumer sees an accurate attempt number.
type AlertEventMessage struct {
	Event       AlertEvent  `json:"event"`
	Channel     ChannelType `json:"channel,omitempty"`
	Destination string      `json:"destination,omitempty"`
	ContactID   string      `json:"contact_id,omitempty"`
	RetryCount  int         `json:"retry_count"`
	TraceID     string      `json:"trace_id,omitempty"`
}

// EventEnvelope is the standard wrapper for events emitted to the realtime
// push collaborator for downstream fan-out to connected clients.
type EventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"` // Dot-namespaced (e.g., "alert.triggered")
	Timestamp time.Time       `json:"timestamp"`  // ISO 8601 UTC
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}
