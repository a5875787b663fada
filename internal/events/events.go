// Package events publishes post-commit notifications about registry and
// ledger changes. Publishing happens after the write is durable, so a
// publish failure never undoes a write.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeRecordAppended     = "record.appended"
	TypeProviderAuthorized = "provider.authorized"
	TypeStoreInitialized   = "store.initialized"
)

// Event describes a committed change. Record contents are deliberately not
// carried; consumers read them through the query API.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	PatientID  string    `json:"patient_id,omitempty"`
	RecordID   uint64    `json:"record_id,omitempty"`
	Provider   string    `json:"provider,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New creates an event with a fresh ID.
func New(eventType, actor string, occurredAt time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Actor:      actor,
	}
}

// Body returns the JSON encoding of the event.
func (e Event) Body() ([]byte, error) {
	return json.Marshal(e)
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
