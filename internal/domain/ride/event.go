package ride

import (
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

// Event is one append-only row in the `ride_events` audit table. Events are
// never mutated after insertion; they are the race log customer support and
// analytics read.
type Event struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time

	// Foreign keys
	RideID string

	// Core payload
	Type  EventType
	Actor string // "customer:<id>", "driver:<id>" or "system"
	Data  map[string]any
}

var (
	ErrRideIDRequired = errors.New("ride id is required")
	ErrActorRequired  = errors.New("event actor is required")
	ErrEventDataNil   = errors.New("event data must not be nil")
)

// NewEvent constructs a new domain Event.
func NewEvent(rideID string, eventType EventType, actor string, eventData map[string]any) (*Event, error) {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if actor = strings.TrimSpace(actor); actor == "" {
		return nil, ErrActorRequired
	}
	if eventData == nil {
		return nil, ErrEventDataNil
	}

	return &Event{
		RideID:    rideID,
		Type:      eventType,
		Actor:     actor,
		Data:      cloneMap(eventData),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate performs basic invariants checks mirroring DB constraints.
func (event *Event) Validate() error {
	if event.RideID == "" {
		return ErrRideIDRequired
	}
	if !event.Type.Valid() {
		return ErrInvalidEventType
	}
	if event.Actor == "" {
		return ErrActorRequired
	}
	if event.Data == nil {
		return ErrEventDataNil
	}
	return nil
}

// DataJSON returns event.Data encoded as JSON.
func (event *Event) DataJSON() ([]byte, error) {
	if event.Data == nil {
		return nil, ErrEventDataNil
	}
	return json.Marshal(event.Data)
}

// cloneMap makes a shallow copy of a map[string]any.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	maps.Copy(dst, src)
	return dst
}
