package ride

import (
	"errors"
	"strings"
)

// EventType corresponds to the values stored in the `ride_events` table.
type EventType string

const (
	EventRideRequested      EventType = "RIDE_REQUESTED"
	EventOffersBroadcast    EventType = "OFFERS_BROADCAST"
	EventDriverAssigned     EventType = "DRIVER_ASSIGNED"
	EventDriverArrived      EventType = "DRIVER_ARRIVED"
	EventRideStarted        EventType = "RIDE_STARTED"
	EventRideCompleted      EventType = "RIDE_COMPLETED"
	EventRideCancelled      EventType = "RIDE_CANCELLED"
	EventNoDriversAvailable EventType = "NO_DRIVERS_AVAILABLE"
	EventBatchExpired       EventType = "BATCH_EXPIRED"
)

var ErrInvalidEventType = errors.New("invalid ride event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventRideRequested,
		EventOffersBroadcast,
		EventDriverAssigned,
		EventDriverArrived,
		EventRideStarted,
		EventRideCompleted,
		EventRideCancelled,
		EventNoDriversAvailable,
		EventBatchExpired:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}
