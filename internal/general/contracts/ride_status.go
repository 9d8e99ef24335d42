package contracts

import "time"

// RideStatusMessage is published on every ride state transition.
// Routing key: "ride.status.{status}" on ExchangeRideTopic.
type RideStatusMessage struct {
	RideID     string    `json:"ride_id"`
	RideNumber string    `json:"ride_number,omitempty"`
	Status     string    `json:"status"` // SEARCHING|ASSIGNED|ARRIVED|IN_PROGRESS|COMPLETED|CANCELLED|NO_DRIVERS_AVAILABLE
	DriverID   string    `json:"driver_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}
