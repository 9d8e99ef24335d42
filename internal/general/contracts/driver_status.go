package contracts

import "time"

// DriverStatusMessage is published when a driver goes online or offline.
// Routing key: "driver.status.{driver_id}" on ExchangeDriverTopic.
type DriverStatusMessage struct {
	DriverID  string    `json:"driver_id"`
	Online    bool      `json:"online"`
	Location  *GeoPoint `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
