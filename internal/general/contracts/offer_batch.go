package contracts

import "time"

// OfferBatchMessage is published once per broadcast batch so external
// consumers (notification fallbacks, analytics) see the same offers the
// connection registry fanned out.
// Routing key: "ride.offers.{ride_id}" on ExchangeRideTopic.
type OfferBatchMessage struct {
	RideID      string    `json:"ride_id"`
	RideNumber  string    `json:"ride_number,omitempty"`
	BatchNumber int       `json:"batch_number"`
	VehicleType string    `json:"vehicle_type"`
	Pickup      GeoPoint  `json:"pickup_location"`
	DriverIDs   []string  `json:"driver_ids"`
	ExpiresAt   time.Time `json:"expires_at"`
	Envelope
}
