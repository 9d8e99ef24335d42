package contracts

import "time"

// WebSocket event names pushed through the connection registry.
const (
	EventRideOffer        = "ride:request:new"
	EventOfferCancelled   = "ride:request:cancelled"
	EventDriverAssigned   = "ride:driver:assigned"
	EventNoDriversFound   = "ride:status:no_drivers_available"
	EventRideStatusUpdate = "ride:status:update"
)

// Cancellation reasons carried by EventOfferCancelled.
const (
	ReasonAcceptedByAnother = "accepted_by_another_driver"
	ReasonOfferExpired      = "offer_expired"
	ReasonRideCancelled     = "ride_cancelled"
)

// WSRideOffer mirrors EventRideOffer sent to one candidate driver.
type WSRideOffer struct {
	OfferID            string   `json:"offer_id"`
	RideID             string   `json:"ride_id"`
	RideNumber         string   `json:"ride_number,omitempty"`
	Pickup             GeoPoint `json:"pickup_location"`
	Dropoff            GeoPoint `json:"dropoff_location"`
	EstimatedFare      float64  `json:"estimated_fare,omitempty"`
	DistanceToPickupKM float64  `json:"distance_to_pickup_km,omitempty"`
	ExpiresAt          string   `json:"expires_at"` // ISO-8601
	BatchNumber        int      `json:"batch_number,omitempty"`
	Envelope
}

// WSOfferCancelled mirrors EventOfferCancelled sent to losing or
// no-longer-relevant candidates.
type WSOfferCancelled struct {
	RideID string `json:"ride_id"`
	Reason string `json:"reason"`
	Envelope
}

// WSDriverAssigned mirrors EventDriverAssigned sent to the customer.
type WSDriverAssigned struct {
	RideID       string  `json:"ride_id"`
	DriverID     string  `json:"driver_id"`
	ETAMinutes   int     `json:"eta_minutes,omitempty"`
	DriverRating float64 `json:"driver_rating,omitempty"`
	Envelope
}

// WSNoDriversAvailable mirrors EventNoDriversFound sent to the customer when
// the candidate pool is exhausted.
type WSNoDriversAvailable struct {
	RideID string `json:"ride_id"`
	Envelope
}

// WSRideStatus mirrors EventRideStatusUpdate for the post-assignment
// lifecycle (arrived, started, completed, cancelled).
type WSRideStatus struct {
	RideID    string    `json:"ride_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
