package contracts

import "time"

// DriverResponseMessage records a driver's answer to an offer.
// Routing key: "driver.response.{ride_id}" on ExchangeDriverTopic.
type DriverResponseMessage struct {
	RideID    string    `json:"ride_id"`
	OfferID   string    `json:"offer_id"`
	DriverID  string    `json:"driver_id"`
	Outcome   string    `json:"outcome"` // WON|LOST_RACE|OFFER_EXPIRED|RIDE_NOT_SEARCHING|REJECTED
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
