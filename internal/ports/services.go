package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
)

// ----- DTOs for the dispatch service -----

// CreateRideInput is the validated input required to create a ride.
type CreateRideInput struct {
	CustomerID  string
	Pickup      geo.Point
	Dropoff     geo.Point
	VehicleType ride.VehicleType
}

// CreateRideResult is returned by DispatchService.CreateRide.
type CreateRideResult struct {
	RideID              string  `json:"ride_id"`
	RideNumber          string  `json:"ride_number"`
	Status              string  `json:"status"`
	EstimatedFare       float64 `json:"estimated_fare"`
	EstimatedDistanceKM float64 `json:"estimated_distance_km"`
}

// CancelRideResult is returned by DispatchService.CancelRide.
type CancelRideResult struct {
	RideID      string `json:"ride_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

// AcceptOutcome classifies the result of a driver's accept attempt. Losing
// the race is a frequent, expected outcome and is returned as a value, never
// as an error.
type AcceptOutcome string

const (
	AcceptWon              AcceptOutcome = "WON"
	AcceptLostRace         AcceptOutcome = "LOST_RACE"
	AcceptOfferExpired     AcceptOutcome = "OFFER_EXPIRED"
	AcceptRideNotSearching AcceptOutcome = "RIDE_NOT_SEARCHING"
)

// AcceptResult is returned by DispatchService.AcceptOffer.
type AcceptResult struct {
	Outcome  AcceptOutcome `json:"outcome"`
	OfferID  string        `json:"offer_id"`
	RideID   string        `json:"ride_id"`
	DriverID string        `json:"driver_id"`
}

// Won reports whether the caller is the winning driver.
func (r AcceptResult) Won() bool { return r.Outcome == AcceptWon }

// Candidate is one ranked entry in a dispatch batch.
type Candidate struct {
	DriverID   string
	DistanceKM float64
	Rating     float64
	Idle       time.Duration
	Score      float64
}

// ----- Dispatch service interface -----

// DispatchService is the engine boundary: ride creation, the accept race, the
// post-assignment lifecycle, and the audit query surface.
type DispatchService interface {
	CreateRide(ctx context.Context, in CreateRideInput) (CreateRideResult, error)
	CancelRide(ctx context.Context, rideID, actor, reason string) (CancelRideResult, error)

	AcceptOffer(ctx context.Context, offerID, driverID string) (AcceptResult, error)
	RejectOffer(ctx context.Context, offerID, driverID, reason string) error

	MarkArrived(ctx context.Context, rideID, driverID string) error
	StartRide(ctx context.Context, rideID, driverID string) error
	CompleteRide(ctx context.Context, rideID, driverID string) error

	GetRide(ctx context.Context, rideID string) (*ride.Ride, error)
	GetOfferHistory(ctx context.Context, rideID string) ([]*offer.Offer, error)

	// RecoverInFlight resumes dispatch loops for rides left SEARCHING by a
	// previous process, then returns.
	RecoverInFlight(ctx context.Context) error
}

// ----- Driver availability service -----

// DriverService owns the driver-side availability surface. GoOnline
// registers a first-time driver with the given vehicle type.
type DriverService interface {
	GoOnline(ctx context.Context, driverID string, loc geo.Point, vt ride.VehicleType) error
	GoOffline(ctx context.Context, driverID string) error
	UpdateLocation(ctx context.Context, driverID string, loc geo.Point) error
	// Heartbeat stamps the driver's last_seen_at, e.g. when their WebSocket
	// connects. Drivers that never went online are a no-op.
	Heartbeat(ctx context.Context, driverID string) error
}
