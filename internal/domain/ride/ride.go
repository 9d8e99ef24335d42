package ride

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
)

// Ride is the domain entity corresponding to the `rides` table. It is created
// by the booking flow in SEARCHING and mutated exclusively through the
// transition methods below; every other component only proposes transitions.
type Ride struct {
	// Identity & audit
	ID         string
	RideNumber string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Actors
	CustomerID       string
	AssignedDriverID *string // nil until the accept race settles

	// Core state
	VehicleType VehicleType
	Status      Status

	// Trip
	Pickup        geo.Point
	Dropoff       geo.Point
	EstimatedFare float64

	// Lifecycle timestamps
	AssignedAt  *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancellationReason *string
}

var (
	ErrCustomerRequired   = errors.New("customer id is required")
	ErrRideNumberRequired = errors.New("ride number is required")
	ErrDriverRequired     = errors.New("driver id is required")
	ErrInvalidTransition  = errors.New("invalid ride status transition")
	ErrAlreadyAssigned    = errors.New("driver already assigned")
	ErrNoDriverAssigned   = errors.New("no driver assigned")
)

// NewRide creates a new ride in SEARCHING state.
func NewRide(id, rideNumber, customerID string, vt VehicleType, pickup, dropoff geo.Point, estimatedFare float64) (*Ride, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, errors.New("ride id is required")
	}
	if rideNumber = strings.TrimSpace(rideNumber); rideNumber == "" {
		return nil, ErrRideNumberRequired
	}
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if !vt.Valid() {
		return nil, ErrInvalidVehicleType
	}

	now := time.Now().UTC()
	return &Ride{
		ID:            id,
		RideNumber:    rideNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
		CustomerID:    customerID,
		VehicleType:   vt,
		Status:        StatusSearching,
		Pickup:        pickup,
		Dropoff:       dropoff,
		EstimatedFare: estimatedFare,
	}, nil
}

// Assign sets the winning driver and moves SEARCHING -> ASSIGNED.
func (ride *Ride) Assign(driverID string) error {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return ErrDriverRequired
	}
	if ride.Status == StatusAssigned {
		return ErrAlreadyAssigned
	}
	if !ride.Status.CanTransitionTo(StatusAssigned) {
		return ErrInvalidTransition
	}
	if ride.AssignedDriverID != nil && *ride.AssignedDriverID != "" {
		return ErrAlreadyAssigned
	}

	now := time.Now().UTC()
	ride.AssignedDriverID = &driverID
	ride.AssignedAt = &now
	ride.setStatus(StatusAssigned)
	return nil
}

// MarkArrived transitions ASSIGNED -> ARRIVED.
func (ride *Ride) MarkArrived() error {
	if ride.AssignedDriverID == nil || *ride.AssignedDriverID == "" {
		return ErrNoDriverAssigned
	}
	if !ride.Status.CanTransitionTo(StatusArrived) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	ride.ArrivedAt = &now
	ride.setStatus(StatusArrived)
	return nil
}

// Start transitions ARRIVED -> IN_PROGRESS.
func (ride *Ride) Start() error {
	if ride.AssignedDriverID == nil || *ride.AssignedDriverID == "" {
		return ErrNoDriverAssigned
	}
	if !ride.Status.CanTransitionTo(StatusInProgress) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	ride.StartedAt = &now
	ride.setStatus(StatusInProgress)
	return nil
}

// Complete transitions IN_PROGRESS -> COMPLETED.
func (ride *Ride) Complete() error {
	if !ride.Status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	ride.CompletedAt = &now
	ride.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions SEARCHING/ASSIGNED/ARRIVED -> CANCELLED.
func (ride *Ride) Cancel(reason string) error {
	if !ride.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	ride.CancelledAt = &now
	if rs := strings.TrimSpace(reason); rs != "" {
		ride.CancellationReason = &rs
	}
	ride.setStatus(StatusCancelled)
	return nil
}

// MarkNoDriversAvailable transitions SEARCHING -> NO_DRIVERS_AVAILABLE on exhaustion.
func (ride *Ride) MarkNoDriversAvailable() error {
	if !ride.Status.CanTransitionTo(StatusNoDriversAvailable) {
		return ErrInvalidTransition
	}
	ride.setStatus(StatusNoDriversAvailable)
	return nil
}

// Validate checks the driver-assignment invariant: AssignedDriverID is
// non-nil iff the status requires a driver.
func (ride *Ride) Validate() error {
	hasDriver := ride.AssignedDriverID != nil && *ride.AssignedDriverID != ""
	if ride.Status.RequiresDriver() && !hasDriver {
		return ErrNoDriverAssigned
	}
	if !ride.Status.RequiresDriver() && ride.Status != StatusCancelled && hasDriver {
		// a cancelled ride may keep its driver for audit; everything else must not
		return ErrAlreadyAssigned
	}
	return nil
}

// ----- internal helpers -----

func (ride *Ride) setStatus(status Status) {
	ride.Status = status
	ride.touch()
}

func (ride *Ride) touch() {
	ride.UpdatedAt = time.Now().UTC()
}
