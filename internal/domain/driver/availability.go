package driver

import (
	"errors"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
)

// Availability is the current dispatchability of a driver, corresponding to
// the `driver_availability` table. It is single-writer per key: the driver's
// own pings flip location/online, the ride lifecycle flips is_available.
// An unavailable driver must never appear in a candidate batch.
type Availability struct {
	DriverID    string
	VehicleType ride.VehicleType
	Rating      float64

	IsOnline    bool
	IsAvailable bool

	LastKnownLocation geo.Point
	LastSeenAt        time.Time

	// AvailableSince anchors idle time for candidate ranking; reset every
	// time the driver becomes available again.
	AvailableSince time.Time

	UpdatedAt time.Time
}

var (
	ErrDriverIDRequired = errors.New("driver id is required")
	ErrInvalidRating    = errors.New("rating must be between 1.0 and 5.0")
)

// NewAvailability creates an offline, unavailable record for a driver.
func NewAvailability(driverID string, vt ride.VehicleType, rating float64) (*Availability, error) {
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverIDRequired
	}
	if !vt.Valid() {
		return nil, ride.ErrInvalidVehicleType
	}
	if rating < 1.0 || rating > 5.0 {
		return nil, ErrInvalidRating
	}

	now := time.Now().UTC()
	return &Availability{
		DriverID:    driverID,
		VehicleType: vt,
		Rating:      rating,
		UpdatedAt:   now,
	}, nil
}

// GoOnline marks the driver online and dispatchable at the given location.
func (a *Availability) GoOnline(loc geo.Point) {
	now := time.Now().UTC()
	a.IsOnline = true
	a.IsAvailable = true
	a.LastKnownLocation = loc
	a.LastSeenAt = now
	a.AvailableSince = now
	a.touch()
}

// GoOffline removes the driver from dispatch entirely.
func (a *Availability) GoOffline() {
	a.IsOnline = false
	a.IsAvailable = false
	a.touch()
}

// Ping records a location heartbeat from the driver's client.
func (a *Availability) Ping(loc geo.Point) {
	a.LastKnownLocation = loc
	a.LastSeenAt = time.Now().UTC()
	a.touch()
}

// Hold flips is_available off when the driver wins a ride.
func (a *Availability) Hold() {
	a.IsAvailable = false
	a.touch()
}

// Release flips is_available back on when the held ride settles.
func (a *Availability) Release() {
	if !a.IsOnline {
		return
	}
	a.IsAvailable = true
	a.AvailableSince = time.Now().UTC()
	a.touch()
}

// IdleSince returns how long the driver has been dispatchable at the given instant.
func (a *Availability) IdleSince(now time.Time) time.Duration {
	if !a.IsAvailable || a.AvailableSince.IsZero() {
		return 0
	}
	d := now.Sub(a.AvailableSince)
	if d < 0 {
		return 0
	}
	return d
}

func (a *Availability) touch() {
	a.UpdatedAt = time.Now().UTC()
}
