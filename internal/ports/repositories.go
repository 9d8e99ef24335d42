package ports

import (
	"context"
	"errors"
	"time"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
)

// ErrNotFound is returned by repositories when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// UnitOfWork coordinates transactional execution across repositories.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideRepository persists rides. All status-changing methods are conditional
// updates: they report (false, nil) when the ride was not in an eligible
// state, so callers can distinguish a lost race from a storage failure
// without ever doing read-then-write.
type RideRepository interface {
	Create(ctx context.Context, r *ride.Ride) error
	GetByID(ctx context.Context, id string) (*ride.Ride, error)
	// StatusForUpdate reads the ride status under a row lock, serializing
	// the caller's transaction against concurrent status transitions.
	StatusForUpdate(ctx context.Context, rideID string) (ride.Status, error)
	ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error)

	// AssignDriver moves SEARCHING -> ASSIGNED and sets the driver in one
	// conditional update.
	AssignDriver(ctx context.Context, rideID, driverID string, at time.Time) (bool, error)
	// MarkNoDriversAvailable moves SEARCHING -> NO_DRIVERS_AVAILABLE.
	MarkNoDriversAvailable(ctx context.Context, rideID string, at time.Time) (bool, error)
	// Cancel moves SEARCHING/ASSIGNED/ARRIVED -> CANCELLED.
	Cancel(ctx context.Context, rideID, reason string, at time.Time) (bool, error)
	// UpdateStatus performs a generic from -> to conditional transition for
	// the post-assignment lifecycle (ARRIVED, IN_PROGRESS, COMPLETED).
	UpdateStatus(ctx context.Context, rideID string, from, to ride.Status, at time.Time) (bool, error)
}

// OfferRepository persists the append-only offer history. Rows are only ever
// status-transitioned, never deleted.
type OfferRepository interface {
	CreateBatch(ctx context.Context, offers []*offer.Offer) error
	GetByID(ctx context.Context, id string) (*offer.Offer, error)
	ListByRide(ctx context.Context, rideID string) ([]*offer.Offer, error)
	// OfferedDriverIDs returns every driver ever offered this ride, for
	// batch-exclusion monotonicity.
	OfferedDriverIDs(ctx context.Context, rideID string) ([]string, error)
	MaxBatchNumber(ctx context.Context, rideID string) (int, error)

	// AcceptPending is the arbitration primitive: a single conditional update
	// that succeeds only while the offer is PENDING, unexpired, and the
	// parent ride is still SEARCHING. The affected-row count decides the
	// race.
	AcceptPending(ctx context.Context, offerID, driverID string, now time.Time) (bool, error)
	RejectPending(ctx context.Context, offerID, driverID string, now time.Time) (bool, error)
	// SupersedePending settles every other PENDING offer for the ride and
	// returns the affected driver ids so the losers can be notified.
	SupersedePending(ctx context.Context, rideID, winningOfferID string, now time.Time) ([]string, error)
	// ExpirePending expires all PENDING offers for the ride (window elapsed
	// or ride cancelled) and returns the affected driver ids.
	ExpirePending(ctx context.Context, rideID string, now time.Time) ([]string, error)
}

// AvailabilityRepository persists driver dispatchability. Writes are
// single-writer per driver except Hold, which participates in the accept race
// and is therefore conditional.
type AvailabilityRepository interface {
	Upsert(ctx context.Context, a *driver.Availability) error
	GetByID(ctx context.Context, driverID string) (*driver.Availability, error)
	SetOnline(ctx context.Context, driverID string, loc geo.Point, at time.Time) error
	SetOffline(ctx context.Context, driverID string, at time.Time) error
	UpdateLocation(ctx context.Context, driverID string, loc geo.Point, at time.Time) error
	// Touch stamps last_seen_at; a driver with no availability row yet is a
	// no-op, not an error.
	Touch(ctx context.Context, driverID string, at time.Time) error
	// Hold flips is_available off; reports false when the driver was not available.
	Hold(ctx context.Context, driverID string, at time.Time) (bool, error)
	Release(ctx context.Context, driverID string, at time.Time) error
	// FindAvailable filters candidate ids down to online, available,
	// vehicle-compatible drivers not present in exclude.
	FindAvailable(ctx context.Context, candidateIDs []string, vt ride.VehicleType, exclude []string) ([]driver.Availability, error)
}

// RideEventRepository appends to the ride_events audit table.
type RideEventRepository interface {
	Append(ctx context.Context, e *ride.Event) error
	ListByRide(ctx context.Context, rideID string) ([]*ride.Event, error)
}

// GeoIndex is the geospatial collaborator boundary: a radius query over
// driver last-known locations.
type GeoIndex interface {
	Upsert(ctx context.Context, driverID string, loc geo.Point) error
	Remove(ctx context.Context, driverID string) error
	Nearby(ctx context.Context, center geo.Point, radiusKM float64, limit int) ([]string, error)
}

// FareEstimator is the pricing collaborator boundary, called once before
// dispatch begins.
type FareEstimator interface {
	EstimateFare(ctx context.Context, vt ride.VehicleType, pickup, dropoff geo.Point) (float64, error)
}

// ConnectionRegistry is the live-session surface the dispatch engine pushes
// through. Send to a user with no live connection is a normal non-delivery.
type ConnectionRegistry interface {
	IsOnline(userID string) bool
	Send(userID, event string, payload any) bool
}

// MessagePublisher publishes post-commit messages to the broker,
// fire-and-forget from the dispatch critical path.
type MessagePublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// LocationFeed streams driver location pings to the analytics pipeline.
type LocationFeed interface {
	PublishPing(ctx context.Context, driverID string, loc geo.Point, at time.Time) error
}
