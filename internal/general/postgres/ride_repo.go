package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// RideRepo persists rides using pgx and plain SQL. Status-changing methods
// are conditional updates whose affected-row count tells the caller whether
// the transition happened, so the accept/cancel race never relies on
// read-then-write in application code.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

const rideColumns = `
	id, ride_number, customer_id, assigned_driver_id, vehicle_type, status,
	pickup_latitude, pickup_longitude, pickup_address,
	dropoff_latitude, dropoff_longitude, dropoff_address,
	estimated_fare, cancellation_reason,
	created_at, updated_at, assigned_at, arrived_at, started_at, completed_at, cancelled_at`

// Create inserts a new ride row in SEARCHING state.
func (repo *RideRepo) Create(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rides (
			id, ride_number, customer_id, vehicle_type, status,
			pickup_latitude, pickup_longitude, pickup_address,
			dropoff_latitude, dropoff_longitude, dropoff_address,
			estimated_fare, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`,
		r.ID,
		r.RideNumber,
		r.CustomerID,
		r.VehicleType.String(),
		r.Status.String(),
		r.Pickup.Latitude, r.Pickup.Longitude, r.Pickup.Address,
		r.Dropoff.Latitude, r.Dropoff.Longitude, r.Dropoff.Address,
		r.EstimatedFare,
		r.CreatedAt,
	)
	return err
}

// GetByID fetches a ride by primary key.
func (repo *RideRepo) GetByID(ctx context.Context, id string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT`+rideColumns+` FROM rides WHERE id = $1`, id)
	out, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return out, err
}

// StatusForUpdate reads the ride status under a row lock, so the caller's
// transaction serializes against concurrent status transitions.
func (repo *RideRepo) StatusForUpdate(ctx context.Context, rideID string) (ride.Status, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return "", err
	}

	var status ride.Status
	err = tx.QueryRow(ctx, `SELECT status FROM rides WHERE id = $1 FOR UPDATE`, rideID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ports.ErrNotFound
	}
	return status, err
}

// ListByStatus returns rides in the given status, oldest first. Used by the
// startup recovery pass to find in-flight SEARCHING rides.
func (repo *RideRepo) ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT`+rideColumns+`
		FROM rides
		WHERE status = $1
		ORDER BY created_at
	`, status.String())
	if err != nil {
		return nil, fmt.Errorf("query rides by status: %w", err)
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		rd, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, rd)
	}
	return rides, rows.Err()
}

// AssignDriver moves SEARCHING -> ASSIGNED and sets the winner in one
// conditional update.
func (repo *RideRepo) AssignDriver(ctx context.Context, rideID, driverID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    assigned_driver_id = $2,
		    assigned_at = $3,
		    updated_at = $3
		WHERE id = $4
		  AND status = $5
		  AND assigned_driver_id IS NULL
	`, ride.StatusAssigned.String(), driverID, at, rideID, ride.StatusSearching.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkNoDriversAvailable moves SEARCHING -> NO_DRIVERS_AVAILABLE on exhaustion.
func (repo *RideRepo) MarkNoDriversAvailable(ctx context.Context, rideID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, ride.StatusNoDriversAvailable.String(), at, rideID, ride.StatusSearching.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel moves SEARCHING/ASSIGNED/ARRIVED -> CANCELLED and records the reason.
func (repo *RideRepo) Cancel(ctx context.Context, rideID, reason string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    cancellation_reason = NULLIF($2, ''),
		    cancelled_at = $3,
		    updated_at = $3
		WHERE id = $4
		  AND status IN ($5, $6, $7)
	`,
		ride.StatusCancelled.String(), reason, at, rideID,
		ride.StatusSearching.String(), ride.StatusAssigned.String(), ride.StatusArrived.String(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus performs a generic from -> to conditional transition for the
// post-assignment lifecycle, stamping the matching timeline column.
func (repo *RideRepo) UpdateStatus(ctx context.Context, rideID string, from, to ride.Status, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	if !from.CanTransitionTo(to) {
		return false, ride.ErrInvalidTransition
	}

	query := `UPDATE rides SET status = $1, updated_at = $2`
	if col := timelineColumnFor(to); col != "" {
		query += `, ` + col + ` = $2`
	}
	query += ` WHERE id = $3 AND status = $4`

	tag, err := tx.Exec(ctx, query, to.String(), at, rideID, from.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// timelineColumnFor maps a target status to the timeline column it stamps.
func timelineColumnFor(status ride.Status) string {
	switch status {
	case ride.StatusAssigned:
		return "assigned_at"
	case ride.StatusArrived:
		return "arrived_at"
	case ride.StatusInProgress:
		return "started_at"
	case ride.StatusCompleted:
		return "completed_at"
	case ride.StatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

// scanRide maps one row onto a domain Ride.
func scanRide(row pgx.Row) (*ride.Ride, error) {
	var (
		out         ride.Ride
		vehicleType string
		status      string
	)

	err := row.Scan(
		&out.ID, &out.RideNumber, &out.CustomerID, &out.AssignedDriverID, &vehicleType, &status,
		&out.Pickup.Latitude, &out.Pickup.Longitude, &out.Pickup.Address,
		&out.Dropoff.Latitude, &out.Dropoff.Longitude, &out.Dropoff.Address,
		&out.EstimatedFare, &out.CancellationReason,
		&out.CreatedAt, &out.UpdatedAt, &out.AssignedAt, &out.ArrivedAt, &out.StartedAt, &out.CompletedAt, &out.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	out.VehicleType = ride.VehicleType(vehicleType)
	out.Status = ride.Status(status)
	return &out, nil
}
