package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// AvailabilityRepo persists the durable mirror of driver dispatchability.
type AvailabilityRepo struct{}

// NewAvailabilityRepo constructs a new AvailabilityRepo.
func NewAvailabilityRepo() ports.AvailabilityRepository {
	return &AvailabilityRepo{}
}

const availabilityColumns = `
	driver_id, vehicle_type, rating, is_online, is_available,
	latitude, longitude, last_seen_at, available_since, updated_at`

// Upsert writes the full availability row, inserting on first contact.
func (repo *AvailabilityRepo) Upsert(ctx context.Context, a *driver.Availability) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO driver_availability (
			driver_id, vehicle_type, rating, is_online, is_available,
			latitude, longitude, last_seen_at, available_since, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (driver_id) DO UPDATE SET
			vehicle_type = EXCLUDED.vehicle_type,
			rating = EXCLUDED.rating,
			is_online = EXCLUDED.is_online,
			is_available = EXCLUDED.is_available,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			last_seen_at = EXCLUDED.last_seen_at,
			available_since = EXCLUDED.available_since,
			updated_at = EXCLUDED.updated_at
	`,
		a.DriverID, a.VehicleType.String(), a.Rating, a.IsOnline, a.IsAvailable,
		a.LastKnownLocation.Latitude, a.LastKnownLocation.Longitude,
		nullableTime(a.LastSeenAt), nullableTime(a.AvailableSince), a.UpdatedAt,
	)
	return err
}

// GetByID fetches one driver's availability.
func (repo *AvailabilityRepo) GetByID(ctx context.Context, driverID string) (*driver.Availability, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT`+availabilityColumns+` FROM driver_availability WHERE driver_id = $1`, driverID)
	out, err := scanAvailability(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return out, err
}

// SetOnline marks the driver online and dispatchable at the given location.
func (repo *AvailabilityRepo) SetOnline(ctx context.Context, driverID string, loc geo.Point, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE driver_availability
		SET is_online = true,
		    is_available = true,
		    latitude = $1, longitude = $2,
		    last_seen_at = $3, available_since = $3, updated_at = $3
		WHERE driver_id = $4
	`, loc.Latitude, loc.Longitude, at, driverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// SetOffline removes the driver from dispatch entirely.
func (repo *AvailabilityRepo) SetOffline(ctx context.Context, driverID string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE driver_availability
		SET is_online = false, is_available = false, updated_at = $1
		WHERE driver_id = $2
	`, at, driverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// UpdateLocation records a location heartbeat.
func (repo *AvailabilityRepo) UpdateLocation(ctx context.Context, driverID string, loc geo.Point, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE driver_availability
		SET latitude = $1, longitude = $2, last_seen_at = $3, updated_at = $3
		WHERE driver_id = $4
	`, loc.Latitude, loc.Longitude, at, driverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Touch stamps the last_seen_at heartbeat. Drivers with no availability row
// yet (never went online) are a no-op.
func (repo *AvailabilityRepo) Touch(ctx context.Context, driverID string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE driver_availability
		SET last_seen_at = $1, updated_at = $1
		WHERE driver_id = $2
	`, at, driverID)
	return err
}

// Hold flips is_available off for the accept winner. Conditional: reports
// false when the driver was not available (already holding another ride or
// gone offline).
func (repo *AvailabilityRepo) Hold(ctx context.Context, driverID string, at time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE driver_availability
		SET is_available = false, updated_at = $1
		WHERE driver_id = $2
		  AND is_online = true
		  AND is_available = true
	`, at, driverID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release flips is_available back on when the held ride settles. A driver who
// went offline mid-ride stays offline.
func (repo *AvailabilityRepo) Release(ctx context.Context, driverID string, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE driver_availability
		SET is_available = true, available_since = $1, updated_at = $1
		WHERE driver_id = $2
		  AND is_online = true
	`, at, driverID)
	return err
}

// FindAvailable filters geo-index candidates down to online, available,
// vehicle-compatible drivers not present in exclude.
func (repo *AvailabilityRepo) FindAvailable(ctx context.Context, candidateIDs []string, vt ride.VehicleType, exclude []string) ([]driver.Availability, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if len(candidateIDs) == 0 {
		return nil, nil
	}
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := tx.Query(ctx, `
		SELECT`+availabilityColumns+`
		FROM driver_availability
		WHERE driver_id = ANY($1)
		  AND is_online = true
		  AND is_available = true
		  AND vehicle_type = $2
		  AND NOT (driver_id = ANY($3))
		ORDER BY driver_id
	`, candidateIDs, vt.String(), exclude)
	if err != nil {
		return nil, fmt.Errorf("query available drivers: %w", err)
	}
	defer rows.Close()

	var out []driver.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// scanAvailability maps one row onto a domain Availability.
func scanAvailability(row pgx.Row) (*driver.Availability, error) {
	var (
		out            driver.Availability
		vehicleType    string
		lastSeenAt     *time.Time
		availableSince *time.Time
	)

	err := row.Scan(
		&out.DriverID, &vehicleType, &out.Rating, &out.IsOnline, &out.IsAvailable,
		&out.LastKnownLocation.Latitude, &out.LastKnownLocation.Longitude,
		&lastSeenAt, &availableSince, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	out.VehicleType = ride.VehicleType(vehicleType)
	if lastSeenAt != nil {
		out.LastSeenAt = *lastSeenAt
	}
	if availableSince != nil {
		out.AvailableSince = *availableSince
	}
	return &out, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
