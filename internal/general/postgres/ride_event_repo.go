package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// RideEventRepo appends to the ride_events audit table. Rows are never
// updated or deleted after insertion.
type RideEventRepo struct{}

// NewRideEventRepo constructs a new RideEventRepo.
func NewRideEventRepo() ports.RideEventRepository {
	return &RideEventRepo{}
}

// Append inserts a new ride_events row.
func (repo *RideEventRepo) Append(ctx context.Context, event *ride.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return err
	}

	data, err := event.DataJSON()
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ride_events (ride_id, event_type, actor, event_data)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id, created_at
	`,
		event.RideID,
		event.Type.String(),
		event.Actor,
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	return err
}

// ListByRide returns the audit trail for a ride in insertion order.
func (repo *RideEventRepo) ListByRide(ctx context.Context, rideID string) ([]*ride.Event, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, ride_id, event_type, actor, event_data, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY created_at, id
	`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query ride events: %w", err)
	}
	defer rows.Close()

	var events []*ride.Event
	for rows.Next() {
		var (
			e         ride.Event
			eventType string
			data      []byte
		)
		if err := rows.Scan(&e.ID, &e.RideID, &eventType, &e.Actor, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ride event: %w", err)
		}
		e.Type = ride.EventType(eventType)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
