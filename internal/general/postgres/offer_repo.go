package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// OfferRepo persists the append-only ride_offers history. Rows are only ever
// status-transitioned; the accept race is decided by the affected-row count
// of a single conditional update.
type OfferRepo struct{}

// NewOfferRepo constructs a new OfferRepo.
func NewOfferRepo() ports.OfferRepository {
	return &OfferRepo{}
}

const offerColumns = `
	id, ride_id, driver_id, batch_number, status, created_at, expires_at, responded_at`

// CreateBatch inserts one PENDING offer row per candidate. All rows in a
// batch share expires_at and batch_number.
func (repo *OfferRepo) CreateBatch(ctx context.Context, offers []*offer.Offer) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	for _, o := range offers {
		_, err := tx.Exec(ctx, `
			INSERT INTO ride_offers (id, ride_id, driver_id, batch_number, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, o.ID, o.RideID, o.DriverID, o.BatchNumber, o.Status.String(), o.CreatedAt, o.ExpiresAt)
		if err != nil {
			return fmt.Errorf("insert offer for driver %s: %w", o.DriverID, err)
		}
	}
	return nil
}

// GetByID fetches an offer by primary key.
func (repo *OfferRepo) GetByID(ctx context.Context, id string) (*offer.Offer, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT`+offerColumns+` FROM ride_offers WHERE id = $1`, id)
	out, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return out, err
}

// ListByRide returns the full offer history for a ride, in creation order.
func (repo *OfferRepo) ListByRide(ctx context.Context, rideID string) ([]*offer.Offer, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT`+offerColumns+`
		FROM ride_offers
		WHERE ride_id = $1
		ORDER BY batch_number, created_at, driver_id
	`, rideID)
	if err != nil {
		return nil, fmt.Errorf("query offers by ride: %w", err)
	}
	defer rows.Close()

	var offers []*offer.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// OfferedDriverIDs returns every driver ever offered this ride.
func (repo *OfferRepo) OfferedDriverIDs(ctx context.Context, rideID string) ([]string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT DISTINCT driver_id FROM ride_offers WHERE ride_id = $1
	`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MaxBatchNumber returns the highest batch number issued for a ride, 0 when none.
func (repo *OfferRepo) MaxBatchNumber(ctx context.Context, rideID string) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var max int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(batch_number), 0) FROM ride_offers WHERE ride_id = $1
	`, rideID).Scan(&max)
	return max, err
}

// AcceptPending is the arbitration primitive. The update succeeds only while
// the offer is PENDING and unexpired and the parent ride is still SEARCHING;
// the row-level lock taken by the winning update serializes every concurrent
// attempt, so at most one accept per ride can ever report true.
func (repo *OfferRepo) AcceptPending(ctx context.Context, offerID, driverID string, now time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ride_offers o
		SET status = $1, responded_at = $2
		FROM rides r
		WHERE o.ride_id = r.id
		  AND o.id = $3
		  AND o.driver_id = $4
		  AND o.status = $5
		  AND o.expires_at > $2
		  AND r.status = $6
	`,
		offer.StatusAccepted.String(), now, offerID, driverID,
		offer.StatusPending.String(), ride.StatusSearching.String(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RejectPending marks a driver's own PENDING offer REJECTED. A replayed or
// late reject simply affects zero rows.
func (repo *OfferRepo) RejectPending(ctx context.Context, offerID, driverID string, now time.Time) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ride_offers
		SET status = $1, responded_at = $2
		WHERE id = $3
		  AND driver_id = $4
		  AND status = $5
	`, offer.StatusRejected.String(), now, offerID, driverID, offer.StatusPending.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SupersedePending settles every other PENDING offer for the ride once a
// winner is committed, returning the losing driver ids for notification.
func (repo *OfferRepo) SupersedePending(ctx context.Context, rideID, winningOfferID string, now time.Time) ([]string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE ride_offers
		SET status = $1, responded_at = $2
		WHERE ride_id = $3
		  AND id <> $4
		  AND status = $5
		RETURNING driver_id
	`, offer.StatusSuperseded.String(), now, rideID, winningOfferID, offer.StatusPending.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDriverIDs(rows)
}

// ExpirePending expires all PENDING offers for the ride, returning the
// affected driver ids.
func (repo *OfferRepo) ExpirePending(ctx context.Context, rideID string, now time.Time) ([]string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE ride_offers
		SET status = $1, responded_at = $2
		WHERE ride_id = $3
		  AND status = $4
		RETURNING driver_id
	`, offer.StatusExpired.String(), now, rideID, offer.StatusPending.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDriverIDs(rows)
}

func collectDriverIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanOffer maps one row onto a domain Offer.
func scanOffer(row pgx.Row) (*offer.Offer, error) {
	var (
		out    offer.Offer
		status string
	)

	err := row.Scan(
		&out.ID, &out.RideID, &out.DriverID, &out.BatchNumber,
		&status, &out.CreatedAt, &out.ExpiresAt, &out.RespondedAt,
	)
	if err != nil {
		return nil, err
	}

	out.Status = offer.Status(status)
	return &out, nil
}
