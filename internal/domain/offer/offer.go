package offer

import (
	"errors"
	"strings"
	"time"
)

// Offer is one outstanding proposal of one ride to one driver. For a given
// ride at most one offer ever reaches ACCEPTED; when one does, every other
// PENDING offer for that ride moves to SUPERSEDED in the same logical
// operation.
type Offer struct {
	ID          string
	RideID      string
	DriverID    string
	BatchNumber int
	Status      Status
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
}

var (
	ErrOfferIDRequired    = errors.New("offer id is required")
	ErrRideIDRequired     = errors.New("ride id is required")
	ErrDriverIDRequired   = errors.New("driver id is required")
	ErrBatchOutOfRange    = errors.New("batch number must be >= 1")
	ErrExpiryBeforeCreate = errors.New("offer expiry must be after creation")
)

// NewOffer constructs a PENDING offer for one driver in one batch.
func NewOffer(id, rideID, driverID string, batchNumber int, expiresAt time.Time) (*Offer, error) {
	if id = strings.TrimSpace(id); id == "" {
		return nil, ErrOfferIDRequired
	}
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverIDRequired
	}
	if batchNumber < 1 {
		return nil, ErrBatchOutOfRange
	}

	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return nil, ErrExpiryBeforeCreate
	}

	return &Offer{
		ID:          id,
		RideID:      rideID,
		DriverID:    driverID,
		BatchNumber: batchNumber,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}, nil
}

// ExpiredAt reports whether the offer window has passed at the given instant.
func (o *Offer) ExpiredAt(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
