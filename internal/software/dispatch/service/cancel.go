package service

import (
	"context"
	"errors"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// ErrRideNotCancellable is returned when the ride has already settled into a
// state cancellation cannot leave (IN_PROGRESS or terminal).
var ErrRideNotCancellable = errors.New("ride can no longer be cancelled")

// CancelRide cancels a ride race-safely. The conditional update only
// succeeds while the ride is SEARCHING, ASSIGNED or ARRIVED; if a driver's
// accept wins the same instant, exactly one of the two transitions lands.
func (service *dispatchService) CancelRide(ctx context.Context, rideID, actor, reason string) (ports.CancelRideResult, error) {
	now := timeNowUTC()

	var (
		r              *ride.Ride
		expiredDrivers []string
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		cancelled, err := service.rides.Cancel(txCtx, rideID, reason, now)
		if err != nil {
			return err
		}
		if !cancelled {
			// distinguish unknown ride from a settled one
			if _, err := service.rides.GetByID(txCtx, rideID); err != nil {
				return err
			}
			return ErrRideNotCancellable
		}

		if r, err = service.rides.GetByID(txCtx, rideID); err != nil {
			return err
		}

		// settle any outstanding offers so no driver accepts a dead ride
		if expiredDrivers, err = service.offers.ExpirePending(txCtx, rideID, now); err != nil {
			return err
		}

		// a cancelled ASSIGNED/ARRIVED ride frees its driver
		if r.AssignedDriverID != nil && *r.AssignedDriverID != "" {
			if err := service.availability.Release(txCtx, *r.AssignedDriverID, now); err != nil {
				return err
			}
		}

		return service.appendEvent(txCtx, rideID, ride.EventRideCancelled, actor, map[string]any{
			"reason": reason,
		})
	})
	if err != nil {
		if errors.Is(err, ErrRideNotCancellable) || errors.Is(err, ports.ErrNotFound) {
			return ports.CancelRideResult{}, err
		}
		service.logger.Error(ctx, "ride_cancel_failed", "Failed to cancel ride", err, map[string]any{
			"ride_id": rideID,
			"actor":   actor,
		})
		return ports.CancelRideResult{}, err
	}

	// wake the dispatch loop so it stops issuing batches
	service.loops.signal(rideID)

	correlationID := generateCorrelationID()
	for _, driverID := range expiredDrivers {
		service.registry.Send(driverID, contracts.EventOfferCancelled, contracts.WSOfferCancelled{
			RideID:   rideID,
			Reason:   contracts.ReasonRideCancelled,
			Envelope: newEnvelope(correlationID),
		})
	}
	if r.AssignedDriverID != nil && *r.AssignedDriverID != "" {
		service.registry.Send(*r.AssignedDriverID, contracts.EventOfferCancelled, contracts.WSOfferCancelled{
			RideID:   rideID,
			Reason:   contracts.ReasonRideCancelled,
			Envelope: newEnvelope(correlationID),
		})
	}

	service.publishRideStatus(ctx, contracts.RideStatusMessage{
		RideID:     rideID,
		RideNumber: r.RideNumber,
		Status:     ride.StatusCancelled.String(),
		Reason:     reason,
		Timestamp:  now,
		Envelope:   newEnvelope(correlationID),
	})

	service.logger.Info(ctx, "ride_cancelled", "Ride cancelled", map[string]any{
		"ride_id":        rideID,
		"actor":          actor,
		"reason":         reason,
		"expired_offers": len(expiredDrivers),
	})

	return ports.CancelRideResult{
		RideID:      rideID,
		Status:      ride.StatusCancelled.String(),
		CancelledAt: now.Format(time.RFC3339),
	}, nil
}
