package service

import (
	"context"
	"errors"

	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
)

// ErrNotAssignedDriver is returned when a driver tries to progress a ride
// they are not assigned to.
var ErrNotAssignedDriver = errors.New("driver is not assigned to this ride")

// MarkArrived transitions ASSIGNED -> ARRIVED.
func (service *dispatchService) MarkArrived(ctx context.Context, rideID, driverID string) error {
	return service.progress(ctx, rideID, driverID, ride.StatusAssigned, ride.StatusArrived, ride.EventDriverArrived)
}

// StartRide transitions ARRIVED -> IN_PROGRESS.
func (service *dispatchService) StartRide(ctx context.Context, rideID, driverID string) error {
	return service.progress(ctx, rideID, driverID, ride.StatusArrived, ride.StatusInProgress, ride.EventRideStarted)
}

// CompleteRide transitions IN_PROGRESS -> COMPLETED and frees the driver.
func (service *dispatchService) CompleteRide(ctx context.Context, rideID, driverID string) error {
	return service.progress(ctx, rideID, driverID, ride.StatusInProgress, ride.StatusCompleted, ride.EventRideCompleted)
}

// progress applies one post-assignment transition: verify the caller is the
// assigned driver, run the conditional status update, append the audit row.
func (service *dispatchService) progress(ctx context.Context, rideID, driverID string, from, to ride.Status, eventType ride.EventType) error {
	now := timeNowUTC()
	var r *ride.Ride

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		if r, err = service.rides.GetByID(txCtx, rideID); err != nil {
			return err
		}
		if r.AssignedDriverID == nil || *r.AssignedDriverID != driverID {
			return ErrNotAssignedDriver
		}

		moved, err := service.rides.UpdateStatus(txCtx, rideID, from, to, now)
		if err != nil {
			return err
		}
		if !moved {
			return ride.ErrInvalidTransition
		}

		if to == ride.StatusCompleted {
			if err := service.availability.Release(txCtx, driverID, now); err != nil {
				return err
			}
		}

		return service.appendEvent(txCtx, rideID, eventType, driverActor(driverID), map[string]any{
			"from": from.String(),
			"to":   to.String(),
		})
	})
	if err != nil {
		if errors.Is(err, ride.ErrInvalidTransition) {
			service.logger.Error(ctx, "invalid_ride_transition", "Rejected ride status transition", err, map[string]any{
				"ride_id":   rideID,
				"driver_id": driverID,
				"from":      from.String(),
				"to":        to.String(),
			})
		}
		return err
	}

	correlationID := generateCorrelationID()
	service.registry.Send(r.CustomerID, contracts.EventRideStatusUpdate, contracts.WSRideStatus{
		RideID:    rideID,
		Status:    to.String(),
		Timestamp: now,
		Envelope:  newEnvelope(correlationID),
	})
	service.publishRideStatus(ctx, contracts.RideStatusMessage{
		RideID:     rideID,
		RideNumber: r.RideNumber,
		Status:     to.String(),
		DriverID:   driverID,
		Timestamp:  now,
		Envelope:   newEnvelope(correlationID),
	})

	service.logger.Info(ctx, "ride_progressed", "Ride status transition applied", map[string]any{
		"ride_id": rideID,
		"from":    from.String(),
		"to":      to.String(),
	})
	return nil
}

// GetRide returns the ride row.
func (service *dispatchService) GetRide(ctx context.Context, rideID string) (*ride.Ride, error) {
	var r *ride.Ride
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		r, err = service.rides.GetByID(txCtx, rideID)
		return err
	})
	return r, err
}

// GetOfferHistory returns every offer ever made for the ride, the audit view
// support reads when a dispatch is disputed.
func (service *dispatchService) GetOfferHistory(ctx context.Context, rideID string) ([]*offer.Offer, error) {
	var history []*offer.Offer
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := service.rides.GetByID(txCtx, rideID); err != nil {
			return err
		}
		var err error
		history, err = service.offers.ListByRide(txCtx, rideID)
		return err
	})
	return history, err
}
