package service

import (
	"context"

	"github.com/google/uuid"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/ports"
)

// CreateRide persists a new ride in SEARCHING state, appends the
// RIDE_REQUESTED audit event and starts the dispatch loop.
func (service *dispatchService) CreateRide(ctx context.Context, in ports.CreateRideInput) (ports.CreateRideResult, error) {
	var (
		rideID        = uuid.NewString()
		rideNumber    = generateRideNumber()
		correlationID = generateCorrelationID()
	)

	distanceKM := geo.HaversineKM(in.Pickup, in.Dropoff)

	estimatedFare, err := service.fares.EstimateFare(ctx, in.VehicleType, in.Pickup, in.Dropoff)
	if err != nil {
		service.logger.Error(ctx, "fare_estimate_failed", "Failed to estimate fare", err, map[string]any{
			"customer_id": in.CustomerID,
		})
		return ports.CreateRideResult{}, err
	}

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		r, err := ride.NewRide(rideID, rideNumber, in.CustomerID, in.VehicleType, in.Pickup, in.Dropoff, estimatedFare)
		if err != nil {
			return err
		}
		if err := service.rides.Create(txCtx, r); err != nil {
			return err
		}

		return service.appendEvent(txCtx, rideID, ride.EventRideRequested, customerActor(in.CustomerID), map[string]any{
			"ride_number":    rideNumber,
			"vehicle_type":   in.VehicleType.String(),
			"estimated_fare": estimatedFare,
			"distance_km":    distanceKM,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "ride_create_failed", "Failed to create ride", err, map[string]any{
			"customer_id": in.CustomerID,
			"ride_number": rideNumber,
			"request_id":  correlationID,
		})
		return ports.CreateRideResult{}, err
	}

	service.logger.Info(ctx, "ride_created", "Ride created, dispatch starting", map[string]any{
		"ride_id":     rideID,
		"ride_number": rideNumber,
		"request_id":  correlationID,
	})

	service.publishRideStatus(ctx, contracts.RideStatusMessage{
		RideID:     rideID,
		RideNumber: rideNumber,
		Status:     ride.StatusSearching.String(),
		Timestamp:  timeNowUTC(),
		Envelope:   newEnvelope(correlationID),
	})

	// the dispatch loop outlives this request
	go service.dispatchLoop(rideID)

	return ports.CreateRideResult{
		RideID:              rideID,
		RideNumber:          rideNumber,
		Status:              ride.StatusSearching.String(),
		EstimatedFare:       estimatedFare,
		EstimatedDistanceKM: distanceKM,
	}, nil
}
