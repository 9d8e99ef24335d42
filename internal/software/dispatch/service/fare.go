package service

import (
	"context"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// heuristicFareEstimator prices a trip from haversine distance and a
// city-speed duration estimate. The boundary stays an interface so a real
// pricing service can slot in.
type heuristicFareEstimator struct{}

// NewFareEstimator returns the built-in heuristic estimator.
func NewFareEstimator() ports.FareEstimator {
	return heuristicFareEstimator{}
}

func (heuristicFareEstimator) EstimateFare(_ context.Context, vt ride.VehicleType, pickup, dropoff geo.Point) (float64, error) {
	distanceKM := geo.HaversineKM(pickup, dropoff)
	durationMin := geo.EstimateDurationMinutes(distanceKM)
	return ride.ComputeEstimatedFare(vt, distanceKM, durationMin), nil
}
