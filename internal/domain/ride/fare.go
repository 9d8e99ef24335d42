package ride

// ComputeEstimatedFare returns base + (distance_km * rate_per_km) +
// (duration_min * rate_per_min) for the vehicle type.
func ComputeEstimatedFare(vt VehicleType, distanceKM float64, durationMin int) float64 {
	type rates struct {
		base      float64
		perKM     float64
		perMinute float64
	}

	var rate rates
	switch vt {
	case VehiclePremium:
		rate = rates{base: 800, perKM: 120, perMinute: 60}
	case VehicleXL:
		rate = rates{base: 1000, perKM: 150, perMinute: 75}
	default:
		rate = rates{base: 500, perKM: 100, perMinute: 50} // ECONOMY
	}

	if distanceKM < 0 {
		distanceKM = 0
	}
	if durationMin < 0 {
		durationMin = 0
	}

	return rate.base + rate.perKM*distanceKM + rate.perMinute*float64(durationMin)
}
