package service

import (
	"context"
	"math"
	"sort"
	"time"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// Ranking weights. Distance dominates; rating and idle time break up
// clusters of equally close drivers.
const (
	ratingWeight   = 0.5  // score reduction per rating point above 1.0
	idleWeight     = 0.05 // score reduction per idle minute
	idleCapMinutes = 30.0
	overfetch      = 4 // geo candidates fetched per batch slot
)

// selectBatch returns up to size ranked candidates around the pickup point,
// expanding the search radius until drivers are found or the maximum radius
// is reached. An empty result at max radius is the exhaustion signal.
func (service *dispatchService) selectBatch(ctx context.Context, pickup geo.Point, vt ride.VehicleType, exclude []string, size int) ([]ports.Candidate, error) {
	radius := service.settings.InitialRadiusKM
	now := timeNowUTC()

	for {
		ids, err := service.geoIndex.Nearby(ctx, pickup, radius, size*overfetch)
		if err != nil {
			return nil, err
		}

		var rows []driver.Availability
		if len(ids) > 0 {
			err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
				rows, err = service.availability.FindAvailable(txCtx, ids, vt, exclude)
				return err
			})
			if err != nil {
				return nil, err
			}
		}

		if len(rows) > 0 {
			return rankCandidates(pickup, rows, now, size), nil
		}

		if radius >= service.settings.MaxRadiusKM {
			return nil, nil
		}
		radius = math.Min(radius*service.settings.RadiusMultiplier, service.settings.MaxRadiusKM)
	}
}

// rankCandidates scores and orders the availability rows: closer is better,
// higher rating is better, longer idle is better. Ties fall back to driver id
// so the ordering is deterministic.
func rankCandidates(pickup geo.Point, rows []driver.Availability, now time.Time, size int) []ports.Candidate {
	candidates := make([]ports.Candidate, 0, len(rows))
	for _, row := range rows {
		dist := geo.HaversineKM(pickup, row.LastKnownLocation)
		idle := row.IdleSince(now)
		candidates = append(candidates, ports.Candidate{
			DriverID:   row.DriverID,
			DistanceKM: dist,
			Rating:     row.Rating,
			Idle:       idle,
			Score:      scoreCandidate(dist, row.Rating, idle),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].DriverID < candidates[j].DriverID
	})

	if len(candidates) > size {
		candidates = candidates[:size]
	}
	return candidates
}

// scoreCandidate computes the weighted rank; lower is better.
func scoreCandidate(distanceKM, rating float64, idle time.Duration) float64 {
	idleMin := math.Min(idle.Minutes(), idleCapMinutes)
	return distanceKM - ratingWeight*(rating-1.0) - idleWeight*idleMin
}
