package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/metrics"
)

// loopRegistry holds one settle channel per in-flight ride. The arbitrator
// and the cancellation path signal through it; the dispatch loop never polls
// the database while a batch is outstanding.
type loopRegistry struct {
	mu      sync.Mutex
	settles map[string]chan struct{}
}

func newLoopRegistry() *loopRegistry {
	return &loopRegistry{settles: make(map[string]chan struct{})}
}

func (lr *loopRegistry) register(rideID string) chan struct{} {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	ch := make(chan struct{}, 1)
	lr.settles[rideID] = ch
	return ch
}

func (lr *loopRegistry) unregister(rideID string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	delete(lr.settles, rideID)
}

// signal wakes the ride's dispatch loop, if one is running. Non-blocking: a
// second signal while one is already buffered is a no-op, and signalling a
// ride with no loop (already settled, or owned by another recovery pass) is
// harmless because storage is the source of truth.
func (lr *loopRegistry) signal(rideID string) {
	lr.mu.Lock()
	ch, ok := lr.settles[rideID]
	lr.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// dispatchLoop drives one ride from SEARCHING to a settled state: select a
// batch, broadcast, wait for win/expiry/cancel, repeat with a grown exclusion
// set. Exactly one loop runs per ride; batches never overlap because the
// next batch is only selected after the current window fully resolves.
func (service *dispatchService) dispatchLoop(rideID string) {
	ctx := service.rootCtx
	settle := service.loops.register(rideID)
	defer service.loops.unregister(rideID)

	r, exclude, batchNumber, outstandingExpiry, err := service.loadLoopState(ctx, rideID)
	if err != nil {
		service.logger.Error(ctx, "dispatch_loop_load_failed", "Failed to load dispatch state, abandoning loop", err, map[string]any{
			"ride_id": rideID,
		})
		return
	}
	if r.Status != ride.StatusSearching {
		return
	}

	batches := 0
	outstanding := !outstandingExpiry.IsZero()
	expiresAt := outstandingExpiry

	for {
		if !outstanding {
			// the ride may have settled between the last expiry and now
			still, err := service.stillSearching(ctx, rideID)
			if err != nil {
				service.logger.Error(ctx, "dispatch_loop_status_check_failed", "Failed to re-check ride status", err, map[string]any{
					"ride_id": rideID,
				})
				return
			}
			if !still {
				service.observeBatches(batches)
				return
			}

			candidates, err := service.selectBatch(ctx, r.Pickup, r.VehicleType, exclude, service.settings.BatchSize)
			if err != nil {
				service.logger.Error(ctx, "candidate_selection_failed", "Failed to select candidate batch", err, map[string]any{
					"ride_id":      rideID,
					"batch_number": batchNumber + 1,
				})
				return
			}
			if len(candidates) == 0 {
				service.exhaust(ctx, r)
				service.observeBatches(batches)
				return
			}

			batchNumber++
			expiresAt, err = service.broadcastBatch(ctx, r, candidates, batchNumber)
			if err != nil {
				if errors.Is(err, errRideNotSearching) {
					// settled between the status check and the insert
					service.observeBatches(batches)
					return
				}
				service.logger.Error(ctx, "offer_broadcast_failed", "Failed to broadcast offer batch", err, map[string]any{
					"ride_id":      rideID,
					"batch_number": batchNumber,
				})
				return
			}
			for _, c := range candidates {
				exclude = append(exclude, c.DriverID)
			}
			batches++
			outstanding = true
		}

		timer := time.NewTimer(time.Until(expiresAt))
		select {
		case <-settle:
			timer.Stop()
			service.observeBatches(batches)
			return

		case <-timer.C:
			service.expireBatch(ctx, rideID, batchNumber)
			outstanding = false

		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// loadLoopState reads everything the loop needs in one tx: the ride, the
// historical exclusion set, the last batch number and any still-outstanding
// offer window (recovery case).
func (service *dispatchService) loadLoopState(ctx context.Context, rideID string) (*ride.Ride, []string, int, time.Time, error) {
	var (
		r           *ride.Ride
		exclude     []string
		batchNumber int
		expiry      time.Time
	)
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		if r, err = service.rides.GetByID(txCtx, rideID); err != nil {
			return err
		}
		if exclude, err = service.offers.OfferedDriverIDs(txCtx, rideID); err != nil {
			return err
		}
		if batchNumber, err = service.offers.MaxBatchNumber(txCtx, rideID); err != nil {
			return err
		}

		all, err := service.offers.ListByRide(txCtx, rideID)
		if err != nil {
			return err
		}
		now := timeNowUTC()
		for _, o := range all {
			if o.Status == offer.StatusPending && o.ExpiresAt.After(now) && o.ExpiresAt.After(expiry) {
				expiry = o.ExpiresAt
			}
		}
		return nil
	})
	return r, exclude, batchNumber, expiry, err
}

func (service *dispatchService) stillSearching(ctx context.Context, rideID string) (bool, error) {
	var status ride.Status
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		r, err := service.rides.GetByID(txCtx, rideID)
		if err != nil {
			return err
		}
		status = r.Status
		return nil
	})
	if err != nil {
		return false, err
	}
	return status == ride.StatusSearching, nil
}

// expireBatch settles the window's leftover PENDING offers and tells the
// affected drivers. Offers already settled by the accept race are untouched.
func (service *dispatchService) expireBatch(ctx context.Context, rideID string, batchNumber int) {
	now := timeNowUTC()
	var expiredDrivers []string

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		expiredDrivers, err = service.offers.ExpirePending(txCtx, rideID, now)
		if err != nil {
			return err
		}
		if len(expiredDrivers) == 0 {
			return nil
		}
		return service.appendEvent(txCtx, rideID, ride.EventBatchExpired, systemActor, map[string]any{
			"batch_number": batchNumber,
			"driver_ids":   expiredDrivers,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "batch_expire_failed", "Failed to expire offer batch", err, map[string]any{
			"ride_id":      rideID,
			"batch_number": batchNumber,
		})
		return
	}

	correlationID := generateCorrelationID()
	for _, driverID := range expiredDrivers {
		service.registry.Send(driverID, contracts.EventOfferCancelled, contracts.WSOfferCancelled{
			RideID:   rideID,
			Reason:   contracts.ReasonOfferExpired,
			Envelope: newEnvelope(correlationID),
		})
	}

	service.logger.Info(ctx, "offer_batch_expired", "Offer window elapsed with no winner", map[string]any{
		"ride_id":      rideID,
		"batch_number": batchNumber,
		"expired":      len(expiredDrivers),
	})
}

// exhaust moves the ride to NO_DRIVERS_AVAILABLE when the candidate pool is
// exhausted at max radius. The conditional update keeps the transition safe
// against a concurrent accept or cancel.
func (service *dispatchService) exhaust(ctx context.Context, r *ride.Ride) {
	now := timeNowUTC()
	var settled bool

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		ok, err := service.rides.MarkNoDriversAvailable(txCtx, r.ID, now)
		if err != nil {
			return err
		}
		settled = ok
		if !ok {
			return nil
		}
		return service.appendEvent(txCtx, r.ID, ride.EventNoDriversAvailable, systemActor, map[string]any{
			"ride_number": r.RideNumber,
		})
	})
	if err != nil {
		service.logger.Error(ctx, "ride_exhaust_failed", "Failed to mark ride NO_DRIVERS_AVAILABLE", err, map[string]any{
			"ride_id": r.ID,
		})
		return
	}
	if !settled {
		// the ride was assigned or cancelled while we were selecting
		return
	}

	correlationID := generateCorrelationID()
	service.registry.Send(r.CustomerID, contracts.EventNoDriversFound, contracts.WSNoDriversAvailable{
		RideID:   r.ID,
		Envelope: newEnvelope(correlationID),
	})
	service.publishRideStatus(ctx, contracts.RideStatusMessage{
		RideID:     r.ID,
		RideNumber: r.RideNumber,
		Status:     ride.StatusNoDriversAvailable.String(),
		Timestamp:  now,
		Envelope:   newEnvelope(correlationID),
	})
	metrics.RidesExhaustedTotal.Inc()

	service.logger.Info(ctx, "ride_exhausted", "Candidate pool exhausted, ride settled", map[string]any{
		"ride_id":     r.ID,
		"ride_number": r.RideNumber,
	})
}

func (service *dispatchService) observeBatches(batches int) {
	if batches > 0 {
		metrics.BatchesPerRide.Observe(float64(batches))
	}
}
