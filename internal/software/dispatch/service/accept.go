package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"
)

// AcceptOffer is the arbitration point of the accept race. The decision is a
// single conditional update whose affected-row count picks the winner; every
// read below happens after that update and only classifies the outcome, it
// never decides a transition. Losing is an expected result, returned as a
// value.
func (service *dispatchService) AcceptOffer(ctx context.Context, offerID, driverID string) (ports.AcceptResult, error) {
	now := timeNowUTC()
	result := ports.AcceptResult{OfferID: offerID, DriverID: driverID}

	var (
		winningRide *ride.Ride
		losers      []string
		etaMinutes  int
	)

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		won, err := service.offers.AcceptPending(txCtx, offerID, driverID, now)
		if err != nil {
			return err
		}

		if !won {
			outcome, rideID, err := service.classifyLoss(txCtx, offerID, driverID, now)
			if err != nil {
				return err
			}
			result.Outcome = outcome
			result.RideID = rideID
			return nil
		}

		o, err := service.offers.GetByID(txCtx, offerID)
		if err != nil {
			return err
		}
		result.Outcome = ports.AcceptWon
		result.RideID = o.RideID

		// settle every other PENDING offer so no second winner is possible
		// and the losers can be told
		losers, err = service.offers.SupersedePending(txCtx, o.RideID, offerID, now)
		if err != nil {
			return err
		}

		assigned, err := service.rides.AssignDriver(txCtx, o.RideID, driverID, now)
		if err != nil {
			return err
		}
		if !assigned {
			// cannot happen: the accept CAS already verified the ride is
			// SEARCHING inside this tx
			return fmt.Errorf("ride %s not assignable after winning accept", o.RideID)
		}

		held, err := service.availability.Hold(txCtx, driverID, now)
		if err != nil {
			return err
		}
		if !held {
			service.logger.Info(txCtx, "winner_hold_skipped", "Winning driver was not marked available, assignment stands", map[string]any{
				"ride_id":   o.RideID,
				"driver_id": driverID,
			})
		}

		if winningRide, err = service.rides.GetByID(txCtx, o.RideID); err != nil {
			return err
		}
		etaMinutes = service.estimateArrival(txCtx, driverID, winningRide.Pickup)

		return service.appendEvent(txCtx, o.RideID, ride.EventDriverAssigned, driverActor(driverID), map[string]any{
			"offer_id":    offerID,
			"eta_minutes": etaMinutes,
		})
	})
	if err != nil {
		return ports.AcceptResult{}, err
	}

	metrics.AcceptOutcomesTotal.WithLabelValues(string(result.Outcome)).Inc()

	if !result.Won() {
		service.logger.Info(ctx, "offer_accept_lost", "Accept attempt did not win", map[string]any{
			"offer_id":  offerID,
			"driver_id": driverID,
			"outcome":   string(result.Outcome),
		})
		service.publishDriverResponse(ctx, contracts.DriverResponseMessage{
			RideID:    result.RideID,
			OfferID:   offerID,
			DriverID:  driverID,
			Outcome:   string(result.Outcome),
			Timestamp: now,
			Envelope:  newEnvelope(generateCorrelationID()),
		})
		return result, nil
	}

	service.afterWin(ctx, winningRide, offerID, driverID, losers, etaMinutes, now)
	return result, nil
}

// classifyLoss explains a 0-row accept CAS. Reads only.
func (service *dispatchService) classifyLoss(txCtx context.Context, offerID, driverID string, now time.Time) (ports.AcceptOutcome, string, error) {
	o, err := service.offers.GetByID(txCtx, offerID)
	if err != nil {
		return "", "", err
	}
	if o.DriverID != driverID {
		return "", "", ports.ErrNotFound
	}

	switch o.Status {
	case offer.StatusSuperseded:
		return ports.AcceptLostRace, o.RideID, nil
	case offer.StatusExpired:
		return ports.AcceptOfferExpired, o.RideID, nil
	case offer.StatusPending:
		if o.ExpiredAt(now) {
			return ports.AcceptOfferExpired, o.RideID, nil
		}
		// offer looks live, so the ride must have left SEARCHING
		return ports.AcceptRideNotSearching, o.RideID, nil
	default:
		// ACCEPTED (a replayed click) or REJECTED
		return ports.AcceptRideNotSearching, o.RideID, nil
	}
}

// afterWin runs post-commit: wake the dispatch loop, tell the losers and the
// customer, mirror the assignment to the broker.
func (service *dispatchService) afterWin(ctx context.Context, r *ride.Ride, offerID, driverID string, losers []string, etaMinutes int, now time.Time) {
	service.loops.signal(r.ID)

	correlationID := generateCorrelationID()
	for _, loser := range losers {
		service.registry.Send(loser, contracts.EventOfferCancelled, contracts.WSOfferCancelled{
			RideID:   r.ID,
			Reason:   contracts.ReasonAcceptedByAnother,
			Envelope: newEnvelope(correlationID),
		})
	}

	service.registry.Send(r.CustomerID, contracts.EventDriverAssigned, contracts.WSDriverAssigned{
		RideID:     r.ID,
		DriverID:   driverID,
		ETAMinutes: etaMinutes,
		Envelope:   newEnvelope(correlationID),
	})

	service.publishRideStatus(ctx, contracts.RideStatusMessage{
		RideID:     r.ID,
		RideNumber: r.RideNumber,
		Status:     ride.StatusAssigned.String(),
		DriverID:   driverID,
		Timestamp:  now,
		Envelope:   newEnvelope(correlationID),
	})
	service.publishDriverResponse(ctx, contracts.DriverResponseMessage{
		RideID:    r.ID,
		OfferID:   offerID,
		DriverID:  driverID,
		Outcome:   string(ports.AcceptWon),
		Timestamp: now,
		Envelope:  newEnvelope(correlationID),
	})

	metrics.RidesAssignedTotal.Inc()
	metrics.AssignLatency.Observe(now.Sub(r.CreatedAt).Seconds())

	service.logger.Info(ctx, "ride_assigned", "Accept race settled, driver assigned", map[string]any{
		"ride_id":     r.ID,
		"ride_number": r.RideNumber,
		"driver_id":   driverID,
		"offer_id":    offerID,
		"losers":      len(losers),
		"eta_minutes": etaMinutes,
	})
}

// estimateArrival approximates driver-to-pickup travel time; failures fall
// back to zero rather than blocking the assignment.
func (service *dispatchService) estimateArrival(txCtx context.Context, driverID string, pickup geo.Point) int {
	a, err := service.availability.GetByID(txCtx, driverID)
	if err != nil {
		return 0
	}
	return geo.EstimateDurationMinutes(geo.HaversineKM(a.LastKnownLocation, pickup))
}

// RejectOffer marks a PENDING offer REJECTED. Rejecting an offer that has
// already settled is a no-op, so driver clients can retry safely.
func (service *dispatchService) RejectOffer(ctx context.Context, offerID, driverID, reason string) error {
	now := timeNowUTC()
	var rideID string

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		rejected, err := service.offers.RejectPending(txCtx, offerID, driverID, now)
		if err != nil {
			return err
		}
		if !rejected {
			// already expired, superseded or unknown; confirm it exists so a
			// bogus offer id still errors
			o, err := service.offers.GetByID(txCtx, offerID)
			if err != nil {
				return err
			}
			if o.DriverID != driverID {
				return ports.ErrNotFound
			}
			rideID = o.RideID
			return nil
		}

		o, err := service.offers.GetByID(txCtx, offerID)
		if err != nil {
			return err
		}
		rideID = o.RideID
		return nil
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ports.ErrNotFound
		}
		return err
	}

	service.logger.Info(ctx, "offer_rejected", "Driver rejected offer", map[string]any{
		"offer_id":  offerID,
		"driver_id": driverID,
		"reason":    reason,
	})
	service.publishDriverResponse(ctx, contracts.DriverResponseMessage{
		RideID:    rideID,
		OfferID:   offerID,
		DriverID:  driverID,
		Outcome:   "REJECTED",
		Timestamp: now,
		Envelope:  newEnvelope(generateCorrelationID()),
	})
	return nil
}
