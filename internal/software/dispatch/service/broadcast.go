package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"ride-dispatch/internal/domain/offer"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"
)

// errRideNotSearching aborts a broadcast whose ride settled (accept, cancel
// or exhaustion) after the loop's last status check.
var errRideNotSearching = errors.New("ride is no longer searching")

// broadcastBatch creates one PENDING offer row per candidate, all sharing the
// same expires_at and batch number, then fans the offers out post-commit.
// Broadcasting never flips driver availability: a candidate stays eligible
// for other rides until they actually accept.
//
// The insert is gated on the ride row under a lock: a concurrent cancel
// either commits first (we see the settled status and insert nothing) or
// waits on the row and then expires the offers we just wrote. No path leaves
// live offers on a settled ride.
func (service *dispatchService) broadcastBatch(ctx context.Context, r *ride.Ride, candidates []ports.Candidate, batchNumber int) (time.Time, error) {
	expiresAt := timeNowUTC().Add(service.settings.OfferWindow)

	batch := make([]*offer.Offer, 0, len(candidates))
	offerIDs := make(map[string]string, len(candidates)) // driver id -> offer id
	driverIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		o, err := offer.NewOffer(uuid.NewString(), r.ID, c.DriverID, batchNumber, expiresAt)
		if err != nil {
			return time.Time{}, err
		}
		batch = append(batch, o)
		offerIDs[c.DriverID] = o.ID
		driverIDs = append(driverIDs, c.DriverID)
	}

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		status, err := service.rides.StatusForUpdate(txCtx, r.ID)
		if err != nil {
			return err
		}
		if status != ride.StatusSearching {
			return errRideNotSearching
		}
		if err := service.offers.CreateBatch(txCtx, batch); err != nil {
			return err
		}
		return service.appendEvent(txCtx, r.ID, ride.EventOffersBroadcast, systemActor, map[string]any{
			"batch_number": batchNumber,
			"driver_ids":   driverIDs,
			"expires_at":   expiresAt.Format(time.RFC3339),
		})
	})
	if err != nil {
		return time.Time{}, err
	}

	// post-commit fan-out; a disconnected candidate is skipped, never fails
	// the batch
	correlationID := generateCorrelationID()
	for _, c := range candidates {
		payload := contracts.WSRideOffer{
			OfferID:            offerIDs[c.DriverID],
			RideID:             r.ID,
			RideNumber:         r.RideNumber,
			Pickup:             toGeoPoint(r.Pickup),
			Dropoff:            toGeoPoint(r.Dropoff),
			EstimatedFare:      r.EstimatedFare,
			DistanceToPickupKM: c.DistanceKM,
			ExpiresAt:          expiresAt.Format(time.RFC3339),
			BatchNumber:        batchNumber,
			Envelope:           newEnvelope(correlationID),
		}
		if !service.registry.Send(c.DriverID, contracts.EventRideOffer, payload) {
			service.logger.Info(ctx, "offer_push_skipped", "Candidate has no live connection, offer row still stands", map[string]any{
				"ride_id":   r.ID,
				"driver_id": c.DriverID,
				"offer_id":  offerIDs[c.DriverID],
			})
		}
	}
	metrics.OffersSentTotal.Add(float64(len(batch)))

	service.publishOfferBatch(ctx, contracts.OfferBatchMessage{
		RideID:      r.ID,
		RideNumber:  r.RideNumber,
		BatchNumber: batchNumber,
		VehicleType: r.VehicleType.String(),
		Pickup:      toGeoPoint(r.Pickup),
		DriverIDs:   driverIDs,
		ExpiresAt:   expiresAt,
		Envelope:    newEnvelope(correlationID),
	})

	service.logger.Info(ctx, "offer_batch_broadcast", "Offer batch broadcast", map[string]any{
		"ride_id":      r.ID,
		"batch_number": batchNumber,
		"offers":       len(batch),
		"expires_at":   expiresAt.Format(time.RFC3339),
	})

	return expiresAt, nil
}

// publishOfferBatch mirrors the batch to the ride topic exchange using
// routing key ride.offers.{ride_id}.
func (service *dispatchService) publishOfferBatch(ctx context.Context, msg contracts.OfferBatchMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "offer_batch_marshal_failed", "Failed to marshal offer batch message", err, nil)
		return
	}
	routingKey := contracts.RouteOfferBatchPrefix + msg.RideID
	if err := service.pub.Publish(contracts.ExchangeRideTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "offer_batch_publish_failed", "Failed to publish offer batch to RabbitMQ", err, map[string]any{
			"ride_id":     msg.RideID,
			"routing_key": routingKey,
		})
	}
}
