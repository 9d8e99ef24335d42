package service

import (
	"context"
	"encoding/json"
	"errors"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"
)

// driverService owns the driver-side availability surface: online/offline,
// location pings, and the mirrors of those changes into the geo index, the
// broker and the analytics feed.
type driverService struct {
	logger       *logger.Logger
	uow          ports.UnitOfWork
	availability ports.AvailabilityRepository
	geoIndex     ports.GeoIndex
	pub          ports.MessagePublisher
	feed         ports.LocationFeed
}

// NewDriverService wires the driver availability service.
func NewDriverService(
	log *logger.Logger,
	uow ports.UnitOfWork,
	availability ports.AvailabilityRepository,
	geoIndex ports.GeoIndex,
	pub ports.MessagePublisher,
	feed ports.LocationFeed,
) ports.DriverService {
	return &driverService{
		logger:       log,
		uow:          uow,
		availability: availability,
		geoIndex:     geoIndex,
		pub:          pub,
		feed:         feed,
	}
}

// defaultRating seeds first-time drivers until real trip feedback exists.
const defaultRating = 5.0

// GoOnline marks the driver dispatchable at the given location and inserts
// them into the geo index. A driver without an availability row is
// registered on the spot.
func (service *driverService) GoOnline(ctx context.Context, driverID string, loc geo.Point, vt ride.VehicleType) error {
	now := timeNowUTC()

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		err := service.availability.SetOnline(txCtx, driverID, loc, now)
		if errors.Is(err, ports.ErrNotFound) {
			a, err := driver.NewAvailability(driverID, vt, defaultRating)
			if err != nil {
				return err
			}
			a.GoOnline(loc)
			return service.availability.Upsert(txCtx, a)
		}
		return err
	})
	if err != nil {
		service.logger.Error(ctx, "driver_online_failed", "Failed to mark driver online", err, map[string]any{
			"driver_id": driverID,
		})
		return err
	}

	if err := service.geoIndex.Upsert(ctx, driverID, loc); err != nil {
		// the index self-heals on the next ping; availability is the truth
		service.logger.Error(ctx, "geo_upsert_failed", "Failed to index driver location", err, map[string]any{
			"driver_id": driverID,
		})
	}

	metrics.DriversOnline.Inc()
	service.publishDriverStatus(ctx, driverID, true, &loc)
	service.logger.Info(ctx, "driver_online", "Driver went online", map[string]any{
		"driver_id": driverID,
	})
	return nil
}

// GoOffline removes the driver from dispatch consideration.
func (service *driverService) GoOffline(ctx context.Context, driverID string) error {
	now := timeNowUTC()

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.availability.SetOffline(txCtx, driverID, now)
	})
	if err != nil {
		service.logger.Error(ctx, "driver_offline_failed", "Failed to mark driver offline", err, map[string]any{
			"driver_id": driverID,
		})
		return err
	}

	if err := service.geoIndex.Remove(ctx, driverID); err != nil {
		service.logger.Error(ctx, "geo_remove_failed", "Failed to remove driver from geo index", err, map[string]any{
			"driver_id": driverID,
		})
	}

	metrics.DriversOnline.Dec()
	service.publishDriverStatus(ctx, driverID, false, nil)
	service.logger.Info(ctx, "driver_offline", "Driver went offline", map[string]any{
		"driver_id": driverID,
	})
	return nil
}

// Heartbeat stamps last_seen_at when a driver's WebSocket connects. Drivers
// that never went online have no availability row and are a no-op.
func (service *driverService) Heartbeat(ctx context.Context, driverID string) error {
	now := timeNowUTC()

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.availability.Touch(txCtx, driverID, now)
	})
	if err != nil {
		service.logger.Error(ctx, "driver_heartbeat_failed", "Failed to stamp driver heartbeat", err, map[string]any{
			"driver_id": driverID,
		})
	}
	return err
}

// UpdateLocation applies a location ping: availability row, geo index, and
// the analytics feed. Pings for unknown or offline drivers are rejected.
func (service *driverService) UpdateLocation(ctx context.Context, driverID string, loc geo.Point) error {
	now := timeNowUTC()

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.availability.UpdateLocation(txCtx, driverID, loc, now)
	})
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			service.logger.Error(ctx, "location_update_failed", "Failed to persist location ping", err, map[string]any{
				"driver_id": driverID,
			})
		}
		return err
	}

	if err := service.geoIndex.Upsert(ctx, driverID, loc); err != nil {
		service.logger.Error(ctx, "geo_upsert_failed", "Failed to index driver location", err, map[string]any{
			"driver_id": driverID,
		})
	}

	// fire-and-forget analytics
	if err := service.feed.PublishPing(ctx, driverID, loc, now); err != nil {
		service.logger.Debug(ctx, "location_feed_failed", "Failed to publish location ping to analytics feed", map[string]any{
			"driver_id": driverID,
			"error":     err.Error(),
		})
	}

	return nil
}

// publishDriverStatus mirrors an online/offline flip to the driver topic
// exchange using routing key driver.status.{driver_id}.
func (service *driverService) publishDriverStatus(ctx context.Context, driverID string, online bool, loc *geo.Point) {
	msg := contracts.DriverStatusMessage{
		DriverID:  driverID,
		Online:    online,
		Timestamp: timeNowUTC(),
		Envelope:  newEnvelope(generateCorrelationID()),
	}
	if loc != nil {
		p := toGeoPoint(*loc)
		msg.Location = &p
	}

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "driver_status_marshal_failed", "Failed to marshal driver status message", err, nil)
		return
	}
	routingKey := contracts.RouteDriverStatusPrefix + driverID
	if err := service.pub.Publish(contracts.ExchangeDriverTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "driver_status_publish_failed", "Failed to publish driver status to RabbitMQ", err, map[string]any{
			"driver_id":   driverID,
			"routing_key": routingKey,
		})
	}
}
