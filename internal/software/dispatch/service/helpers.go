package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
)

// generateRideNumber returns an ID like: RIDE_YYYYMMDD_HHMMSS_XXX
// where XXX is a millisecond fragment to reduce collisions.
func generateRideNumber() string {
	now := time.Now().UTC()
	return fmt.Sprintf("RIDE_%04d%02d%02d_%02d%02d%02d_%03d",
		now.Year(), int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second(),
		now.Nanosecond()/1e6, // ms
	)
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}

func newEnvelope(correlationID string) contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: correlationID,
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}

func toGeoPoint(p geo.Point) contracts.GeoPoint {
	return contracts.GeoPoint{Lat: p.Latitude, Lng: p.Longitude, Address: p.Address}
}

// publishRideStatus sends a ride status update to the ride topic exchange
// using routing key ride.status.{status}.
func (service *dispatchService) publishRideStatus(ctx context.Context, msg contracts.RideStatusMessage) {
	routingKey := contracts.RouteRideStatusPrefix + strings.ToLower(msg.Status)

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "ride_status_marshal_failed", "Failed to marshal ride status message", err, nil)
		return
	}
	if err := service.pub.Publish(contracts.ExchangeRideTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "ride_status_publish_failed", "Failed to publish ride status to RabbitMQ", err, map[string]any{
			"ride_id":     msg.RideID,
			"routing_key": routingKey,
		})
		return
	}

	service.logger.Debug(ctx, "ride_status_published", "Published ride status to RabbitMQ", map[string]any{
		"routing_key": routingKey,
	})
}

// publishDriverResponse records a driver's offer response on the driver topic
// exchange using routing key driver.response.{ride_id}.
func (service *dispatchService) publishDriverResponse(ctx context.Context, msg contracts.DriverResponseMessage) {
	routingKey := contracts.RouteDriverRespPrefix + msg.RideID

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "driver_response_marshal_failed", "Failed to marshal driver response message", err, nil)
		return
	}
	if err := service.pub.Publish(contracts.ExchangeDriverTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "driver_response_publish_failed", "Failed to publish driver response to RabbitMQ", err, map[string]any{
			"ride_id":     msg.RideID,
			"routing_key": routingKey,
		})
	}
}

// appendEvent builds and appends one ride_events row inside the caller's tx.
func (service *dispatchService) appendEvent(txCtx context.Context, rideID string, eventType ride.EventType, actor string, data map[string]any) error {
	event, err := ride.NewEvent(rideID, eventType, actor, data)
	if err != nil {
		return err
	}
	return service.events.Append(txCtx, event)
}

func timeNowUTC() time.Time { return time.Now().UTC() }

func customerActor(customerID string) string { return "customer:" + customerID }
func driverActor(driverID string) string     { return "driver:" + driverID }

const systemActor = "system"
