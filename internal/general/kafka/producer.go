package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/ports"
)

// LocationProducer streams driver location pings to the analytics topic.
// Keyed by driver id so a partition sees each driver's pings in order.
type LocationProducer struct {
	writer *kafka.Writer
}

// NewLocationProducer builds a producer for the given brokers and topic.
func NewLocationProducer(brokers []string, topic string) *LocationProducer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &LocationProducer{writer: w}
}

type locationPing struct {
	DriverID  string    `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	PingedAt  time.Time `json:"pinged_at"`
}

// PublishPing writes one location sample. Callers treat failures as
// non-fatal: the dispatch path never blocks on analytics.
func (p *LocationProducer) PublishPing(ctx context.Context, driverID string, loc geo.Point, at time.Time) error {
	body, err := json.Marshal(locationPing{
		DriverID:  driverID,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		PingedAt:  at,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(driverID), Value: body})
}

// Close flushes and closes the underlying writer.
func (p *LocationProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NoopFeed is used when no Kafka brokers are configured.
type NoopFeed struct{}

func (NoopFeed) PublishPing(context.Context, string, geo.Point, time.Time) error { return nil }

var (
	_ ports.LocationFeed = (*LocationProducer)(nil)
	_ ports.LocationFeed = NoopFeed{}
)
