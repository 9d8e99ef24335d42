package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "offers_sent_total",
		Help: "Total ride offers broadcast to drivers",
	})
	AcceptOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "accept_outcomes_total",
		Help: "Accept attempts by outcome",
	}, []string{"outcome"})
	RidesAssignedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "rides_assigned_total",
		Help: "Rides that reached ASSIGNED",
	})
	RidesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_dispatch", Name: "rides_exhausted_total",
		Help: "Rides that reached NO_DRIVERS_AVAILABLE",
	})
	AssignLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch", Name: "assign_latency_seconds",
		Help:    "Seconds between ride creation and assignment",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	BatchesPerRide = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch", Name: "batches_per_ride",
		Help:    "Offer batches issued before a ride settled",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 12},
	})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ride_dispatch", Name: "drivers_online",
		Help: "Drivers with a live dispatch connection",
	})
)
