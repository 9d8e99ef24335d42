package service

import (
	"context"
	"time"

	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

const producerName = "dispatch-service"

// Settings are the dispatch tunables, sourced from configuration.
type Settings struct {
	OfferWindow      time.Duration
	BatchSize        int
	InitialRadiusKM  float64
	MaxRadiusKM      float64
	RadiusMultiplier float64
}

// dispatchService implements ports.DispatchService: ride creation, candidate
// selection, offer broadcasting, the accept race, and the per-ride dispatch
// loops.
type dispatchService struct {
	logger   *logger.Logger
	settings Settings

	uow          ports.UnitOfWork
	rides        ports.RideRepository
	offers       ports.OfferRepository
	availability ports.AvailabilityRepository
	events       ports.RideEventRepository

	geoIndex ports.GeoIndex
	fares    ports.FareEstimator
	registry ports.ConnectionRegistry
	pub      ports.MessagePublisher

	loops *loopRegistry

	// rootCtx outlives any single request; dispatch loops run on it so they
	// survive the HTTP request that created the ride.
	rootCtx context.Context
}

// NewDispatchService wires the dispatch engine. rootCtx bounds the lifetime
// of all dispatch loops; cancelling it stops them.
func NewDispatchService(
	rootCtx context.Context,
	log *logger.Logger,
	settings Settings,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	offers ports.OfferRepository,
	availability ports.AvailabilityRepository,
	events ports.RideEventRepository,
	geoIndex ports.GeoIndex,
	fares ports.FareEstimator,
	registry ports.ConnectionRegistry,
	pub ports.MessagePublisher,
) ports.DispatchService {
	return &dispatchService{
		logger:       log,
		settings:     settings,
		uow:          uow,
		rides:        rides,
		offers:       offers,
		availability: availability,
		events:       events,
		geoIndex:     geoIndex,
		fares:        fares,
		registry:     registry,
		pub:          pub,
		loops:        newLoopRegistry(),
		rootCtx:      rootCtx,
	}
}
