package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/kafka"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/redisgeo"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/handler"
	"ride-dispatch/internal/software/dispatch/service"
)

// run wires the dispatch service and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logger.New("dispatch-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}
	log.Info(ctx, "config_loaded", "Configuration loaded", nil)

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	redisClient, err := redisgeo.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		log.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer redisClient.Close()
	geoIndex := redisgeo.NewIndex(redisClient, cfg.Redis.GeoKey)

	rmq, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewPublisher(rmq)

	// the analytics feed is optional: without brokers, pings stay local
	var feed ports.LocationFeed = kafka.NoopFeed{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewLocationProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		feed = producer
	}

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL)

	uow := postgres.NewUnitOfWork(pool)
	rideRepo := postgres.NewRideRepo()
	offerRepo := postgres.NewOfferRepo()
	availabilityRepo := postgres.NewAvailabilityRepo()
	eventRepo := postgres.NewRideEventRepo()

	registry := websocket.NewRegistry(log)

	dispatchSvc := service.NewDispatchService(
		ctx,
		log,
		service.Settings{
			OfferWindow:      cfg.Dispatch.OfferWindow,
			BatchSize:        cfg.Dispatch.BatchSize,
			InitialRadiusKM:  cfg.Dispatch.InitialRadiusKM,
			MaxRadiusKM:      cfg.Dispatch.MaxRadiusKM,
			RadiusMultiplier: cfg.Dispatch.RadiusMultiplier,
		},
		uow,
		rideRepo,
		offerRepo,
		availabilityRepo,
		eventRepo,
		geoIndex,
		service.NewFareEstimator(),
		registry,
		pub,
	)
	driverSvc := service.NewDriverService(log, uow, availabilityRepo, geoIndex, pub, feed)

	gateway := websocket.NewGateway(log, jwtManager, registry, dispatchSvc, driverSvc)

	// resume dispatch loops for rides a previous instance left searching
	if err := dispatchSvc.RecoverInFlight(ctx); err != nil {
		log.Error(ctx, "recovery_failed", "Failed to recover in-flight rides", err, nil)
		return err
	}

	router := mux.NewRouter()
	httpHandler := handler.NewHandler(dispatchSvc, driverSvc, log, jwtManager, gateway)
	httpHandler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.HTTP.Port),
		map[string]any{"port": cfg.HTTP.Port},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info(ctx, "shutdown_started", "Dispatch Service shutting down", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err,
				map[string]any{"port": cfg.HTTP.Port})
			return err
		}
		return nil
	}

	log.Info(ctx, "shutdown_complete", "Dispatch Service stopped", nil)
	return nil
}
