package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/cache"
	"fleet_tracker/internal/config"
	"fleet_tracker/internal/events"
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/geo"
	"fleet_tracker/internal/logger"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/requests"
	"fleet_tracker/internal/routes"
	"fleet_tracker/internal/store"
	"fleet_tracker/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log, accessLog := logger.New(cfg.Log)
	gin.SetMode(cfg.Server.GinMode)

	db, err := config.OpenDB(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Database unavailable")
	}
	st := store.NewGormStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		hubCache  tracking.PositionCache
		positions fleet.PositionLookup
		redis     *cache.Positions
	)
	if cfg.Redis.Enabled {
		redis, err = cache.Connect(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PositionTTL, log)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, last known positions will not be cached")
		} else {
			hubCache, positions = redis, redis
		}
	}
	hub := tracking.NewHub(log, hubCache)

	sinks := []events.Publisher{hub.Publisher()}
	var kafka *events.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafka, err = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.WithError(err).Warn("Kafka unavailable, events stay in process")
		} else {
			sinks = append(sinks, kafka)
		}
	}
	bus := events.NewFanout(log, sinks...)

	var src rand.Source
	if cfg.Tracking.RouteSeed != 0 {
		src = rand.NewSource(cfg.Tracking.RouteSeed)
	}
	synth := geo.NewSynthesizer(geo.NewGeocoder(log), src)

	var opts []fleet.Option
	if positions != nil {
		opts = append(opts, fleet.WithPositions(positions))
	}
	manager := fleet.NewManager(st, synth, bus, log, opts...)

	router := routes.SetupRouter(routes.Deps{
		Users:          st,
		Fleet:          manager,
		Requests:       requests.NewService(st, bus, log),
		Hub:            hub,
		Auth:           middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		AllowedOrigins: cfg.Tracking.AllowedOrigins,
		SendBuffer:     cfg.Tracking.SendBuffer,
		Log:            log,
		AccessLog:      accessLog,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shut down")
	}

	if kafka != nil {
		if err := kafka.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Kafka producer")
		}
	}
	if redis != nil {
		if err := redis.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("Server exited")
}
