package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"finfare-backend/config"
	"finfare-backend/internal/access"
	"finfare-backend/internal/api"
	"finfare-backend/internal/connection"
	"finfare-backend/internal/db"
	"finfare-backend/internal/device"
	"finfare-backend/internal/feeding"
	"finfare-backend/internal/notification"
	"finfare-backend/internal/scheduler"
	"finfare-backend/internal/store"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config file (default $CONFIG_PATH or ./config/config.yaml)")
	pflag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath == "" {
		*configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)
	log.Info().Str("path", *configPath).Msg("configuration loaded")

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		log.Warn().Msg("VAPID keys are not configured; push notifications are disabled")
	} else {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appStore := store.NewGormStore(gormDB)

	notifications := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
	notifications.Start(ctx)

	registry := connection.NewRegistry()
	dispatcher := device.NewDispatcher(registry)
	reconciler := device.NewReconciler(appStore, dispatcher, cfg.Device.SyncCommand)
	feeder := feeding.NewService(appStore, dispatcher, notifications, cfg.Feeding)
	telemetry := device.NewTelemetry(appStore, notifications, cfg.WaterQuality)

	schedulerSvc, err := scheduler.NewService(cfg.Scheduler, appStore, feeder)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	go schedulerSvc.Run(ctx)

	router := api.NewRouter(cfg.Server, api.Deps{
		Store:      appStore,
		Access:     access.New(cfg.Access),
		Controller: device.NewController(appStore, reconciler),
		Feeder:     feeder,
		Sessions:   device.NewSessions(registry, reconciler, feeder, telemetry),
		Registry:   registry,
		Webpush:    webpushOptions,
		WSConfig: connection.WSConfig{
			PingInterval:   time.Duration(cfg.Device.PingIntervalSeconds) * time.Second,
			PongTimeout:    time.Duration(cfg.Device.PongTimeoutSeconds) * time.Second,
			WriteTimeout:   time.Duration(cfg.Device.WriteTimeoutSeconds) * time.Second,
			MaxMessageSize: cfg.Device.MaxMessageSize,
		},
		BaseCtx: ctx,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping services")

	// Hijacked device sockets are not tracked by Shutdown.
	log.Info().Int("devices", registry.Count()).Msg("closing device connections")
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("server gracefully stopped")
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level; using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
