package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"training-booking-backend/config"
	"training-booking-backend/internal/api"
	"training-booking-backend/internal/booking"
	"training-booking-backend/internal/db"
	"training-booking-backend/internal/events"
	"training-booking-backend/internal/expiry"
	"training-booking-backend/internal/logging"
	"training-booking-backend/internal/model"
	"training-booking-backend/internal/mw"
	"training-booking-backend/internal/notification"
	"training-booking-backend/internal/store"
)

func main() {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret must be set (or JWT_SECRET in the environment)")
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	responseCache := mw.NewResponseCache(cfg.Server.CacheTTL)
	notifiers := booking.Notifiers{responseCache}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger)
		pool.Start(ctx)
		notifiers = append(notifiers, pool)
		logger.Info("push notifications enabled", zap.Int("workers", cfg.WorkerPool.Size))
	} else {
		logger.Warn("VAPID keys are not configured; push notifications are disabled")
	}

	if cfg.Events.AMQPURL != "" {
		publisher := events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Queue, nil, logger)
		publisher.Start(ctx)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close event publisher", zap.Error(err))
			}
		}()
		notifiers = append(notifiers, publisher)
		logger.Info("publishing reservation events", zap.String("queue", cfg.Events.Queue))
	}

	engine := booking.NewEngine(appStore, booking.Settings{
		MinNotice:     cfg.Booking.MinNotice,
		InitialStatus: model.ReservationStatus(cfg.Booking.InitialStatus),
		PaymentWindow: cfg.Booking.PaymentWindow,
	}, booking.SystemClock{}, notifiers, logger)

	if cfg.Booking.InitialStatus == string(model.StatusPending) {
		go expiry.NewService(cfg.Expiry, engine, logger).Run(ctx)
	}

	router := api.NewRouter(api.Dependencies{
		Engine:    engine,
		Store:     appStore,
		WebPush:   webpushOptions,
		Cache:     responseCache,
		Server:    cfg.Server,
		JWTSecret: cfg.Auth.JWTSecret,
		Logger:    logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("server gracefully stopped")
}
