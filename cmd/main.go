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

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/trip-ledger/internal/auth"
	"github.com/ukydev/trip-ledger/internal/config"
	"github.com/ukydev/trip-ledger/internal/db"
	"github.com/ukydev/trip-ledger/internal/events"
	"github.com/ukydev/trip-ledger/internal/handlers"
	"github.com/ukydev/trip-ledger/internal/metrics"
	"github.com/ukydev/trip-ledger/internal/middleware"
	"github.com/ukydev/trip-ledger/internal/service"
)

const tripsCollection = "trips"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.WithError(err).Fatal("Invalid LOG_LEVEL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoTimeout)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("MongoDB disconnect failed")
		}
	}()
	logger.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	store := &db.MongoCollection{Collection: client.Database(cfg.MongoDB).Collection(tripsCollection)}
	indexCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	err = store.EnsureIndexes(indexCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	rdb := newRedis(ctx, cfg, logger)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.WithError(err).Warn("Redis close failed")
			}
		}()
	}

	m := metrics.New()
	m.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc := service.New(store, service.Options{
		Publisher:       publisher,
		Metrics:         m,
		Logger:          logger,
		ConflictRetries: cfg.ConflictRetries,
	})

	router := handlers.NewRouter(handlers.RouterParams{
		Trips:       svc,
		Auth:        authService,
		Idempotency: middleware.NewIdempotency(rdb, cfg.IdempotencyTTL, logger),
		Metrics:     m,
		Logger:      logger,
		RateLimit:   cfg.RateLimitRequests,
		RateWindow:  cfg.RateLimitWindow,
		Health:      mongoHealth(client),
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, server, cfg.ShutdownTimeout, logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger log.FieldLogger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newPublisher connects to the MQTT broker, or falls back to logging the
// resource events when none is configured.
func newPublisher(cfg *config.Config, logger log.FieldLogger) (events.Publisher, func(), error) {
	if cfg.MQTTBroker == "" {
		logger.Info("MQTT_BROKER not set, resource events are logged only")
		return events.LogPublisher{Logger: logger}, func() {}, nil
	}
	p, err := events.NewMQTTPublisher(events.MQTTConfig{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
		Timeout:     cfg.MQTTPublishTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to MQTT broker: %w", err)
	}
	logger.WithField("broker", cfg.MQTTBroker).Info("Connected to MQTT broker")
	return p, p.Close, nil
}

// newRedis returns nil when idempotency keys are disabled. An unreachable
// server is only a warning; the middleware fails open.
func newRedis(ctx context.Context, cfg *config.Config, logger log.FieldLogger) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, idempotency keys disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("Redis ping failed")
	}
	return rdb
}

func mongoHealth(client *mongo.Client) handlers.HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
}
