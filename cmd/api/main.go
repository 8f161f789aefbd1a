package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/rch-registry/config"
	"github.com/jwalitptl/rch-registry/internal/broadcast"
	"github.com/jwalitptl/rch-registry/internal/handler/health"
	"github.com/jwalitptl/rch-registry/internal/handler/patient"
	"github.com/jwalitptl/rch-registry/internal/handler/realtime"
	"github.com/jwalitptl/rch-registry/internal/middleware"
	"github.com/jwalitptl/rch-registry/internal/repository"
	"github.com/jwalitptl/rch-registry/internal/repository/memory"
	"github.com/jwalitptl/rch-registry/internal/repository/postgres"
	"github.com/jwalitptl/rch-registry/internal/router"
	patientService "github.com/jwalitptl/rch-registry/internal/service/patient"
	"github.com/jwalitptl/rch-registry/pkg/logger"
	"github.com/jwalitptl/rch-registry/pkg/messaging"
	"github.com/jwalitptl/rch-registry/pkg/messaging/redis"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.New(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})

	if err := run(cfg, appLog); err != nil {
		appLog.Fatal().Err(err).Msg("server exited with error")
	}
	appLog.Info().Msg("server exited properly")
}

func run(cfg *config.Config, appLog zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("rch", reg)

	// Initialize storage
	repo, db, err := openStorage(ctx, cfg, m, appLog)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				appLog.Warn().Err(err).Msg("failed to close database")
			}
		}()
	}

	// Initialize broadcast hub
	hub := broadcast.NewHub(broadcast.HubConfig{
		MaxSessions: cfg.Realtime.MaxSessions,
		SendBuffer:  cfg.Realtime.SendBuffer,
	}, m, appLog)
	defer hub.Stop()

	publisher, closeBroker, err := openPublisher(ctx, cfg, hub, appLog)
	if err != nil {
		return err
	}
	// Teardown order: HTTP server, hub, broker, then database
	defer func() {
		hub.Stop()
		closeBroker()
	}()

	// Initialize service and handlers
	svc := patientService.NewService(repo, publisher, m, appLog)

	mode := gin.ReleaseMode
	if cfg.IsDevelopment() {
		mode = gin.DebugMode
	}
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins

	routerConfig := router.RouterConfig{
		Mode:       mode,
		CORSConfig: corsConfig,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = &middleware.RateLimiterConfig{
			Rate:       rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst:      cfg.RateLimit.Burst,
			IdleExpiry: cfg.RateLimit.IdleExpiry,
		}
	}

	r := router.NewRouter(routerConfig, logger.Component(appLog, "http"), m, reg).
		Register(
			health.NewHandler(svc),
			patient.NewHandler(svc),
		).
		RegisterRoot(realtime.NewHandler(hub, realtime.Config{
			Path:          cfg.Realtime.Path,
			AllowedOrigin: cfg.Realtime.AllowedOrigin,
			Development:   cfg.IsDevelopment(),
		}, appLog))
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info().
			Int("port", cfg.Server.Port).
			Str("storage", cfg.Storage.Driver).
			Str("broadcast", cfg.Broadcast.Driver).
			Msg("RCH server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	appLog.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; the
	// deferred hub.Stop closes them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, m *metrics.Metrics, appLog zerolog.Logger) (repository.PatientRepository, *sqlx.DB, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		appLog.Warn().Msg("using in-memory storage; records are lost on restart")
		return memory.NewPatientRepository(clockwork.NewRealClock()), nil, nil
	default:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := postgres.EnsureSchema(schemaCtx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		appLog.Info().Msg("database connected")
		return postgres.NewPatientRepository(db, m), db, nil
	}
}

// openPublisher returns the hub itself for a single instance. With the redis
// driver every instance publishes to the shared channel and relays it back
// into its own hub.
func openPublisher(ctx context.Context, cfg *config.Config, hub *broadcast.Hub, appLog zerolog.Logger) (messaging.Publisher, func(), error) {
	if cfg.Broadcast.Driver != config.BroadcastDriverRedis {
		return hub, func() {}, nil
	}

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLog)
	if err != nil {
		return nil, nil, err
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	relayDone, err := messaging.NewRelay(broker, cfg.Broadcast.Channel, hub, appLog).Start(relayCtx)
	if err != nil {
		cancel()
		broker.Close()
		return nil, nil, err
	}
	appLog.Info().Str("channel", cfg.Broadcast.Channel).Msg("redis relay started")

	closeFn := func() {
		cancel()
		<-relayDone
		if err := broker.Close(); err != nil {
			appLog.Warn().Err(err).Msg("failed to close redis broker")
		}
	}
	return messaging.NewBrokerPublisher(broker, cfg.Broadcast.Channel), closeFn, nil
}
