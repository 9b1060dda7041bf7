package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/config"
	"github.com/shiva/ridedispatch/internal/handler"
	"github.com/shiva/ridedispatch/internal/realtime"
	"github.com/shiva/ridedispatch/internal/repository"
	"github.com/shiva/ridedispatch/internal/service"
	"github.com/shiva/ridedispatch/pkg/cache"
	"github.com/shiva/ridedispatch/pkg/db"
	"github.com/shiva/ridedispatch/pkg/logger"
)

// stores bundles the persistence backends selected by STORAGE_DRIVER.
type stores struct {
	bookings    service.BookingStore
	drivers     service.DriverStore
	pricing     service.PricingStore
	commissions service.CommissionStore
	identity    service.IdentityLookup
	tracker     service.PositionTracker
	health      []handler.HealthCheck
	close       func()
}

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Env, cfg.Log.Level); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer st.close()

	// ── Realtime fan-out ────────────────────────────────
	hub := realtime.NewHub(cfg.Dispatch.NotifyRadiusKm)
	events := realtime.Fanout{hub}
	var kafkaSink *realtime.KafkaPublisher
	if cfg.Kafka.Enabled() {
		kafkaSink = realtime.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		events = append(events, kafkaSink)
		logger.Info("kafka event sink enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// ── Initialize layers ───────────────────────────────
	radii := service.Radii{
		AcceptKm:       cfg.Dispatch.AcceptRadiusKm,
		DriverSearchKm: cfg.Dispatch.DriverSearchRadiusKm,
		PendingKm:      cfg.Dispatch.PendingRadiusKm,
		NotifyKm:       cfg.Dispatch.NotifyRadiusKm,
	}
	registry := service.NewDriverRegistry(st.drivers)
	pricingSvc := service.NewPricingService(st.pricing, events)
	ledger := service.NewCommissionLedger(st.commissions, cfg.Dispatch.DefaultCommissionPercent)
	matcher := service.NewDispatchMatcher(st.drivers, st.bookings, radii)
	bookingSvc := service.NewBookingService(service.BookingDeps{
		Bookings: st.bookings,
		Registry: registry,
		Pricing:  pricingSvc,
		Ledger:   ledger,
		Identity: st.identity,
		Tracker:  st.tracker,
		Events:   events,
		Radii:    radii,
	})

	router := handler.NewRouter(handler.Deps{
		Bookings:  bookingSvc,
		Pricing:   pricingSvc,
		Ledger:    ledger,
		Matcher:   matcher,
		Registry:  registry,
		Socket:    realtime.NewHandler(hub, registry),
		Positions: hub,
		Health:    st.health,
	})

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.ServerAddr()), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	hub.Close()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Warn("kafka writer close", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openStores connects the configured backend. Postgres mode also needs
// Redis for the pricing cache and trip tracking.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if !cfg.Storage.UsesPostgres() {
		mem := repository.NewMemoryStore()
		logger.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			bookings:    mem.Bookings(),
			drivers:     mem.Drivers(),
			pricing:     mem.Pricing(),
			commissions: mem.Commissions(),
			identity:    mem.Identity(),
			tracker:     mem.Tracker(),
			close:       func() {},
		}, nil
	}

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pgPool); err != nil {
		pgPool.Close()
		return nil, err
	}
	logger.Info("postgres connected", zap.String("host", cfg.Postgres.Host), zap.String("db", cfg.Postgres.DBName))

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pgPool.Close()
		return nil, err
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))

	return &stores{
		bookings:    repository.NewBookingRepository(pgPool),
		drivers:     repository.NewDriverRepository(pgPool),
		pricing:     repository.NewPricingRepository(pgPool, repository.NewTierCache(redisClient, cfg.Redis.CacheTTL)),
		commissions: repository.NewCommissionRepository(pgPool),
		identity:    repository.NewIdentityRepository(pgPool),
		tracker:     repository.NewTrackingRepository(redisClient),
		health:      healthChecks(pgPool, redisClient),
		close: func() {
			_ = redisClient.Close()
			pgPool.Close()
		},
	}, nil
}

func healthChecks(pgPool *pgxpool.Pool, redisClient *redis.Client) []handler.HealthCheck {
	return []handler.HealthCheck{
		{Name: "postgres", Check: func(ctx context.Context) error { return db.HealthCheck(ctx, pgPool) }},
		{Name: "redis", Check: func(ctx context.Context) error { return cache.HealthCheck(ctx, redisClient) }},
	}
}
