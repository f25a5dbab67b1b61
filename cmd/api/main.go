package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/idempotency-gateway/internal/application/service"
	"github.com/sangkips/idempotency-gateway/internal/config"
	"github.com/sangkips/idempotency-gateway/internal/domain/enum"
	domainRepo "github.com/sangkips/idempotency-gateway/internal/domain/repository"
	"github.com/sangkips/idempotency-gateway/internal/infrastructure/cache"
	"github.com/sangkips/idempotency-gateway/internal/infrastructure/database"
	"github.com/sangkips/idempotency-gateway/internal/infrastructure/memory"
	"github.com/sangkips/idempotency-gateway/internal/infrastructure/repository"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/handler"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/middleware"
	"github.com/sangkips/idempotency-gateway/internal/presentation/http/routes"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

	b, err := newBackend(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize idempotency store: %v", err)
	}
	defer b.close()
	store := b.store

	idempotencyService, err := service.NewIdempotencyService(store, idempotencyOptions(&cfg.Idempotency), service.WithLogger(logger))
	if err != nil {
		log.Fatalf("Invalid idempotency configuration: %v", err)
	}

	if sweeper := service.NewSweeper(store, cfg.Idempotency.CleanupInterval, logger); sweeper != nil {
		go sweeper.Run(ctx)
	}

	rateLimiter := middleware.NewClientRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond(),
		BurstSize:         cfg.RateLimit.Requests,
		CleanupInterval:   5 * time.Minute,
		EntryTTL:          10 * time.Minute,
	})
	defer rateLimiter.Stop()

	// Initialize services
	orderService := service.NewOrderService(b.orders)

	// Initialize handlers
	handlers := &routes.Handlers{
		Order: handler.NewOrderHandler(orderService),
		Dashboard: handler.NewDashboardHandler(orderService, map[string]handler.StatsSource{
			"idempotency_store": b.stats,
			"rate_limiter":      rateLimiter,
		}),
	}

	router := routes.Setup(handlers, &routes.Deps{
		Cfg:         cfg,
		Idempotency: idempotencyService,
		RateLimiter: rateLimiter,
	})

	port := cfg.App.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Idempotency.LockTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Starting %s server on port %s...", cfg.App.Name, port)
	log.Printf("Environment: %s, idempotency store: %s", cfg.App.Env, cfg.Idempotency.Store)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// backend is the storage selected by IDEMPOTENCY_STORE
type backend struct {
	store  domainRepo.KeyStore
	orders domainRepo.OrderRepository
	// stats is nil for backends that do not report counters
	stats handler.StatsSource
	close func()
}

func newBackend(cfg *config.Config, logger *log.Logger) (*backend, error) {
	switch strings.ToLower(cfg.Idempotency.Store) {
	case config.StoreRedis:
		rdb := cache.NewClient(cache.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		log.Println("Successfully connected to Redis")
		return &backend{
			store:  cache.NewRedisKeyStore(rdb, cache.WithLogger(logger)),
			orders: memory.NewOrderRepository(),
			close:  func() { _ = rdb.Close() },
		}, nil

	case config.StorePostgres:
		db, err := database.NewPostgresDB(&cfg.Database, cfg.App.Debug)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
		return &backend{
			store:  repository.NewIdempotencyRepository(db),
			orders: repository.NewOrderRepository(db),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	case config.StoreMemory:
		log.Println("Using in-memory idempotency store; keys are not shared between instances")
		store := memory.NewKeyStore()
		return &backend{
			store:  store,
			orders: memory.NewOrderRepository(),
			stats:  store,
			close:  func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown IDEMPOTENCY_STORE %q", cfg.Idempotency.Store)
	}
}

func idempotencyOptions(cfg *config.IdempotencyConfig) service.IdempotencyOptions {
	opts := service.DefaultIdempotencyOptions()
	opts.HeaderName = cfg.Header
	opts.TTL = cfg.TTL
	opts.LockTimeout = cfg.LockTimeout
	opts.PollInterval = cfg.PollInterval
	opts.ConflictHandling = enum.ConflictMode(strings.ToLower(cfg.ConflictMode))
	opts.FailOpen = cfg.FailOpen
	opts.MaxKeyLength = cfg.MaxKeyLength
	opts.MaxBodySize = cfg.MaxBodySize
	opts.CacheErrorResponses = cfg.CacheErrors
	opts.Fingerprinting = cfg.Fingerprint
	opts.RequireKey = cfg.RequireKey
	if len(cfg.Methods) > 0 {
		methods := make([]string, len(cfg.Methods))
		for i, m := range cfg.Methods {
			methods[i] = strings.ToUpper(m)
		}
		opts.Methods = methods
	}
	return opts
}
