package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lifescore_backend/internal/ai"
	"lifescore_backend/internal/config"
	"lifescore_backend/internal/db"
	httpServer "lifescore_backend/internal/http"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/quota"
	"lifescore_backend/internal/repository"
	"lifescore_backend/internal/service"
	"lifescore_backend/internal/storage"
	"lifescore_backend/internal/storage/memory"
	"lifescore_backend/internal/storage/postgres"
	"lifescore_backend/internal/worker"
	"lifescore_backend/internal/ws"

	"github.com/gin-gonic/gin"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	if err := service.InitJWT(cfg.JWTSecret); err != nil {
		logger.Fatal("jwt init failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage: Postgres when configured, always backed by the memory store.
	fallback := memory.New()
	for collection, rows := range repository.CatalogRows(time.Now()) {
		fallback.Seed(collection, rows)
	}

	var deps httpServer.Deps
	var durable storage.Backend
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	switch {
	case err != nil:
		logger.Error("database unavailable, starting on the in-memory store", "error", err)
	case pool != nil:
		defer pool.Close()
		durable = postgres.New(pool)
		deps.DB = pool
	}
	store := storage.NewResilient(durable, fallback,
		storage.WithTimeout(cfg.StorageTimeout),
		storage.WithCooldown(cfg.StorageCooldown),
	)

	// Quotas: Redis when configured, the local counters otherwise or while
	// Redis fails.
	localCounters := quota.NewMemoryCounterStore()
	var counters quota.CounterStore = localCounters
	redisClient, err := quota.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	switch {
	case err != nil:
		logger.Warn("redis unavailable, quotas are counted per instance", "error", err)
	case redisClient != nil:
		defer redisClient.Close()
		counters = quota.NewFallbackCounterStore(quota.NewRedisCounterStore(redisClient), localCounters)
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	}
	guard := quota.NewGuard(counters, cfg.QuotaPolicies(), quota.WithDevBypass(cfg.QuotaDevBypass))

	hub := ws.NewHub()
	ledger := service.NewLedgerService(store,
		service.WithInitialCoins(cfg.InitialCoins),
		service.WithNotifier(hub),
	)
	missions := service.NewMissionService(store, ledger, hub)

	var advisor ai.Advisor = ai.NewCatalogAdvisor(missions.ListMissions, 3)
	if cfg.AIEndpoint != "" {
		advisor = ai.NewHTTPAdvisor(cfg.AIEndpoint, cfg.AIAPIKey, cfg.AITimeout, advisor)
	}
	recommendations := service.NewRecommendationService(guard, ledger, missions, advisor, cfg.AICallCoinCost)

	sched, err := worker.New(ctx, missions, localCounters, worker.Config{
		SettleInterval: cfg.SettlementSweepInterval,
		SettleGrace:    cfg.SettlementGrace,
	})
	if err != nil {
		logger.Fatal("scheduler init failed", "error", err)
	}
	sched.Start()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Quota-Limit, X-Quota-Remaining, X-Quota-Reset")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	deps.Missions = missions
	deps.Ledger = ledger
	deps.Recommendations = recommendations
	deps.Guard = guard
	deps.Hub = hub
	deps.Store = store
	deps.Version = version
	deps.AllowedOrigin = cfg.AllowedOrigin
	httpServer.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version, "degraded", store.Degraded())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", "error", err)
	}

	logger.Info("server exited")
}
