package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-watchlist-service/internal/alert"
	"github.com/kjstillabower/weather-watchlist-service/internal/cache"
	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/config"
	httphandler "github.com/kjstillabower/weather-watchlist-service/internal/http"
	"github.com/kjstillabower/weather-watchlist-service/internal/lifecycle"
	"github.com/kjstillabower/weather-watchlist-service/internal/observability"
	"github.com/kjstillabower/weather-watchlist-service/internal/pipeline"
	"github.com/kjstillabower/weather-watchlist-service/internal/scheduler"
	"github.com/kjstillabower/weather-watchlist-service/internal/service"
	"github.com/kjstillabower/weather-watchlist-service/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StorePath, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err), zap.String("path", cfg.StorePath))
	}
	lifecycle.SetReady(true)

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		weatherClient.EnableCircuitBreaker(client.BreakerConfig{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
		}, logger)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	if err := weatherClient.ValidateAPIKey(ctx); err != nil {
		logger.Warn("weather API key check failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}

	var lookupCache cache.Cache
	var memcached *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcached = mc
		lookupCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		lookupCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	watchlist := service.NewWatchlistService(weatherClient, st, lookupCache, service.Options{
		LookupTTL:       cfg.CacheTTL,
		CoalesceTimeout: cfg.WeatherAPITimeout,
		MinNameLen:      cfg.CityNameMinLength,
		MaxNameLen:      cfg.CityNameMaxLength,
	}, logger)

	emitter := alert.NewEmitter(st, logger)
	checks := pipeline.New(weatherClient, st, emitter, logger)
	sched := scheduler.New(st, checks, logger, cfg.SchedulerMaxConcurrency)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	observability.RegisterCheckGauges(cfg.DegradedWindow)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StorePing:        st.Ping,
		Version:          version,
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(watchlist, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	sched.Stop()

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcached != nil {
		if err := memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
